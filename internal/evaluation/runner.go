package evaluation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/disparity"
	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Observer is notified of every unit in classifier order, then comparison order.
// Calls are made from a single goroutine.
type Observer interface {
	ClassifierStarted(classifier string)
	Evaluated(e models.Evaluation)
	ClassifierFinished(classifier string, err error)
}

type Options struct {
	// Workers bounds how many classifiers are evaluated at once.
	Workers int
	// Shards splits each contingency build; 1 builds serially.
	Shards int
	// ContinueOnError keeps evaluating the remaining comparisons of a classifier
	// after one fails. Otherwise the classifier is abandoned and its rows dropped.
	ContinueOnError bool
}

// Runner evaluates every classifier of a dataset against an ordered list of
// comparison specs.
type Runner struct {
	specs     []models.ComparisonSpec
	sources   map[string]dataset.Source
	opts      Options
	observers []Observer
	logger    *slog.Logger
}

func NewRunner(specs []models.ComparisonSpec, sources map[string]dataset.Source, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	return &Runner{
		specs:   specs,
		sources: sources,
		opts:    opts,
		logger:  logging.Component("evaluation"),
	}
}

// WithObserver returns a copy of the runner that also notifies o.
func (r *Runner) WithObserver(o Observer) *Runner {
	cp := *r
	cp.observers = append(append([]Observer(nil), r.observers...), o)
	return &cp
}

// WithSpecs returns a copy of the runner using specs instead.
func (r *Runner) WithSpecs(specs []models.ComparisonSpec) *Runner {
	cp := *r
	cp.specs = specs
	return &cp
}

// WithSources returns a copy of the runner whose prediction sources are
// overlaid by sources.
func (r *Runner) WithSources(sources map[string]dataset.Source) *Runner {
	merged := make(map[string]dataset.Source, len(r.sources)+len(sources))
	for k, v := range r.sources {
		merged[k] = v
	}
	for k, v := range sources {
		merged[k] = v
	}
	cp := *r
	cp.sources = merged
	return &cp
}

func (r *Runner) Specs() []models.ComparisonSpec { return r.specs }

// Summary describes what one Evaluate call did.
type Summary struct {
	Classifiers []string     `json:"classifiers"`
	Rows        int          `json:"rows"`
	Failures    []*UnitError `json:"-"`
}

// Failed reports whether any unit failed.
func (s Summary) Failed() bool { return len(s.Failures) > 0 }

func (s Summary) FailureMessages() []string {
	out := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		out[i] = f.Error()
	}
	return out
}

type classifierResult struct {
	evaluations []models.Evaluation
	failures    []*UnitError
}

// Evaluate runs the named classifiers (all of them when names is empty) and
// appends their rows to collector in classifier order then spec order. Unit
// failures are reported in the summary; the returned error is only set when
// ctx ends the run.
func (r *Runner) Evaluate(ctx context.Context, ds *dataset.Dataset, names []string, collector *report.Collector) (Summary, error) {
	start := time.Now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	classifiers := dataset.Select(ds.Classifiers(r.sources), names)
	results := make([]classifierResult, len(classifiers))
	done := make([]chan struct{}, len(classifiers))
	for i := range done {
		done[i] = make(chan struct{})
	}

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	go func() {
		for i, c := range classifiers {
			g.Go(func() error {
				defer close(done[i])
				results[i] = r.evaluateClassifier(ctx, ds, c)
				return nil
			})
		}
	}()

	var summary Summary
	for i, c := range classifiers {
		<-done[i]
		res := results[i]
		summary.Classifiers = append(summary.Classifiers, c.Name)
		summary.Failures = append(summary.Failures, res.failures...)

		for _, o := range r.observers {
			o.ClassifierStarted(c.Name)
		}
		for _, e := range res.evaluations {
			collector.Append(report.NewRow(e))
			summary.Rows++
			for _, o := range r.observers {
				o.Evaluated(e)
			}
		}
		var finishErr error
		if len(res.failures) > 0 {
			finishErr = res.failures[0]
			classifierFailures.Inc()
		}
		for _, o := range r.observers {
			o.ClassifierFinished(c.Name, finishErr)
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	r.logger.Info("dataset evaluated",
		"dataset", ds.Name,
		"classifiers", len(summary.Classifiers),
		"rows", summary.Rows,
		"failures", len(summary.Failures),
		"elapsed", time.Since(start))
	return summary, nil
}

func (r *Runner) evaluateClassifier(ctx context.Context, ds *dataset.Dataset, c dataset.Classifier) classifierResult {
	var res classifierResult

	predictions, err := ds.Predictions(c)
	if err != nil {
		r.logger.Warn("predictions unavailable", "classifier", c.Name, "error", err)
		unitsTotal.WithLabelValues("error").Inc()
		res.failures = append(res.failures, &UnitError{Classifier: c.Name, Err: err})
		return res
	}

	for _, spec := range r.specs {
		if err := ctx.Err(); err != nil {
			res.failures = append(res.failures, &UnitError{Classifier: c.Name, Spec: spec, Err: err})
			return res
		}

		unitStart := time.Now()
		table, err := metrics.BuildParallel(ctx, ds.People, predictions, spec, r.opts.Shards)
		if err != nil {
			unitsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("comparison failed", "classifier", c.Name, "comparison", spec.String(), "error", err)
			res.failures = append(res.failures, &UnitError{Classifier: c.Name, Spec: spec, Err: err})
			if !r.opts.ContinueOnError {
				res.evaluations = nil
				return res
			}
			continue
		}

		verdict := disparity.Evaluate(table)
		unitDuration.Observe(time.Since(unitStart).Seconds())
		unitsTotal.WithLabelValues("ok").Inc()
		if verdict.HasDisparateImpact {
			disparateTotal.WithLabelValues(spec.Feature).Inc()
		}
		res.evaluations = append(res.evaluations, models.Evaluation{
			Classifier: c.Name,
			Spec:       spec,
			Table:      table,
			Verdict:    verdict,
		})
	}
	return res
}
