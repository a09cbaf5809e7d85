package evaluation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// unitsTotal counts (classifier, comparison) units by result
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairness_units_total",
		Help: "Evaluated classifier/comparison units by result",
	}, []string{"result"})

	// disparateTotal counts units flagged with disparate impact. Classifier names
	// come from request bodies, so only the feature is a label.
	disparateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairness_disparate_impact_total",
		Help: "Units whose likelihood ratio fell below the disparate-impact threshold",
	}, []string{"feature"})

	// unitDuration tracks table build plus verdict latency
	unitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fairness_unit_duration_seconds",
		Help:    "Time to build and judge one contingency table",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10), // 50us to ~13s
	})

	// classifierFailures counts classifiers that ended with at least one failed unit
	classifierFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fairness_classifier_failures_total",
		Help: "Classifiers with at least one failed unit",
	})

	// runDuration tracks whole-dataset evaluations
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fairness_run_duration_seconds",
		Help:    "Time to evaluate every classifier of a dataset",
		Buckets: prometheus.DefBuckets,
	})
)
