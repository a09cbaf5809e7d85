package evaluation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Result is a completed run: its metadata, its rows in order, and the summary.
type Result struct {
	Run     models.Run
	Rows    []models.EvaluationRow
	Summary Summary
}

// Execute evaluates ds into a fresh collector under a new run ID.
func (r *Runner) Execute(ctx context.Context, ds *dataset.Dataset, names []string) (Result, error) {
	run := models.Run{
		ID:        uuid.NewString(),
		Dataset:   ds.Name,
		StartedAt: time.Now().UTC(),
	}

	collector := report.NewCollector()
	summary, err := r.Evaluate(ctx, ds, names, collector)
	run.Classifiers = summary.Classifiers
	run.RowCount = summary.Rows
	run.Failures = summary.FailureMessages()

	return Result{Run: run, Rows: collector.Rows(), Summary: summary}, err
}
