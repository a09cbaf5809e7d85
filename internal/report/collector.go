package report

import (
	"sync"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Collector accumulates evaluation rows in insertion order
// (classifier order x comparison-spec order). It never deduplicates: evaluating
// the same dataset twice without Reset appends a second copy of every row.
//
// Safe for concurrent use.
type Collector struct {
	mu   sync.Mutex
	rows []models.EvaluationRow
}

func NewCollector() *Collector {
	return &Collector{}
}

// NewRow flattens one evaluation into an exportable row.
func NewRow(e models.Evaluation) models.EvaluationRow {
	return models.EvaluationRow{
		Classifier:         e.Classifier,
		Feature:            e.Spec.Feature,
		MajorityLabel:      e.Spec.Majority.String(),
		MinorityLabel:      e.Spec.Minority.String(),
		MajorityCount:      e.Table.MajorityCount(),
		MinorityCount:      e.Table.MinorityCount(),
		A:                  e.Table.A,
		B:                  e.Table.B,
		C:                  e.Table.C,
		D:                  e.Table.D,
		LikelihoodRatio:    e.Verdict.LikelihoodRatio,
		HasDisparateImpact: e.Verdict.HasDisparateImpact,
	}
}

// AppendRow assembles a row for (classifier, spec) and appends it.
func (c *Collector) AppendRow(classifier string, spec models.ComparisonSpec, table models.ContingencyTable, verdict models.Verdict) models.EvaluationRow {
	row := NewRow(models.Evaluation{Classifier: classifier, Spec: spec, Table: table, Verdict: verdict})
	c.Append(row)
	return row
}

// Append adds already-assembled rows, keeping their order.
func (c *Collector) Append(rows ...models.EvaluationRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, rows...)
}

// Rows returns a copy of every collected row.
func (c *Collector) Rows() []models.EvaluationRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.EvaluationRow, len(c.rows))
	copy(out, c.rows)
	return out
}

// RowsFor returns the rows of one classifier.
func (c *Collector) RowsFor(classifier string) []models.EvaluationRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.EvaluationRow
	for _, r := range c.rows {
		if r.Classifier == classifier {
			out = append(out, r)
		}
	}
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Reset drops every row. The caller owns the collector's lifetime.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = nil
}

// Table renders the collection as text cells, header row first.
func (c *Collector) Table() [][]string {
	rows := c.Rows()
	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string(nil), models.EvaluationRowHeader...))
	for _, r := range rows {
		out = append(out, r.Fields())
	}
	return out
}
