package metrics

import (
	"context"
	"fmt"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
	"golang.org/x/sync/errgroup"
)

// minShardSize keeps tiny populations on the serial path.
const minShardSize = 1024

// Build accumulates the 2x2 table for one comparison spec.
//
// Every record is classified by the Comparator; records in neither group are
// skipped and contribute to no cell. The remaining records land in:
//
//	a = minority & pred 0   b = majority & pred 0
//	c = minority & pred 1   d = majority & pred 1
//
// A length mismatch between records and predictions fails before any cell is touched.
func Build(records []models.Record, predictions models.PredictionVector, spec models.ComparisonSpec) (models.ContingencyTable, error) {
	if err := checkShape(records, predictions); err != nil {
		return models.ContingencyTable{}, err
	}
	cmp, err := NewComparator(spec)
	if err != nil {
		return models.ContingencyTable{}, err
	}
	return cmp.count(records, predictions, 0)
}

// BuildParallel is Build with the records split into contiguous shards counted
// concurrently and summed. The table is identical to Build's. When several shards
// fail, the error reported is the one at the lowest record index.
func BuildParallel(ctx context.Context, records []models.Record, predictions models.PredictionVector, spec models.ComparisonSpec, shards int) (models.ContingencyTable, error) {
	if err := checkShape(records, predictions); err != nil {
		return models.ContingencyTable{}, err
	}
	cmp, err := NewComparator(spec)
	if err != nil {
		return models.ContingencyTable{}, err
	}

	n := len(records)
	if shards <= 1 || n < shards*minShardSize {
		return cmp.count(records, predictions, 0)
	}

	size := (n + shards - 1) / shards
	partials := make([]models.ContingencyTable, shards)
	errs := make([]error, shards)

	// No WithContext: every shard must finish so the lowest-index error wins.
	var g errgroup.Group
	for i := 0; i < shards; i++ {
		lo := i * size
		if lo >= n {
			break
		}
		hi := min(lo+size, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			partials[i], errs[i] = cmp.count(records[lo:hi], predictions[lo:hi], lo)
			return errs[i]
		})
	}
	_ = g.Wait()

	var table models.ContingencyTable
	for i := range partials {
		if errs[i] != nil {
			return models.ContingencyTable{}, errs[i]
		}
		table = table.Merge(partials[i])
	}
	return table, nil
}

// count classifies records[i] against predictions[i]; offset is the index of
// records[0] in the full dataset, used in error messages.
func (c *Comparator) count(records []models.Record, predictions models.PredictionVector, offset int) (models.ContingencyTable, error) {
	var table models.ContingencyTable
	for i, record := range records {
		p := predictions[i]
		if p != 0 && p != 1 {
			return models.ContingencyTable{}, &RecordError{Index: offset + i, Err: fmt.Errorf("%w: got %d", ErrPredictionNotBinary, p)}
		}
		group, err := c.Classify(record)
		if err != nil {
			return models.ContingencyTable{}, &RecordError{Index: offset + i, Attribute: c.spec.Feature, Err: err}
		}
		table.Count(group, p)
	}
	return table, nil
}

func checkShape(records []models.Record, predictions models.PredictionVector) error {
	if len(records) != len(predictions) {
		return fmt.Errorf("%w: %d records but %d predictions", ErrInputShape, len(records), len(predictions))
	}
	return nil
}
