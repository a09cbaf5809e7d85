package metrics

import (
	"errors"
	"fmt"
)

var (
	// ErrInputShape indicates records and predictions cannot be paired up.
	ErrInputShape = errors.New("input shape mismatch")

	// ErrAttributeMissing indicates a record lacks the attribute a comparison needs.
	ErrAttributeMissing = errors.New("attribute missing")

	// ErrNumericParse indicates a numeric-threshold comparison met a non-numeric value.
	ErrNumericParse = errors.New("value is not numeric")

	// ErrPredictionNotBinary is an input-shape error: predictions must be 0 or 1.
	ErrPredictionNotBinary = fmt.Errorf("%w: prediction is not binary", ErrInputShape)
)

// RecordError locates a failure at one record of the dataset.
type RecordError struct {
	Index     int
	Attribute string
	Err       error
}

func (e *RecordError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d, attribute %q: %v", e.Index, e.Attribute, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
