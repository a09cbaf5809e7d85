package metrics

import (
	"fmt"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Comparator assigns records to the majority group, the minority group, or neither,
// for a single comparison spec. Numeric references are parsed once up front.
type Comparator struct {
	spec     models.ComparisonSpec
	minority float64
	majority float64
}

// NewComparator validates the spec and, in numeric mode, parses both references.
func NewComparator(spec models.ComparisonSpec) (*Comparator, error) {
	c := &Comparator{spec: spec}
	switch spec.Mode {
	case models.ModeCategorical:
	case models.ModeNumeric:
		var ok bool
		if c.minority, ok = spec.Minority.Float(); !ok {
			return nil, fmt.Errorf("%w: minority reference %q of %s", ErrNumericParse, spec.Minority, spec.Feature)
		}
		if c.majority, ok = spec.Majority.Float(); !ok {
			return nil, fmt.Errorf("%w: majority reference %q of %s", ErrNumericParse, spec.Majority, spec.Feature)
		}
	default:
		return nil, fmt.Errorf("unknown comparison mode %q for %s", spec.Mode, spec.Feature)
	}
	return c, nil
}

// Classify places one record.
//
// Categorical: equal to the minority reference -> Minority, equal to the majority
// reference -> Majority, otherwise Neither.
//
// Numeric: value <= minority reference -> Minority, value > majority reference ->
// Majority. With equal references this is a single split ("<=30" vs ">30"); with
// distinct references the gap between them is Neither. The minority check runs first.
func (c *Comparator) Classify(record models.Record) (models.Group, error) {
	value, ok := record[c.spec.Feature]
	if !ok {
		return models.GroupNeither, ErrAttributeMissing
	}

	if c.spec.Mode == models.ModeCategorical {
		switch {
		case value.Equal(c.spec.Minority):
			return models.GroupMinority, nil
		case value.Equal(c.spec.Majority):
			return models.GroupMajority, nil
		}
		return models.GroupNeither, nil
	}

	x, ok := value.Float()
	if !ok {
		return models.GroupNeither, fmt.Errorf("%w: %q", ErrNumericParse, value)
	}
	switch {
	case x <= c.minority:
		return models.GroupMinority, nil
	case x > c.majority:
		return models.GroupMajority, nil
	}
	return models.GroupNeither, nil
}

// Classify is a one-shot helper around NewComparator.
func Classify(record models.Record, spec models.ComparisonSpec) (models.Group, error) {
	c, err := NewComparator(spec)
	if err != nil {
		return models.GroupNeither, err
	}
	return c.Classify(record)
}
