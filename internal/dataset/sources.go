package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// SourceKind says where a classifier's predictions live in the dataset.
type SourceKind string

const (
	// SourceAuto picks vector or field from the entry's shape.
	SourceAuto SourceKind = ""
	// SourceVector is a flat array of 0/1 values.
	SourceVector SourceKind = "vector"
	// SourceField is an array of objects carrying the prediction under Field.
	SourceField SourceKind = "field"
	// SourceEmbedded reads Field from each person record.
	SourceEmbedded SourceKind = "embedded"
	// SourcePositional reads column Index of an array of arrays.
	SourcePositional SourceKind = "positional"
)

const (
	// DefaultPredictionField is used by field and embedded sources when Field is empty.
	DefaultPredictionField = "prediction"
	// LegacyPredictionIndex is the column older row-shaped exports kept predictions in.
	LegacyPredictionIndex = 10
)

// Source configures how predictions for one classifier are read.
type Source struct {
	Kind  SourceKind `yaml:"source" json:"source,omitempty" validate:"omitempty,oneof=vector field embedded positional"`
	Field string     `yaml:"field" json:"field,omitempty"`
	Index *int       `yaml:"index" json:"index,omitempty" validate:"omitempty,min=0"`
}

func (s Source) field() string {
	if s.Field == "" {
		return DefaultPredictionField
	}
	return s.Field
}

func (s Source) index() int {
	if s.Index == nil {
		return LegacyPredictionIndex
	}
	return *s.Index
}

// ParsePrediction converts a raw prediction to 0 or 1. Numbers, numeric strings
// and booleans are accepted; anything that is not exactly 0 or 1 is rejected.
func ParsePrediction(v models.Value) (int, error) {
	switch v.Kind() {
	case models.KindBool:
		if b, _ := v.Bool(); b {
			return 1, nil
		}
		return 0, nil
	case models.KindNumber, models.KindString:
		f, ok := v.Float()
		if !ok {
			break
		}
		switch f {
		case 0:
			return 0, nil
		case 1:
			return 1, nil
		}
	}
	return 0, fmt.Errorf("%w: got %s", metrics.ErrPredictionNotBinary, describe(v))
}

func describe(v models.Value) string {
	switch v.Kind() {
	case models.KindNull:
		return "null"
	case models.KindString:
		return strconv.Quote(v.String())
	case models.KindOther:
		return "non-scalar value"
	}
	return v.String()
}

func extract(raw json.RawMessage, src Source) (models.PredictionVector, error) {
	kind := src.Kind
	if kind == SourceAuto {
		var err error
		if kind, err = detect(raw); err != nil {
			return nil, err
		}
	}

	switch kind {
	case SourceVector:
		var values []models.Value
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: vector source: %v", metrics.ErrInputShape, err)
		}
		out := make(models.PredictionVector, len(values))
		for i, v := range values {
			p, err := ParsePrediction(v)
			if err != nil {
				return nil, &metrics.RecordError{Index: i, Err: err}
			}
			out[i] = p
		}
		return out, nil

	case SourceField:
		var objs []models.Record
		if err := json.Unmarshal(raw, &objs); err != nil {
			return nil, fmt.Errorf("%w: field source: %v", metrics.ErrInputShape, err)
		}
		return embedded(objs, src.field())

	case SourcePositional:
		var rows [][]models.Value
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("%w: positional source: %v", metrics.ErrInputShape, err)
		}
		idx := src.index()
		out := make(models.PredictionVector, len(rows))
		for i, row := range rows {
			if idx >= len(row) {
				return nil, &metrics.RecordError{Index: i, Err: fmt.Errorf("%w: row has %d columns, prediction at %d", metrics.ErrInputShape, len(row), idx)}
			}
			p, err := ParsePrediction(row[idx])
			if err != nil {
				return nil, &metrics.RecordError{Index: i, Err: err}
			}
			out[i] = p
		}
		return out, nil

	case SourceEmbedded:
		return nil, fmt.Errorf("%w: embedded source reads people, not a classifier entry", metrics.ErrInputShape)
	}
	return nil, fmt.Errorf("%w: unknown prediction source %q", metrics.ErrInputShape, kind)
}

// embedded reads field from every record.
func embedded(records []models.Record, field string) (models.PredictionVector, error) {
	out := make(models.PredictionVector, len(records))
	for i, rec := range records {
		v, ok := rec[field]
		if !ok {
			return nil, &metrics.RecordError{Index: i, Attribute: field, Err: metrics.ErrAttributeMissing}
		}
		p, err := ParsePrediction(v)
		if err != nil {
			return nil, &metrics.RecordError{Index: i, Attribute: field, Err: err}
		}
		out[i] = p
	}
	return out, nil
}

// detect inspects the first element: scalars mean a vector, objects mean a
// field source. Arrays of arrays are only read when positional is configured.
func detect(raw json.RawMessage) (SourceKind, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return "", fmt.Errorf("%w: prediction entry must be an array", metrics.ErrInputShape)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return "", fmt.Errorf("%w: %v", metrics.ErrInputShape, err)
	}
	if len(elems) == 0 {
		return SourceVector, nil
	}
	first := bytes.TrimSpace(elems[0])
	switch {
	case len(first) == 0:
	case first[0] == '{':
		return SourceField, nil
	case first[0] != '[':
		return SourceVector, nil
	}
	return "", fmt.Errorf("%w: cannot infer prediction source from %s", metrics.ErrInputShape, abbreviate(first))
}

func abbreviate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}

func sortedKeys(m map[string]Source) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
