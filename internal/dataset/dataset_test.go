package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "people": [
    {"sex": "Male", "age": 25, "race": "Caucasian", "prediction": 1},
    {"sex": "Female", "age": "41", "race": "Hispanic", "prediction": 0},
    {"sex": "Male", "age": 63, "race": "Other", "prediction": "1"}
  ],
  "random": [0, 1, 1],
  "tree": [{"prediction": true}, {"prediction": false}, {"prediction": 1}],
  "legacy": [[0,0,0,0,0,0,0,0,0,0,1], [0,0,0,0,0,0,0,0,0,0,0], [0,0,0,0,0,0,0,0,0,0,1]]
}`

func TestDecode_KeepsDocumentOrder(t *testing.T) {
	ds, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"random", "tree", "legacy"}, ds.Keys())
	assert.Equal(t, models.StringValue("Female"), ds.People[1]["sex"])
	assert.Equal(t, models.NumberValue(63), ds.People[2]["age"])
}

func TestDecode_RequiresPeople(t *testing.T) {
	_, err := Parse([]byte(`{"random": [0, 1]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, metrics.ErrInputShape))
}

func TestDecode_RejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1, 2, 3]`))
	assert.Error(t, err)
}

func TestPredictions_Sources(t *testing.T) {
	ds, err := Parse([]byte(sample))
	require.NoError(t, err)

	legacyIndex := LegacyPredictionIndex
	cases := []struct {
		name string
		c    Classifier
		want models.PredictionVector
	}{
		{"auto vector", Classifier{Name: "random"}, models.PredictionVector{0, 1, 1}},
		{"auto field", Classifier{Name: "tree"}, models.PredictionVector{1, 0, 1}},
		{"explicit vector", Classifier{Name: "random", Source: Source{Kind: SourceVector}}, models.PredictionVector{0, 1, 1}},
		{"positional default index", Classifier{Name: "legacy", Source: Source{Kind: SourcePositional}}, models.PredictionVector{1, 0, 1}},
		{"positional explicit index", Classifier{Name: "legacy", Source: Source{Kind: SourcePositional, Index: &legacyIndex}}, models.PredictionVector{1, 0, 1}},
		{"embedded", Classifier{Name: "ANN", Source: Source{Kind: SourceEmbedded}}, models.PredictionVector{1, 0, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ds.Predictions(tc.c)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPredictions_Errors(t *testing.T) {
	doc := `{
	  "people": [{"sex": "Male"}, {"sex": "Female"}],
	  "nested": [[0, 1], [1, 0]],
	  "scalar": 1,
	  "ternary": [0, 2],
	  "labels": [{"label": 1}, {"label": 0}]
	}`
	ds, err := Parse([]byte(doc))
	require.NoError(t, err)

	cases := []struct {
		name   string
		c      Classifier
		target error
	}{
		{"missing classifier", Classifier{Name: "absent"}, metrics.ErrInputShape},
		{"array of arrays needs positional", Classifier{Name: "nested"}, metrics.ErrInputShape},
		{"not an array", Classifier{Name: "scalar"}, metrics.ErrInputShape},
		{"non binary", Classifier{Name: "ternary"}, metrics.ErrPredictionNotBinary},
		{"field missing", Classifier{Name: "labels"}, metrics.ErrAttributeMissing},
		{"embedded missing", Classifier{Name: "ANN", Source: Source{Kind: SourceEmbedded}}, metrics.ErrAttributeMissing},
		{"positional out of range", Classifier{Name: "nested", Source: Source{Kind: SourcePositional}}, metrics.ErrInputShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ds.Predictions(tc.c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)
		})
	}
}

func TestPredictions_FieldName(t *testing.T) {
	ds, err := Parse([]byte(`{"people": [{}, {}], "labels": [{"label": 1}, {"label": 0}]}`))
	require.NoError(t, err)

	got, err := ds.Predictions(Classifier{Name: "labels", Source: Source{Kind: SourceField, Field: "label"}})
	require.NoError(t, err)
	assert.Equal(t, models.PredictionVector{1, 0}, got)
}

func TestPredictions_ErrorLocatesRecord(t *testing.T) {
	ds, err := Parse([]byte(`{"people": [{}, {}, {}], "random": [0, 1, "yes"]}`))
	require.NoError(t, err)

	_, err = ds.Predictions(Classifier{Name: "random"})
	var recErr *metrics.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, 2, recErr.Index)
}

func TestParsePrediction(t *testing.T) {
	ok := map[string]struct {
		in   models.Value
		want int
	}{
		"zero":        {models.NumberValue(0), 0},
		"one":         {models.NumberValue(1), 1},
		"string one":  {models.StringValue("1"), 1},
		"float zero":  {models.StringValue("0.0"), 0},
		"bool true":   {models.BoolValue(true), 1},
		"bool false":  {models.BoolValue(false), 0},
		"padded zero": {models.StringValue(" 0 "), 0},
	}
	for name, tc := range ok {
		t.Run(name, func(t *testing.T) {
			got, err := ParsePrediction(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []models.Value{models.NumberValue(2), models.NumberValue(0.5), models.StringValue("yes"), {}} {
		_, err := ParsePrediction(bad)
		assert.ErrorIs(t, err, metrics.ErrPredictionNotBinary)
	}
}

func TestClassifiers_OrderAndEmbedded(t *testing.T) {
	ds, err := Parse([]byte(sample))
	require.NoError(t, err)

	sources := map[string]Source{
		"legacy": {Kind: SourcePositional},
		"ANN":    {Kind: SourceEmbedded},
		"random": {Kind: SourceVector},
	}
	got := ds.Classifiers(sources)

	names := make([]string, len(got))
	for i, c := range got {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"random", "tree", "legacy", "ANN"}, names)
	assert.Equal(t, SourcePositional, got[2].Source.Kind)
	assert.Equal(t, SourceAuto, got[1].Source.Kind)
}

func TestSelect(t *testing.T) {
	all := []Classifier{{Name: "random"}, {Name: "tree"}, {Name: "ANN", Source: Source{Kind: SourceEmbedded}}}

	assert.Equal(t, all, Select(all, nil))

	got := Select(all, []string{"ANN", "missing"})
	require.Len(t, got, 2)
	assert.Equal(t, SourceEmbedded, got[0].Source.Kind)
	assert.Equal(t, "missing", got[1].Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compas.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "compas", ds.Name)
	assert.Equal(t, 3, ds.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
