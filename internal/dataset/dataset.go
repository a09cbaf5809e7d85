package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// PeopleKey is the dataset entry holding the ordered records.
const PeopleKey = "people"

// Dataset is a decoded input document: the people plus one raw entry per
// classifier, kept in document order.
type Dataset struct {
	Name    string
	People  []models.Record
	order   []string
	entries map[string]json.RawMessage
}

// LoadFile reads and decodes a dataset file.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ds, nil
}

// Parse decodes a dataset held in memory.
func Parse(data []byte) (*Dataset, error) {
	return Decode(strings.NewReader(string(data)))
}

// Decode reads a JSON object of the form
//
//	{"people": [{...}, ...], "<classifier>": [...], ...}
//
// The object is streamed token by token so the classifier order of the document
// survives; encoding into a map would lose it.
func Decode(r io.Reader) (*Dataset, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("dataset must be a JSON object")
	}

	ds := &Dataset{entries: make(map[string]json.RawMessage)}
	sawPeople := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read entry %q: %w", key, err)
		}

		if key == PeopleKey {
			if err := json.Unmarshal(raw, &ds.People); err != nil {
				return nil, fmt.Errorf("decode people: %w", err)
			}
			sawPeople = true
			continue
		}
		if _, seen := ds.entries[key]; !seen {
			ds.order = append(ds.order, key)
		}
		ds.entries[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read dataset end: %w", err)
	}

	if !sawPeople {
		return nil, fmt.Errorf("%w: dataset has no %q entry", metrics.ErrInputShape, PeopleKey)
	}
	return ds, nil
}

// Len is the number of people.
func (d *Dataset) Len() int { return len(d.People) }

// Keys lists the non-people entries in document order.
func (d *Dataset) Keys() []string {
	return append([]string(nil), d.order...)
}

// Has reports whether the document carries an entry for the classifier.
func (d *Dataset) Has(classifier string) bool {
	_, ok := d.entries[classifier]
	return ok
}

// Classifier pairs a classifier name with the way its predictions are read.
type Classifier struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// Classifiers lists what to evaluate: every entry of the document in order, then
// configured embedded classifiers the document does not name.
func (d *Dataset) Classifiers(sources map[string]Source) []Classifier {
	out := make([]Classifier, 0, len(d.order)+len(sources))
	for _, name := range d.order {
		out = append(out, Classifier{Name: name, Source: sources[name]})
	}
	for _, name := range sortedKeys(sources) {
		if sources[name].Kind == SourceEmbedded && !d.Has(name) {
			out = append(out, Classifier{Name: name, Source: sources[name]})
		}
	}
	return out
}

// Select keeps the named classifiers, in the order requested. Names the dataset
// cannot provide are kept too, so evaluating them reports a missing prediction vector.
func Select(all []Classifier, names []string) []Classifier {
	if len(names) == 0 {
		return all
	}
	byName := make(map[string]Classifier, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	out := make([]Classifier, 0, len(names))
	for _, name := range names {
		if c, ok := byName[name]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, Classifier{Name: name})
	}
	return out
}

// Predictions extracts the binary prediction vector of a classifier.
func (d *Dataset) Predictions(c Classifier) (models.PredictionVector, error) {
	if c.Source.Kind == SourceEmbedded {
		return embedded(d.People, c.Source.field())
	}
	raw, ok := d.entries[c.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no prediction vector for classifier %q", metrics.ErrInputShape, c.Name)
	}
	return extract(raw, c.Source)
}
