package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record represents one person: attribute name -> scalar value.
type Record map[string]Value

// PredictionVector holds binary predictions (0/1), index-aligned with the dataset's records.
type PredictionVector []int

// ComparisonMode selects how a protected attribute is split into groups.
type ComparisonMode string

const (
	ModeCategorical ComparisonMode = "categorical" // exact equality against the references
	ModeNumeric     ComparisonMode = "numeric"     // value <= minority vs value > majority
)

// ParseComparisonMode accepts the canonical names plus "numeric-threshold".
func ParseComparisonMode(s string) (ComparisonMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "categorical":
		return ModeCategorical, nil
	case "numeric", "numeric-threshold", "threshold":
		return ModeNumeric, nil
	}
	return "", fmt.Errorf("unknown comparison mode %q", s)
}

// UnmarshalText lets configs spell the numeric mode as "numeric-threshold".
func (m *ComparisonMode) UnmarshalText(text []byte) error {
	mode, err := ParseComparisonMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ComparisonSpec describes one majority/minority contrast over a protected attribute.
type ComparisonSpec struct {
	Feature  string         `json:"feature" yaml:"feature" validate:"required"`
	Mode     ComparisonMode `json:"mode" yaml:"mode" validate:"required,oneof=categorical numeric"`
	Majority Value          `json:"majority" yaml:"majority"`
	Minority Value          `json:"minority" yaml:"minority"`
}

func (s ComparisonSpec) String() string {
	if s.Mode == ModeNumeric {
		return fmt.Sprintf("%s: under %s vs over %s", s.Feature, s.Minority, s.Majority)
	}
	return fmt.Sprintf("%s: %s vs %s", s.Feature, s.Minority, s.Majority)
}

// Group is the side of a comparison a record falls on.
type Group int

const (
	GroupNeither Group = iota
	GroupMajority
	GroupMinority
)

func (g Group) String() string {
	switch g {
	case GroupMajority:
		return "majority"
	case GroupMinority:
		return "minority"
	default:
		return "neither"
	}
}

// ContingencyTable is the 2x2 table of group membership against prediction.
//
//	        | minority | majority
//	pred=0  |    a     |    b
//	pred=1  |    c     |    d
type ContingencyTable struct {
	A int `json:"a"` // minority, predicted negative
	B int `json:"b"` // majority, predicted negative
	C int `json:"c"` // minority, predicted positive
	D int `json:"d"` // majority, predicted positive
}

// Count increments the cell selected by group and prediction. Neither is ignored.
func (t *ContingencyTable) Count(g Group, prediction int) {
	switch {
	case g == GroupMinority && prediction == 0:
		t.A++
	case g == GroupMajority && prediction == 0:
		t.B++
	case g == GroupMinority && prediction == 1:
		t.C++
	case g == GroupMajority && prediction == 1:
		t.D++
	}
}

// Merge returns the cell-wise sum of two tables.
func (t ContingencyTable) Merge(o ContingencyTable) ContingencyTable {
	return ContingencyTable{A: t.A + o.A, B: t.B + o.B, C: t.C + o.C, D: t.D + o.D}
}

func (t ContingencyTable) Total() int         { return t.A + t.B + t.C + t.D }
func (t ContingencyTable) MajorityCount() int { return t.B + t.D }
func (t ContingencyTable) MinorityCount() int { return t.A + t.C }

func (t ContingencyTable) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", t.A, t.B, t.C, t.D)
}

// RatioResult holds the ratios derived from a ContingencyTable.
type RatioResult struct {
	Sensitivity             float64 `json:"sensitivity"`
	Specificity             float64 `json:"specificity"`
	PositiveLikelihoodRatio float64 `json:"positiveLikelihoodRatio"`
	LikelihoodRatio         float64 `json:"likelihoodRatio"`
}

// Verdict is the disparate-impact classification of one table.
type Verdict struct {
	Ratios                  RatioResult `json:"ratios"`
	LikelihoodRatio         float64     `json:"likelihoodRatio"`
	HasDisparateImpact      bool        `json:"hasDisparateImpact"`
	PositiveLikelihoodRatio float64     `json:"positiveLikelihoodRatio"`
	PositiveRatioPass       bool        `json:"positiveRatioPass"`
	// The ratios below are the sentinel 0, not a measurement.
	LikelihoodRatioUndefined         bool `json:"likelihoodRatioUndefined,omitempty"`
	PositiveLikelihoodRatioUndefined bool `json:"positiveLikelihoodRatioUndefined,omitempty"`
}

// Evaluation is one (classifier, comparison spec) unit before it is flattened into a row.
type Evaluation struct {
	Classifier string           `json:"classifier"`
	Spec       ComparisonSpec   `json:"spec"`
	Table      ContingencyTable `json:"table"`
	Verdict    Verdict          `json:"verdict"`
}

// EvaluationRowHeader is the literal header row of an exported report.
var EvaluationRowHeader = []string{
	"classifier", "feature", "majority_label", "minority_label", "majority_count",
	"minority_count", "a", "b", "c", "d", "likelihood_ratio", "has_disparate_impact",
}

// EvaluationRow is the unit of exported output.
type EvaluationRow struct {
	Classifier         string  `json:"classifier"`
	Feature            string  `json:"feature"`
	MajorityLabel      string  `json:"majorityLabel"`
	MinorityLabel      string  `json:"minorityLabel"`
	MajorityCount      int     `json:"majorityCount"`
	MinorityCount      int     `json:"minorityCount"`
	A                  int     `json:"a"`
	B                  int     `json:"b"`
	C                  int     `json:"c"`
	D                  int     `json:"d"`
	LikelihoodRatio    float64 `json:"likelihoodRatio"`
	HasDisparateImpact bool    `json:"hasDisparateImpact"`
}

// Fields serializes the row in header order.
func (r EvaluationRow) Fields() []string {
	return []string{
		r.Classifier,
		r.Feature,
		r.MajorityLabel,
		r.MinorityLabel,
		strconv.Itoa(r.MajorityCount),
		strconv.Itoa(r.MinorityCount),
		strconv.Itoa(r.A),
		strconv.Itoa(r.B),
		strconv.Itoa(r.C),
		strconv.Itoa(r.D),
		strconv.FormatFloat(r.LikelihoodRatio, 'f', -1, 64),
		strconv.FormatBool(r.HasDisparateImpact),
	}
}

// Table rebuilds the contingency table carried by the row.
func (r EvaluationRow) Table() ContingencyTable {
	return ContingencyTable{A: r.A, B: r.B, C: r.C, D: r.D}
}

// Run is the metadata of one evaluation over a dataset.
type Run struct {
	ID          string    `json:"runId"`
	Dataset     string    `json:"dataset"`
	StartedAt   time.Time `json:"startedAt"`
	Classifiers []string  `json:"classifiers"`
	RowCount    int       `json:"rowCount"`
	Failures    []string  `json:"failures,omitempty"`
}
