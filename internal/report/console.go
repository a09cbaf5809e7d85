package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Criminal-Justice-Comps/Fairness/internal/disparity"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

const separator = "----------------------------"

// Console prints human-readable diagnostics for each evaluation. The output is
// observational and not meant to be parsed.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) ClassifierStarted(classifier string) {
	fmt.Fprintln(c.w, separator)
	fmt.Fprintln(c.w, "TESTING:", classifier)
}

func (c *Console) ClassifierFinished(classifier string, err error) {
	if err != nil {
		fmt.Fprintf(c.w, "ABORTED %s: %v\n", classifier, err)
	}
	fmt.Fprintln(c.w, separator)
}

// Evaluated prints the table, group counts and both threshold verdicts.
func (c *Console) Evaluated(e models.Evaluation) {
	spec, t, v := e.Spec, e.Table, e.Verdict

	fmt.Fprintln(c.w, "Confusion Matrix Vals:", t)
	if spec.Mode == models.ModeNumeric {
		fmt.Fprintln(c.w, "Under", spec.Minority, "total count:", t.MinorityCount())
		fmt.Fprintln(c.w, "Over", spec.Majority, "total count:", t.MajorityCount())
		fmt.Fprintln(c.w, "Feature:", spec.Feature)
		fmt.Fprintln(c.w, "Testing: under", spec.Minority, "as compared to over", spec.Majority)
	} else {
		fmt.Fprintln(c.w, spec.Minority, "total count:", t.MinorityCount())
		fmt.Fprintln(c.w, spec.Majority, "total count:", t.MajorityCount())
		fmt.Fprintln(c.w, "Feature:", spec.Feature)
		fmt.Fprintln(c.w, "Testing:", spec.Minority, "as compared to", spec.Majority)
	}

	lrPos := formatRatio(v.PositiveLikelihoodRatio)
	if v.PositiveRatioPass {
		fmt.Fprintf(c.w, "PASS - value %s <= %s%s\n", lrPos, formatRatio(disparity.PositiveLikelihoodRatioThreshold),
			undefinedNote(v.PositiveLikelihoodRatioUndefined, "specificity is 1"))
	} else {
		fmt.Fprintf(c.w, "FAIL - value %s > %s\n", lrPos, formatRatio(disparity.PositiveLikelihoodRatioThreshold))
	}
	fmt.Fprintln(c.w, separator)

	lr := formatRatio(v.LikelihoodRatio)
	if v.HasDisparateImpact {
		fmt.Fprintf(c.w, "FAIL - value %s < %s%s\n", lr, formatRatio(disparity.LikelihoodRatioThreshold),
			undefinedNote(v.LikelihoodRatioUndefined, "sensitivity is 0"))
	} else {
		fmt.Fprintf(c.w, "PASS - value %s >= %s\n", lr, formatRatio(disparity.LikelihoodRatioThreshold))
	}
	fmt.Fprintln(c.w, separator)
}

// Summary prints one line per row, flagging the disparate ones.
func (c *Console) Summary(rows []models.EvaluationRow) {
	var b strings.Builder
	flagged := 0
	for _, r := range rows {
		mark := " "
		if r.HasDisparateImpact {
			mark = "!"
			flagged++
		}
		fmt.Fprintf(&b, "%s %-12s %-8s %s vs %s  LR=%s\n", mark, r.Classifier, r.Feature, r.MinorityLabel, r.MajorityLabel,
			formatRatio(r.LikelihoodRatio))
	}
	fmt.Fprintf(&b, "%d of %d comparisons show disparate impact\n", flagged, len(rows))
	io.WriteString(c.w, b.String())
}

func formatRatio(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func undefinedNote(undefined bool, reason string) string {
	if !undefined {
		return ""
	}
	return " (undefined: " + reason + ")"
}
