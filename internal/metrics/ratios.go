package metrics

import "github.com/Criminal-Justice-Comps/Fairness/pkg/models"

// Sensitivity is the share of the majority group predicted positive.
//
// sensitivity = d / (b + d), 0 when the majority group is empty.
func Sensitivity(t models.ContingencyTable) float64 {
	if t.B+t.D == 0 {
		return 0
	}
	return float64(t.D) / float64(t.B+t.D)
}

// Specificity is the share of the minority group predicted negative.
//
// specificity = a / (a + c), 0 when the minority group is empty.
func Specificity(t models.ContingencyTable) float64 {
	if t.A+t.C == 0 {
		return 0
	}
	return float64(t.A) / float64(t.A+t.C)
}

// PositiveLikelihoodRatio computes
//
//	LR+ = sensitivity / (1 - specificity)
//
// Returns the sentinel 0 when specificity == 1 (no minority member predicted
// positive). Callers that care must check specificity to tell it from a real 0.
func PositiveLikelihoodRatio(t models.ContingencyTable) float64 {
	sens := Sensitivity(t)
	spec := Specificity(t)
	if spec == 1 {
		return 0
	}
	return sens / (1 - spec)
}

// LikelihoodRatio computes the disparate-impact ratio of Feldman et al.
//
//	LR = (1 - specificity) / sensitivity
//
// This is not the reciprocal of PositiveLikelihoodRatio. Returns the sentinel 0
// when sensitivity == 0.
func LikelihoodRatio(t models.ContingencyTable) float64 {
	sens := Sensitivity(t)
	spec := Specificity(t)
	if sens == 0 {
		return 0
	}
	return (1 - spec) / sens
}

// Ratios derives every ratio of the table at once.
func Ratios(t models.ContingencyTable) models.RatioResult {
	return models.RatioResult{
		Sensitivity:             Sensitivity(t),
		Specificity:             Specificity(t),
		PositiveLikelihoodRatio: PositiveLikelihoodRatio(t),
		LikelihoodRatio:         LikelihoodRatio(t),
	}
}
