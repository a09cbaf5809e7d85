package disparity

import (
	"github.com/Criminal-Justice-Comps/Fairness/internal/metrics"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Thresholds of the disparate-impact rule of thumb
// (Feldman et al., "Certifying and removing disparate impact", 2015).
const (
	// LikelihoodRatioThreshold: a comparison has disparate impact when LR < 0.8.
	LikelihoodRatioThreshold = 0.8

	// PositiveLikelihoodRatioThreshold: LR+ <= 1.25 passes, LR+ > 1.25 fails.
	// Reported as a diagnostic only; it does not feed HasDisparateImpact.
	PositiveLikelihoodRatioThreshold = 1.25
)

// HasDisparateImpact applies the strict LR < 0.8 rule. Equality passes.
func HasDisparateImpact(likelihoodRatio float64) bool {
	return likelihoodRatio < LikelihoodRatioThreshold
}

// PositiveRatioPasses applies the secondary LR+ <= 1.25 check.
func PositiveRatioPasses(positiveLikelihoodRatio float64) bool {
	return positiveLikelihoodRatio <= PositiveLikelihoodRatioThreshold
}

// Evaluate derives the ratios of a table and classifies it.
//
// A likelihood ratio that is the sentinel 0 (sensitivity == 0) still counts as
// disparate impact; LikelihoodRatioUndefined marks it so reports can say why.
func Evaluate(table models.ContingencyTable) models.Verdict {
	ratios := metrics.Ratios(table)
	return models.Verdict{
		Ratios:                           ratios,
		LikelihoodRatio:                  ratios.LikelihoodRatio,
		HasDisparateImpact:               HasDisparateImpact(ratios.LikelihoodRatio),
		PositiveLikelihoodRatio:          ratios.PositiveLikelihoodRatio,
		PositiveRatioPass:                PositiveRatioPasses(ratios.PositiveLikelihoodRatio),
		LikelihoodRatioUndefined:         ratios.Sensitivity == 0,
		PositiveLikelihoodRatioUndefined: ratios.Specificity == 1,
	}
}
