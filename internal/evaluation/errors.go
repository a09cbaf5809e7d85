package evaluation

import (
	"fmt"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// UnitError names the (classifier, comparison spec) unit that failed. Spec is
// zero when the classifier failed before any comparison ran, e.g. when its
// predictions could not be read.
type UnitError struct {
	Classifier string
	Spec       models.ComparisonSpec
	Err        error
}

func (e *UnitError) Error() string {
	if e.Spec.Feature == "" {
		return fmt.Sprintf("classifier %q: %v", e.Classifier, e.Err)
	}
	return fmt.Sprintf("classifier %q, comparison %s: %v", e.Classifier, e.Spec, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
