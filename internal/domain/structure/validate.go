package structure

import (
	"fmt"
	"strings"

	"github.com/turtacn/ContactScope/pkg/errors"
)

// ValidateLabels rejects blank labels and labels used more than once.
func ValidateLabels(labels []string) error {
	seen := make(map[string]struct{}, len(labels))
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return errors.InvalidParam("structure label must not be empty").
				WithDetail(fmt.Sprintf("index=%d", i))
		}
		if _, dup := seen[l]; dup {
			return errors.New(errors.CodeLabelCollision, "duplicate structure label").
				WithDetail("label=" + l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// ValidateSet checks a multi-structure request before analysis: at least one
// structure, unique non-empty labels and no structure without atoms.
func ValidateSet(set []*Structure) error {
	if len(set) == 0 {
		return errors.InvalidParam("at least one structure is required")
	}
	labels := make([]string, len(set))
	for i, s := range set {
		labels[i] = s.Label
	}
	if err := ValidateLabels(labels); err != nil {
		return err
	}
	for _, s := range set {
		if len(s.Atoms) == 0 {
			return errors.New(errors.CodeEmptyStructure, "structure contains no atom records").
				WithDetail("label=" + s.Label)
		}
	}
	return nil
}
