package normalize

import (
	"fmt"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// Canonical checks that v is already normalized and returns a copy of it unchanged.
// Continuous values must lie in [0,1], indicators must be 0 or 1 and every
// enumeration group present in the schema must have exactly one member set.
func Canonical(v models.FeatureVector) (models.FeatureVector, error) {
	if v.Schema == nil || len(v.Values) != v.Schema.Len() {
		return v, models.NewConfigurationError("canonical", "vector does not match its schema")
	}
	for i, x := range v.Continuous() {
		if !(x >= 0 && x <= 1) {
			return v, models.NewValidationError(v.Schema.Name(i), x, "outside [0,1]")
		}
	}
	hot := make(map[string]int)
	seen := make(map[string]bool)
	for i, x := range v.Indicators() {
		name := v.Schema.Name(v.Schema.NumContinuous() + i)
		if x != 0 && x != 1 {
			return v, models.NewValidationError(name, x, "indicator must be 0 or 1")
		}
		g, _, ok := GroupOf(name)
		if !ok {
			continue
		}
		seen[g.Column] = true
		if x == 1 {
			hot[g.Column]++
		}
	}
	for _, g := range groups {
		if seen[g.Column] && hot[g.Column] != 1 {
			return v, models.NewValidationError(g.Column, hot[g.Column], fmt.Sprintf("expected exactly one %s indicator set", g.Column))
		}
	}
	return v.Clone(), nil
}
