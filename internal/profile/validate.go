package profile

import (
	"fmt"
	"strings"
)

// Clinical plausibility bounds for generated demographics. A value outside
// these ranges is a constraint violation: fatal under strict, a per-entity
// warning under warn.
const (
	minPlausibleAge = 0
	maxPlausibleAge = 120
)

// ConstraintError reports constraint violations on one generated entity
// under strict validation.
type ConstraintError struct {
	Index      int
	Violations []string
}

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("entity %d violates constraints: %s", e.Index, strings.Join(e.Violations, "; "))
}

// plausibilityWarnings checks generated attributes against clinical
// plausibility bounds. Returns nil when everything is in range.
func plausibilityWarnings(attrs map[string]any) []string {
	var warnings []string
	if age, ok := numericAttr(attrs, "age"); ok {
		if age < minPlausibleAge || age > maxPlausibleAge {
			warnings = append(warnings, fmt.Sprintf("age %v outside plausible range [%d, %d]", age, minPlausibleAge, maxPlausibleAge))
		}
	}
	if sev, ok := numericAttr(attrs, "severity"); ok {
		if sev < 0 {
			warnings = append(warnings, fmt.Sprintf("severity %v is negative", sev))
		}
	}
	return warnings
}

func numericAttr(attrs map[string]any, name string) (float64, bool) {
	v, ok := attrs[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
