// Package harness provides a scenario-based conformance framework for the
// generation engine.
//
// A scenario bundles a profile, an optional journey and trigger set, and a
// list of assertions over the generated cohort: entity counts, attribute
// bounds, timeline ordering, cross-domain event presence. Scenarios run the
// real pipeline end to end — the same generator the CLI uses — with a
// pinned seed and start date, so results are reproducible and suitable for
// golden-trace comparison.
package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cohortgen/cohortgen/internal/cohort"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Cohort is the generated cohort, retained for debugging and golden
	// trace extraction.
	Cohort *cohort.Cohort `json:"-"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// AddError adds an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario: generate the cohort, then evaluate every
// assertion. Assertion failures accumulate in the result; generation
// failures (bad spec, structural errors) return an error instead.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	cfg, err := sc.config()
	if err != nil {
		return nil, err
	}
	if cfg.Profile.Generation.Seed == nil {
		return nil, fmt.Errorf("scenario %s: profile must pin a seed", sc.Name)
	}

	gen := cohort.NewGenerator(cohort.WithLogger(slog.Default()))
	c, err := gen.Generate(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: generate: %w", sc.Name, err)
	}

	result := &Result{Pass: true, Cohort: c}
	for i, a := range sc.Assertions {
		if err := a.evaluate(c); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}
