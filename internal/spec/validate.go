package spec

import (
	"fmt"
)

// Validate applies cross-reference checks the structural schema cannot
// express, plus distribution invariant validation, so a malformed profile
// never reaches the executor.
func (p *ProfileSpec) Validate() error {
	var violations []string
	if p.ID == "" {
		violations = append(violations, "profile id is required")
	}
	if p.Generation.Count <= 0 {
		violations = append(violations, fmt.Sprintf("generation.count must be positive, got %d", p.Generation.Count))
	}
	if len(p.Generation.Products) == 0 {
		violations = append(violations, "generation.products must name at least one product")
	}
	switch p.Generation.ValidationMode {
	case "", ValidationStrict, ValidationWarn, ValidationNone:
	default:
		violations = append(violations, fmt.Sprintf("unknown validation_mode %q", p.Generation.ValidationMode))
	}
	if len(violations) > 0 {
		return schemaErr(p.ID, violations...)
	}

	// Distribution invariants surface as InvalidDistribution, not schema
	// errors: they are declared-data defects, checked here so they fail the
	// batch before any entity is generated.
	if err := p.Demographics.Age.Validate(); err != nil {
		return fmt.Errorf("demographics.age: %w", err)
	}
	if err := p.Demographics.Gender.Validate(); err != nil {
		return fmt.Errorf("demographics.gender: %w", err)
	}
	if p.Demographics.Geography != nil {
		for _, a := range p.Demographics.Geography.Attributes {
			if err := a.Dist.Validate(); err != nil {
				return fmt.Errorf("demographics.geography.%s: %w", a.Name, err)
			}
		}
	}
	if p.Clinical != nil {
		if err := p.Clinical.PrimaryCondition.Validate(); err != nil {
			return fmt.Errorf("clinical.primary_condition: %w", err)
		}
		for _, c := range p.Clinical.Comorbidities {
			if c.Probability < 0 || c.Probability > 1 {
				return schemaErr(p.ID, fmt.Sprintf("comorbidity %q probability %v outside [0,1]", c.Condition, c.Probability))
			}
		}
		if p.Clinical.Severity != nil {
			if err := p.Clinical.Severity.Validate(); err != nil {
				return fmt.Errorf("clinical.severity: %w", err)
			}
		}
	}
	for _, a := range p.Coverage {
		if err := a.Dist.Validate(); err != nil {
			return fmt.Errorf("coverage.%s: %w", a.Name, err)
		}
	}
	return nil
}

// Validate checks journey cross-references: unique event ids, resolvable
// depends_on and branch evaluation points, acyclic dependency edges, and
// well-formed conditions.
func (j *JourneySpec) Validate() error {
	var violations []string
	if j.ID == "" {
		violations = append(violations, "journey id is required")
	}
	if len(j.Phases) == 0 {
		violations = append(violations, "journey requires at least one phase")
	}

	ids := make(map[string]bool)
	deps := make(map[string]string)
	for _, ph := range j.Phases {
		for _, ev := range ph.Events {
			if ev.ID == "" {
				violations = append(violations, fmt.Sprintf("phase %q: event with empty id", ph.Name))
				continue
			}
			if ids[ev.ID] {
				violations = append(violations, fmt.Sprintf("duplicate event id %q", ev.ID))
			}
			ids[ev.ID] = true
			if ev.DependsOn != "" {
				deps[ev.ID] = ev.DependsOn
			}
			if p := ev.Prob(); p < 0 || p > 1 {
				violations = append(violations, fmt.Sprintf("event %q probability %v outside [0,1]", ev.ID, p))
			}
			violations = append(violations, validateCondition(ev)...)
		}
	}

	// Dangling references.
	for id, dep := range deps {
		if !ids[dep] {
			violations = append(violations, fmt.Sprintf("event %q depends on unknown event %q", id, dep))
		}
		if dep == id {
			violations = append(violations, fmt.Sprintf("event %q depends on itself", id))
		}
	}

	// Dependency edges must be acyclic or the state machine would stall.
	for id := range deps {
		seen := map[string]bool{id: true}
		cur := deps[id]
		for cur != "" {
			if seen[cur] {
				violations = append(violations, fmt.Sprintf("dependency cycle through event %q", id))
				break
			}
			seen[cur] = true
			cur = deps[cur]
		}
	}

	for _, br := range j.Branches {
		if !ids[br.At] {
			violations = append(violations, fmt.Sprintf("branch evaluation point %q is not a declared event", br.At))
		}
		for _, ev := range br.Events {
			if ev.ID == "" {
				violations = append(violations, fmt.Sprintf("branch at %q: injected event with empty id", br.At))
			} else if ids[ev.ID] {
				violations = append(violations, fmt.Sprintf("branch at %q: injected event id %q collides with a declared event", br.At, ev.ID))
			}
		}
	}

	if len(violations) > 0 {
		return schemaErr(j.ID, violations...)
	}

	// Timing distributions.
	for _, ph := range j.Phases {
		for _, ev := range ph.Events {
			d := ev.Timing.Dist()
			if err := d.Validate(); err != nil {
				return fmt.Errorf("event %q timing: %w", ev.ID, err)
			}
		}
	}
	return nil
}

func validateCondition(ev EventDef) []string {
	if ev.Condition == nil {
		return nil
	}
	c := ev.Condition
	switch c.Kind {
	case CondAttribute:
		if c.Attribute == "" || c.Operator == "" {
			return []string{fmt.Sprintf("event %q: attribute condition requires attribute and operator", ev.ID)}
		}
	case CondRandom:
		if c.Probability < 0 || c.Probability > 1 {
			return []string{fmt.Sprintf("event %q: random condition probability %v outside [0,1]", ev.ID, c.Probability)}
		}
	case CondPriorEvent:
		if c.EventID == "" {
			return []string{fmt.Sprintf("event %q: prior_event condition requires event_id", ev.ID)}
		}
	default:
		return []string{fmt.Sprintf("event %q: unknown condition kind %q", ev.ID, c.Kind)}
	}
	return nil
}
