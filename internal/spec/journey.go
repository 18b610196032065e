package spec

import "github.com/cohortgen/cohortgen/internal/dist"

// JourneySpec is a declarative description of temporal care events for one
// entity: ordered phases of ordered events, plus branching rules evaluated
// at named points.
type JourneySpec struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	StartTrigger string       `json:"start_trigger" yaml:"start_trigger"`
	Phases       []Phase      `json:"phases" yaml:"phases"`
	Branches     []BranchRule `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Phase is an ordered group of event definitions.
type Phase struct {
	Name   string     `json:"name" yaml:"name"`
	Events []EventDef `json:"events" yaml:"events"`
}

// EventDef declares one schedulable event.
//
// When DependsOn is set, Timing is relative to the dependency's actual
// resolved time; otherwise it is relative to the timeline start date.
// Parameters is an opaque payload forwarded to downstream handlers.
type EventDef struct {
	ID          string          `json:"id" yaml:"id"`
	Type        string          `json:"type" yaml:"type"`
	Timing      Timing          `json:"timing" yaml:"timing"`
	DependsOn   string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Condition   *EventCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
	Probability *float64        `json:"probability,omitempty" yaml:"probability,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Prob returns the effective firing probability (default 1).
func (e EventDef) Prob() float64 {
	if e.Probability == nil {
		return 1
	}
	return *e.Probability
}

// Timing declares when an event occurs, in days. A fixed day is the
// degenerate distribution; base with variance is uniform over
// [base-variance, base+variance]; an explicit distribution overrides both.
type Timing struct {
	Day          *int       `json:"day,omitempty" yaml:"day,omitempty"`
	Base         float64    `json:"base,omitempty" yaml:"base,omitempty"`
	Variance     float64    `json:"variance,omitempty" yaml:"variance,omitempty"`
	Distribution *dist.Spec `json:"distribution,omitempty" yaml:"distribution,omitempty"`
}

// Dist lowers the timing to a delay distribution in days.
func (t Timing) Dist() dist.Spec {
	if t.Distribution != nil {
		return *t.Distribution
	}
	if t.Day != nil {
		return dist.Fixed(*t.Day)
	}
	if t.Variance > 0 {
		return dist.Uniform(t.Base-t.Variance, t.Base+t.Variance)
	}
	return dist.Fixed(int(t.Base))
}

// ConditionKind identifies an event condition variant.
type ConditionKind string

const (
	// CondAttribute compares an entity attribute against a value.
	CondAttribute ConditionKind = "attribute"
	// CondRandom is an independent Bernoulli draw.
	CondRandom ConditionKind = "random"
	// CondPriorEvent gates on whether an earlier event fired.
	CondPriorEvent ConditionKind = "prior_event"
)

// EventCondition is a tagged union evaluated by a small pure interpreter
// against the running attribute/event context - never string execution.
type EventCondition struct {
	Kind ConditionKind `json:"kind" yaml:"kind"`

	// attribute
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Operator  string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value     any    `json:"value,omitempty" yaml:"value,omitempty"`

	// random
	Probability float64 `json:"probability,omitempty" yaml:"probability,omitempty"`

	// prior_event
	EventID       string `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	MustHaveFired *bool  `json:"must_have_fired,omitempty" yaml:"must_have_fired,omitempty"`
}

// RequiresFired returns the prior_event flag (default true).
func (c EventCondition) RequiresFired() bool {
	if c.MustHaveFired == nil {
		return true
	}
	return *c.MustHaveFired
}

// BranchRule injects additional events when its predicate holds. The rule is
// evaluated exactly once, at the named evaluation point (an event id),
// against the accumulated attribute context. Injected events participate in
// the same state machine as declared events.
type BranchRule struct {
	At     string         `json:"at" yaml:"at"`
	When   dist.Predicate `json:"when" yaml:"when"`
	Events []EventDef     `json:"events" yaml:"events"`
}

// TriggerSpec declares a cross-domain correlation: an event of
// SourceEventType fired in SourceProduct schedules a TargetEventType event
// into TargetProduct, delayed by a draw from Delay, gated by an independent
// Bernoulli draw against Probability.
type TriggerSpec struct {
	SourceProduct   string    `json:"source_product" yaml:"source_product"`
	SourceEventType string    `json:"source_event_type" yaml:"source_event_type"`
	TargetProduct   string    `json:"target_product" yaml:"target_product"`
	TargetEventType string    `json:"target_event_type" yaml:"target_event_type"`
	Delay           dist.Spec `json:"delay" yaml:"delay"`
	Probability     float64   `json:"probability" yaml:"probability"`
}
