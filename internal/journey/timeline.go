package journey

import (
	"sort"
	"time"

	"github.com/cohortgen/cohortgen/internal/spec"
)

// TimelineEvent is one realized or schedulable event on an entity's
// timeline.
type TimelineEvent struct {
	// ID is the event's identity within the timeline (definition id for
	// declared events, a derived id for trigger-scheduled events).
	ID string `json:"id"`

	// Type is the handler-facing event type.
	Type string `json:"type"`

	// ScheduledAt is the resolved timestamp. Zero while a dependent event
	// is still Pending.
	ScheduledAt time.Time `json:"scheduled_at"`

	// Status is the state machine position.
	Status Status `json:"status"`

	// TriggeredBy names the source event id when this event was injected by
	// a branch rule, a dependency chain, or a cross-domain trigger.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Payload is the opaque parameter map forwarded to handlers.
	Payload map[string]any `json:"payload,omitempty"`

	// Seq is the logical clock stamp: declaration/injection order, used as
	// the tie-break in the time sort.
	Seq int64 `json:"seq"`

	// Scheduling machinery, unexported: collaborators only see the
	// realized fields above.
	dependsOn   string
	condition   *spec.EventCondition
	probability float64
	delayDays   float64
}

// NewDerivedEvent creates a trigger-derived event in Pending status with a
// fully resolved timestamp. The trigger coordinator hands these to
// Engine.ScheduleDerived; they carry no dependency, condition, or
// probability of their own — the trigger spec already drew those.
func NewDerivedEvent(id, eventType, triggeredBy string, at time.Time, payload map[string]any) *TimelineEvent {
	return &TimelineEvent{
		ID:          id,
		Type:        eventType,
		ScheduledAt: at,
		Status:      StatusPending,
		TriggeredBy: triggeredBy,
		Payload:     payload,
		probability: 1,
	}
}

// transition advances the event's status, enforcing the state machine.
func (ev *TimelineEvent) transition(to Status) error {
	if !ev.Status.CanTransitionTo(to) {
		return &TransitionError{EventID: ev.ID, From: ev.Status, To: to}
	}
	ev.Status = to
	return nil
}

// Timeline is one entity's time-ordered sequence of journey events.
type Timeline struct {
	EntityID  string           `json:"entity_id"`
	Product   string           `json:"product"`
	StartDate time.Time        `json:"start_date"`
	Events    []*TimelineEvent `json:"events"`

	clock      *Clock
	branches   []spec.BranchRule
	branchDone []bool
}

// setBranches attaches the journey's branch rules, each evaluated at most
// once during realization.
func (t *Timeline) setBranches(branches []spec.BranchRule) {
	t.branches = branches
	t.branchDone = make([]bool, len(branches))
}

// NewTimeline creates an empty timeline for one entity.
func NewTimeline(product, entityID string, start time.Time) *Timeline {
	return &Timeline{
		EntityID:  entityID,
		Product:   product,
		StartDate: start,
		clock:     NewClock(),
	}
}

// add appends an event, stamping its sequence number.
func (t *Timeline) add(ev *TimelineEvent) {
	ev.Seq = t.clock.Next()
	t.Events = append(t.Events, ev)
}

// Event returns the event with the given id, or nil.
func (t *Timeline) Event(id string) *TimelineEvent {
	for _, ev := range t.Events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

// sortEvents keeps Events non-decreasing in ScheduledAt, ties broken by
// declaration order. Unresolved (Pending dependent) events sort last so the
// realized prefix stays time-ordered.
func (t *Timeline) sortEvents() {
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.ScheduledAt.IsZero() != b.ScheduledAt.IsZero() {
			return b.ScheduledAt.IsZero()
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.Seq < b.Seq
	})
}

// Cancel terminates every non-terminal event. The engine never cancels on
// its own; this is the caller's abandon switch, distinguishable downstream
// from rule-driven skips.
func (t *Timeline) Cancel() {
	for _, ev := range t.Events {
		if !ev.Status.Terminal() {
			ev.Status = StatusCancelled
		}
	}
}

// FiredEvents returns the fired events in time order.
func (t *Timeline) FiredEvents() []*TimelineEvent {
	out := make([]*TimelineEvent, 0, len(t.Events))
	for _, ev := range t.Events {
		if ev.Status == StatusFired {
			out = append(out, ev)
		}
	}
	return out
}
