package journey

import "fmt"

// Status is the lifecycle state of a timeline event.
//
// The state machine is:
//
//	Pending → Scheduled → {Fired | Skipped | Cancelled}
//	Pending → {Skipped | Cancelled}   (dependency can never be satisfied,
//	                                   or the timeline was cancelled)
//
// Pending is initial; Fired, Skipped, and Cancelled are terminal and never
// retried.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusFired     Status = "fired"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusFired, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits s → to.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusScheduled || to == StatusSkipped || to == StatusCancelled
	case StatusScheduled:
		return to == StatusFired || to == StatusSkipped || to == StatusCancelled
	}
	return false
}

// TransitionError reports an illegal status transition. This indicates an
// engine bug, not a data-quality issue.
type TransitionError struct {
	EventID string
	From    Status
	To      Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %s: illegal transition %s -> %s", e.EventID, e.From, e.To)
}
