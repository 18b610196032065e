package journey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusScheduled, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFired, false},
		{StatusScheduled, StatusFired, true},
		{StatusScheduled, StatusSkipped, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusPending, false},
		{StatusFired, StatusSkipped, false},
		{StatusFired, StatusScheduled, false},
		{StatusSkipped, StatusScheduled, false},
		{StatusCancelled, StatusFired, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusScheduled.Terminal())
	assert.True(t, StatusFired.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestTransition_Illegal(t *testing.T) {
	ev := &TimelineEvent{ID: "e1", Status: StatusFired}
	err := ev.transition(StatusScheduled)
	assert.Error(t, err)
	assert.IsType(t, &TransitionError{}, err)
	assert.Equal(t, StatusFired, ev.Status, "illegal transition must not change status")
}
