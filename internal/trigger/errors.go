package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// CyclicSpecError reports a trigger registration whose (product, event
// type) graph contains a cycle: a target event type that transitively
// triggers its own source type. Detected at construction, never at
// runtime, so the coordinator can never loop while firing.
type CyclicSpecError struct {
	// Cycle lists the "product/event_type" nodes along the cycle, first
	// node repeated at the end.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicSpecError) Error() string {
	return fmt.Sprintf("cyclic trigger spec: %s", strings.Join(e.Cycle, " -> "))
}

// IsCyclicSpec reports whether err is a cyclic trigger spec error.
// Uses errors.As to handle wrapped errors.
func IsCyclicSpec(err error) bool {
	var ce *CyclicSpecError
	return errors.As(err, &ce)
}

// UnknownProductError reports a trigger spec naming a product domain no
// journey engine was registered for.
type UnknownProductError struct {
	Product string
}

// Error implements the error interface.
func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("trigger spec references unknown product %q", e.Product)
}
