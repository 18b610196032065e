package journey

import (
	"errors"
	"fmt"
)

// UnknownContextKeyError reports a condition referencing an attribute the
// owning profile never declared. Fatal under strict validation; otherwise
// the condition is treated as false.
type UnknownContextKeyError struct {
	EventID string
	Key     string
}

// Error implements the error interface.
func (e *UnknownContextKeyError) Error() string {
	return fmt.Sprintf("event %s: condition references unknown context key %q", e.EventID, e.Key)
}

// IsUnknownContextKey reports whether err is an unknown-context-key error.
// Uses errors.As to handle wrapped errors.
func IsUnknownContextKey(err error) bool {
	var ue *UnknownContextKeyError
	return errors.As(err, &ue)
}
