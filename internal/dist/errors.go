package dist

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sampling errors.
type ErrorCode string

const (
	// CodeInvalidDistribution indicates weights or bounds violate invariants.
	CodeInvalidDistribution ErrorCode = "INVALID_DISTRIBUTION"

	// CodeSamplingExhausted indicates bounded-retry truncated sampling failed.
	CodeSamplingExhausted ErrorCode = "SAMPLING_EXHAUSTED"

	// CodeMissingContext indicates a conditional rule referenced a context
	// key that is absent and the distribution declares no default.
	CodeMissingContext ErrorCode = "MISSING_CONTEXT"
)

// Error is a typed sampling error with structured fields for diagnostics.
//
// Distribution errors are data-quality errors: under warn/none validation
// modes the executor attaches them to the owning entity's validation report
// instead of aborting the batch.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind is the distribution variant that failed.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Key is the missing context key (CodeMissingContext only).
	Key string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (kind=%s, key=%s)", e.Code, e.Message, e.Kind, e.Key)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidDistribution reports whether err is an invalid-distribution error.
// Uses errors.As to handle wrapped errors.
func IsInvalidDistribution(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == CodeInvalidDistribution
}

// IsSamplingExhausted reports whether err is a sampling-exhausted error.
func IsSamplingExhausted(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == CodeSamplingExhausted
}

// IsMissingContext reports whether err is a missing-context error.
func IsMissingContext(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == CodeMissingContext
}

func invalidf(kind Kind, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidDistribution, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func exhaustedf(kind Kind, format string, args ...any) *Error {
	return &Error{Code: CodeSamplingExhausted, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func missingContext(kind Kind, key string) *Error {
	return &Error{Code: CodeMissingContext, Kind: kind, Message: "rule references absent context key and no default exists", Key: key}
}
