package spec

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaValidationError reports a malformed specification. It is surfaced
// to the caller before any sampling occurs and is fatal for that batch.
type SchemaValidationError struct {
	// Doc names the offending document (file path or logical name).
	Doc string

	// Violations lists individual schema or cross-reference failures.
	Violations []string
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("schema validation failed for %s: %s", e.Doc, e.Violations[0])
	}
	return fmt.Sprintf("schema validation failed for %s:\n  %s", e.Doc, strings.Join(e.Violations, "\n  "))
}

// IsSchemaValidation reports whether err is a schema validation error.
// Uses errors.As to handle wrapped errors.
func IsSchemaValidation(err error) bool {
	var se *SchemaValidationError
	return errors.As(err, &se)
}

func schemaErr(doc string, violations ...string) *SchemaValidationError {
	return &SchemaValidationError{Doc: doc, Violations: violations}
}
