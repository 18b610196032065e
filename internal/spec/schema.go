package spec

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSrc string

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr0  error
)

// schemaDef returns the named definition from the embedded schema.
// The schema is compiled once per process.
func schemaDef(name string) (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaValue = ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
		schemaErr0 = schemaValue.Err()
	})
	if schemaErr0 != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", schemaErr0)
	}
	def := schemaValue.LookupPath(cue.ParsePath(name))
	if !def.Exists() {
		return cue.Value{}, fmt.Errorf("schema definition %s not found", name)
	}
	return def, nil
}

// checkSchema validates a decoded document against the named schema
// definition. doc is the raw JSON-compatible form (map[string]any) of the
// specification, prior to typed decoding.
func checkSchema(docName, defName string, doc any) error {
	def, err := schemaDef(defName)
	if err != nil {
		return err
	}

	val := schemaValue.Context().Encode(doc)
	if val.Err() != nil {
		return schemaErr(docName, fmt.Sprintf("document is not JSON-compatible: %v", val.Err()))
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Final()); err != nil {
		violations := make([]string, 0, 4)
		for _, e := range cueerrors.Errors(err) {
			violations = append(violations, e.Error())
		}
		if len(violations) == 0 {
			violations = append(violations, err.Error())
		}
		return schemaErr(docName, violations...)
	}
	return nil
}
