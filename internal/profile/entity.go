package profile

// Entity is one generated member of a cohort. Created by the executor,
// read-only thereafter; the caller owns the result.
type Entity struct {
	// ID is the entity's owned identifier, minted deterministically from
	// (profile id, root seed, index) so repeated runs are byte-identical.
	ID string `json:"entity_id"`

	// Index is the entity's stable 0-based position in the batch
	// (declaration order, not generation order).
	Index int `json:"index"`

	// Attributes holds the resolved attribute values.
	Attributes map[string]any `json:"attributes"`

	// SeedUsed is the derived per-entity seed.
	SeedUsed uint64 `json:"seed_used"`

	// Report carries per-entity validation output.
	Report EntityReport `json:"validation_report"`
}

// EntityReport is the validation outcome for one entity.
type EntityReport struct {
	Warnings []string `json:"warnings,omitempty"`
}

// Report enumerates batch execution results, keeping per-entity failures
// distinct from batch-level (structural) failures so callers can tell
// "this cohort has 3 bad entities" from "this cohort specification is
// broken".
type Report struct {
	Requested int             `json:"requested"`
	Generated int             `json:"generated"`
	Seed      int64           `json:"seed"`
	Failures  []EntityFailure `json:"failures,omitempty"`
	Warnings  int             `json:"warnings"`
}

// EntityFailure records one entity that could not be generated. Under
// warn/none validation modes these do not abort sibling entities.
type EntityFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Result is the output of executing a profile.
type Result struct {
	Entities []*Entity `json:"entities"`
	Report   Report    `json:"report"`
}
