package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/cohortgen/cohortgen/internal/cohort"
	"github.com/cohortgen/cohortgen/internal/identity"
	"github.com/cohortgen/cohortgen/internal/journey"
	"github.com/cohortgen/cohortgen/internal/profile"
)

// TraceSnapshot captures a cohort for byte-level comparison. Every field
// serializes deterministically: entities in index order, timelines sorted
// by entity id, map keys sorted by encoding/json.
type TraceSnapshot struct {
	Scenario  string                         `json:"scenario"`
	Seed      int64                          `json:"seed"`
	Entities  []*profile.Entity              `json:"entities"`
	Timelines map[string][]*journey.Timeline `json:"timelines,omitempty"`
	Persons   []identity.PersonIdentity      `json:"persons,omitempty"`
}

// Snapshot extracts the comparable trace from a generated cohort.
func Snapshot(name string, c *cohort.Cohort) *TraceSnapshot {
	return &TraceSnapshot{
		Scenario:  name,
		Seed:      c.Report.Seed,
		Entities:  c.Entities,
		Timelines: c.Timelines,
		Persons:   c.Persons,
	}
}

// Marshal renders the snapshot as indented JSON without HTML escaping.
// Two runs of the same scenario must produce identical bytes.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace snapshot against
// the golden file testdata/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	data, err := Snapshot(sc.Name, result.Cohort).Marshal()
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t)
	g.Assert(t, sc.Name, data)
	return result
}
