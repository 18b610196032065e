package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const scenarioYAML = `
name: diabetes-pilot
description: end-to-end pipeline with journey and cross-domain trigger
start_date: "2024-03-01"
profile:
  id: diabetes-pilot
  name: Diabetes Pilot
  generation:
    count: 2
    products: [patientsim, membersim]
    seed: 42
  demographics:
    age:
      kind: truncated_normal
      mean: 60
      stddev: 8
      lo: 40
      hi: 85
    gender:
      kind: categorical
      weights: {female: 0.5, male: 0.5}
journey:
  id: care-path
  start_trigger: enrollment
  phases:
    - name: care
      events:
        - id: visit
          type: clinical.visit
          timing: {day: 0}
        - id: followup
          type: clinical.followup
          depends_on: visit
          timing: {base: 7}
triggers:
  triggers:
    - source_product: patientsim
      source_event_type: clinical.visit
      target_product: membersim
      target_event_type: claims.claim
      delay: {kind: uniform, lo: 2, hi: 7}
      probability: 1
assertions:
  - type: entity_count
    count: 2
  - type: attribute_bounds
    attribute: age
    min: 40
    max: 85
  - type: timeline_ordered
  - type: event_present
    product: patientsim
    event_type: clinical.visit
    count: 2
    status: fired
  - type: event_present
    product: membersim
    event_type: claims.claim
    count: 2
  - type: event_between
    product: membersim
    event_type: claims.claim
    after_day: 2
    before_day: 7
`

func parseScenario(t *testing.T, doc string) *Scenario {
	t.Helper()
	var sc Scenario
	require.NoError(t, yaml.Unmarshal([]byte(doc), &sc))
	return &sc
}

func TestRun_ScenarioPasses(t *testing.T) {
	sc := parseScenario(t, scenarioYAML)

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.NotNil(t, result.Cohort)
	assert.Len(t, result.Cohort.Entities, 2)
}

func TestRun_AssertionFailuresAccumulate(t *testing.T) {
	sc := parseScenario(t, scenarioYAML)
	sc.Assertions = []Assertion{
		{Type: "entity_count", Count: 99},
		{Type: "event_present", Product: "membersim", EventType: "pharmacy.fill"},
	}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err, "assertion failures are results, not errors")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected 99 entities")
	assert.Contains(t, result.Errors[1], "pharmacy.fill")
}

func TestRun_UnknownAssertionType(t *testing.T) {
	sc := parseScenario(t, scenarioYAML)
	sc.Assertions = []Assertion{{Type: "histogram_matches"}}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "unknown assertion type")
}

func TestRun_RequiresPinnedSeed(t *testing.T) {
	doc := `
name: unseeded
profile:
  id: p
  name: P
  generation:
    count: 1
    products: [patientsim]
  demographics:
    age: {kind: fixed, value: 50}
    gender: {kind: fixed, value: female}
`
	sc := parseScenario(t, doc)
	_, err := Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must pin a seed")
}

func TestRun_InvalidInlineProfile(t *testing.T) {
	doc := `
name: broken
profile:
  id: p
  name: P
  generation:
    count: 1
    products: [patientsim]
    seed: 1
  demographics:
    age: {kind: gaussian}
    gender: {kind: fixed, value: female}
`
	sc := parseScenario(t, doc)
	_, err := Run(context.Background(), sc)
	require.Error(t, err, "inline specs go through the same schema validation as files")
}

// The snapshot of a pinned scenario is byte-identical across runs. This is
// the property golden comparisons rely on.
func TestSnapshot_Reproducible(t *testing.T) {
	render := func() []byte {
		sc := parseScenario(t, scenarioYAML)
		result, err := Run(context.Background(), sc)
		require.NoError(t, err)
		require.True(t, result.Pass, "assertion failures: %v", result.Errors)

		data, err := Snapshot(sc.Name, result.Cohort).Marshal()
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, render(), render())
}

func TestSnapshot_Fields(t *testing.T) {
	sc := parseScenario(t, scenarioYAML)
	result, err := Run(context.Background(), sc)
	require.NoError(t, err)

	snap := Snapshot(sc.Name, result.Cohort)
	assert.Equal(t, "diabetes-pilot", snap.Scenario)
	assert.Equal(t, int64(42), snap.Seed)
	assert.Len(t, snap.Entities, 2)
	assert.Len(t, snap.Persons, 2)
	assert.Len(t, snap.Timelines["patientsim"], 2)
}
