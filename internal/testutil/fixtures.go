// Package testutil provides shared fixtures for engine tests:
// small, valid profile/journey/trigger specifications with pinned seeds so
// every test package asserts against the same deterministic inputs.
package testutil

import (
	"time"

	"github.com/cohortgen/cohortgen/internal/dist"
	"github.com/cohortgen/cohortgen/internal/spec"
)

// StartDate is the fixed timeline anchor used across tests.
var StartDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// Int64 returns a pointer to v. Profile seeds are *int64 in the spec.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Profile returns a minimal valid profile: count entities over two
// products, seeded, warn-mode, with a truncated-normal age and a weighted
// gender.
func Profile(count int, seed int64) *spec.ProfileSpec {
	return &spec.ProfileSpec{
		ID:   "test-profile",
		Name: "Test Profile",
		Generation: spec.GenerationSpec{
			Count:          count,
			Products:       []string{"patientsim", "membersim"},
			Seed:           Int64(seed),
			ValidationMode: spec.ValidationWarn,
		},
		Demographics: spec.DemographicsSpec{
			Age: dist.Spec{
				Kind: dist.KindTruncatedNormal,
				Mean: 50, StdDev: 10, Lo: 18, Hi: 90,
			},
			Gender: dist.Spec{
				Kind:    dist.KindCategorical,
				Weights: map[string]float64{"female": 0.5, "male": 0.5},
			},
		},
	}
}

// Journey returns a two-event journey: an anchor on day 0 and a dependent
// follow-up 7 days after the anchor fires.
func Journey() *spec.JourneySpec {
	return &spec.JourneySpec{
		ID:           "test-journey",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{
			{
				Name: "care",
				Events: []spec.EventDef{
					{ID: "visit", Type: "clinical.visit", Timing: spec.Timing{Day: Int(0)}},
					{ID: "followup", Type: "clinical.followup", DependsOn: "visit", Timing: spec.Timing{Base: 7}},
				},
			},
		},
	}
}

// Triggers returns one cross-domain trigger: clinical.visit in patientsim
// always schedules a claim into membersim 2-7 days later.
func Triggers() []spec.TriggerSpec {
	return []spec.TriggerSpec{
		{
			SourceProduct:   "patientsim",
			SourceEventType: "clinical.visit",
			TargetProduct:   "membersim",
			TargetEventType: "claims.claim",
			Delay:           dist.Uniform(2, 7),
			Probability:     1,
		},
	}
}
