package journey

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/dist"
	"github.com/cohortgen/cohortgen/internal/spec"
	"github.com/cohortgen/cohortgen/internal/testutil"
)

func testRNG(s uint64) *rand.Rand {
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

func day(ev *TimelineEvent, start time.Time) float64 {
	return ev.ScheduledAt.Sub(start).Hours() / 24
}

func TestBuildTimeline_FixedDays(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "p1",
			Events: []spec.EventDef{
				{ID: "b", Type: "t.b", Timing: spec.Timing{Day: testutil.Int(10)}},
				{ID: "a", Type: "t.a", Timing: spec.Timing{Day: testutil.Int(0)}},
			},
		}},
	}

	tl, err := eng.BuildTimeline("ent-1", j, testutil.StartDate, testRNG(1))
	require.NoError(t, err)
	require.Len(t, tl.Events, 2)

	// Time-sorted regardless of declaration order.
	assert.Equal(t, "a", tl.Events[0].ID)
	assert.Equal(t, "b", tl.Events[1].ID)
	assert.Equal(t, testutil.StartDate, tl.Events[0].ScheduledAt)
	assert.Equal(t, testutil.StartDate.AddDate(0, 0, 10), tl.Events[1].ScheduledAt)
	assert.Equal(t, StatusScheduled, tl.Events[0].Status)
}

// Dependent event timing is relative to the dependency's actual resolved
// time, not the start date, and the dependency fires strictly first.
func TestRun_DependencyOffset(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "A", Type: "t.a", Timing: spec.Timing{Day: testutil.Int(0)}},
				{ID: "B", Type: "t.b", DependsOn: "A", Timing: spec.Timing{Base: 7}},
			},
		}},
	}

	var firedOrder []string
	eng.SetFireObserver(func(product, entityID string, ev *TimelineEvent) error {
		firedOrder = append(firedOrder, ev.ID)
		return nil
	})

	tl, err := eng.Run("ent-1", j, testutil.StartDate, testRNG(2), nil, false)
	require.NoError(t, err)

	a := tl.Event("A")
	b := tl.Event("B")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, StatusFired, a.Status)
	assert.Equal(t, StatusFired, b.Status)
	assert.Equal(t, a.ScheduledAt.AddDate(0, 0, 7), b.ScheduledAt)
	assert.Equal(t, []string{"A", "B"}, firedOrder)
	assert.Equal(t, "A", b.TriggeredBy)
}

func TestRun_DependencyChainFromNonZeroAnchor(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "A", Type: "t.a", Timing: spec.Timing{Day: testutil.Int(3)}},
				{ID: "B", Type: "t.b", DependsOn: "A", Timing: spec.Timing{Base: 4}},
				{ID: "C", Type: "t.c", DependsOn: "B", Timing: spec.Timing{Base: 5}},
			},
		}},
	}

	tl, err := eng.Run("ent-1", j, testutil.StartDate, testRNG(3), nil, false)
	require.NoError(t, err)

	assert.InDelta(t, 3, day(tl.Event("A"), testutil.StartDate), 1e-9)
	assert.InDelta(t, 7, day(tl.Event("B"), testutil.StartDate), 1e-9)
	assert.InDelta(t, 12, day(tl.Event("C"), testutil.StartDate), 1e-9)
}

func TestRun_ConditionAgainstAttributes(t *testing.T) {
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{
					ID: "insulin", Type: "rx.insulin", Timing: spec.Timing{Day: testutil.Int(1)},
					Condition: &spec.EventCondition{
						Kind: spec.CondAttribute, Attribute: "severity", Operator: "eq", Value: "high",
					},
				},
			},
		}},
	}

	t.Run("condition true fires", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", j, testutil.StartDate, testRNG(4), map[string]any{"severity": "high"}, false)
		require.NoError(t, err)
		assert.Equal(t, StatusFired, tl.Event("insulin").Status)
	})

	t.Run("condition false skips", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", j, testutil.StartDate, testRNG(4), map[string]any{"severity": "low"}, false)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, tl.Event("insulin").Status)
	})

	t.Run("unknown key non-strict treated false", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", j, testutil.StartDate, testRNG(4), map[string]any{}, false)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, tl.Event("insulin").Status)
	})

	t.Run("unknown key strict fails", func(t *testing.T) {
		eng := NewEngine("patientsim")
		_, err := eng.Run("e", j, testutil.StartDate, testRNG(4), map[string]any{}, true)
		require.Error(t, err)
		assert.True(t, IsUnknownContextKey(err))
	})
}

func TestRun_Probability(t *testing.T) {
	build := func(p float64) *spec.JourneySpec {
		return &spec.JourneySpec{
			ID:           "j1",
			StartTrigger: "enrollment",
			Phases: []spec.Phase{{
				Name: "care",
				Events: []spec.EventDef{
					{ID: "e", Type: "t.e", Timing: spec.Timing{Day: testutil.Int(0)}, Probability: testutil.Float64(p)},
				},
			}},
		}
	}

	t.Run("probability 0 always skips", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", build(0), testutil.StartDate, testRNG(5), nil, false)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, tl.Event("e").Status)
	})

	t.Run("probability 1 always fires", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", build(1), testutil.StartDate, testRNG(5), nil, false)
		require.NoError(t, err)
		assert.Equal(t, StatusFired, tl.Event("e").Status)
	})

	t.Run("bernoulli draws are seed-deterministic", func(t *testing.T) {
		run := func() Status {
			eng := NewEngine("patientsim")
			tl, err := eng.Run("e", build(0.5), testutil.StartDate, testRNG(6), nil, false)
			require.NoError(t, err)
			return tl.Event("e").Status
		}
		assert.Equal(t, run(), run())
	})
}

func TestRun_PriorEventCondition(t *testing.T) {
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "screen", Type: "t.screen", Timing: spec.Timing{Day: testutil.Int(0)}, Probability: testutil.Float64(0)},
				{
					// Rescue path: fires only because screen did NOT fire.
					ID: "rescue", Type: "t.rescue", DependsOn: "screen", Timing: spec.Timing{Base: 2},
					Condition: &spec.EventCondition{
						Kind: spec.CondPriorEvent, EventID: "screen", MustHaveFired: testutil.Bool(false),
					},
				},
			},
		}},
	}

	eng := NewEngine("patientsim")
	tl, err := eng.Run("e", j, testutil.StartDate, testRNG(7), nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, tl.Event("screen").Status)
	assert.Equal(t, StatusFired, tl.Event("rescue").Status)
}

func TestRun_DependencyOnSkippedCascades(t *testing.T) {
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "A", Type: "t.a", Timing: spec.Timing{Day: testutil.Int(0)}, Probability: testutil.Float64(0)},
				{ID: "B", Type: "t.b", DependsOn: "A", Timing: spec.Timing{Base: 1}},
				{ID: "C", Type: "t.c", DependsOn: "B", Timing: spec.Timing{Base: 1}},
			},
		}},
	}

	eng := NewEngine("patientsim")
	tl, err := eng.Run("e", j, testutil.StartDate, testRNG(8), nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, tl.Event("A").Status)
	assert.Equal(t, StatusSkipped, tl.Event("B").Status)
	assert.Equal(t, StatusSkipped, tl.Event("C").Status)
}

func TestRun_BranchInjection(t *testing.T) {
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "labs", Type: "t.labs", Timing: spec.Timing{Day: testutil.Int(5)}},
			},
		}},
		Branches: []spec.BranchRule{{
			At:   "labs",
			When: dist.Predicate{Attribute: "a1c", Operator: dist.OpGte, Value: 9},
			Events: []spec.EventDef{
				{ID: "escalate", Type: "t.escalate", Timing: spec.Timing{Base: 3}},
			},
		}},
	}

	t.Run("matching branch injects relative to evaluation point", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", j, testutil.StartDate, testRNG(9), map[string]any{"a1c": 10.2}, false)
		require.NoError(t, err)

		esc := tl.Event("escalate")
		require.NotNil(t, esc)
		assert.Equal(t, StatusFired, esc.Status)
		assert.Equal(t, "labs", esc.TriggeredBy)
		assert.InDelta(t, 8, day(esc, testutil.StartDate), 1e-9)
	})

	t.Run("non-matching branch injects nothing", func(t *testing.T) {
		eng := NewEngine("patientsim")
		tl, err := eng.Run("e", j, testutil.StartDate, testRNG(9), map[string]any{"a1c": 6.5}, false)
		require.NoError(t, err)
		assert.Nil(t, tl.Event("escalate"))
	})
}

func TestTimeline_SortTiesByDeclarationOrder(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "first", Type: "t.x", Timing: spec.Timing{Day: testutil.Int(0)}},
				{ID: "second", Type: "t.y", Timing: spec.Timing{Day: testutil.Int(0)}},
			},
		}},
	}

	tl, err := eng.BuildTimeline("e", j, testutil.StartDate, testRNG(10))
	require.NoError(t, err)
	assert.Equal(t, "first", tl.Events[0].ID)
	assert.Equal(t, "second", tl.Events[1].ID)
	assert.Less(t, tl.Events[0].Seq, tl.Events[1].Seq)
}

func TestTimeline_Cancel(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "A", Type: "t.a", Timing: spec.Timing{Day: testutil.Int(0)}},
				{ID: "B", Type: "t.b", DependsOn: "A", Timing: spec.Timing{Base: 7}},
			},
		}},
	}

	tl, err := eng.BuildTimeline("e", j, testutil.StartDate, testRNG(11))
	require.NoError(t, err)

	tl.Cancel()
	assert.Equal(t, StatusCancelled, tl.Event("A").Status)
	assert.Equal(t, StatusCancelled, tl.Event("B").Status)

	// Cancel is idempotent and never resurrects terminal events.
	tl.Cancel()
	assert.Equal(t, StatusCancelled, tl.Event("A").Status)
}

func TestScheduleDerived_NewEntityGetsTimeline(t *testing.T) {
	eng := NewEngine("membersim")
	at := testutil.StartDate.AddDate(0, 0, 12)
	ev := NewDerivedEvent("claim-1", "claims.claim", "discharge", at, nil)

	tl, err := eng.ScheduleDerived("mem-1", at, ev)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, ev.Status)
	assert.Same(t, tl, eng.Timeline("mem-1"))

	require.NoError(t, eng.FireDerived("mem-1", ev))
	assert.Equal(t, StatusFired, ev.Status)
}

func TestRun_TimelineOrderedProperty(t *testing.T) {
	eng := NewEngine("patientsim")
	j := &spec.JourneySpec{
		ID:           "j1",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{{
			Name: "care",
			Events: []spec.EventDef{
				{ID: "a", Type: "t.a", Timing: spec.Timing{Base: 10, Variance: 5}},
				{ID: "b", Type: "t.b", Timing: spec.Timing{Base: 10, Variance: 5}},
				{ID: "c", Type: "t.c", Timing: spec.Timing{Day: testutil.Int(2)}},
				{ID: "d", Type: "t.d", DependsOn: "c", Timing: spec.Timing{Base: 1, Variance: 1}},
			},
		}},
	}

	for s := uint64(0); s < 20; s++ {
		tl, err := eng.Run("e"+string(rune('a'+s)), j, testutil.StartDate, testRNG(s), nil, false)
		require.NoError(t, err)
		for i := 1; i < len(tl.Events); i++ {
			prev, cur := tl.Events[i-1], tl.Events[i]
			if prev.ScheduledAt.IsZero() || cur.ScheduledAt.IsZero() {
				continue
			}
			assert.False(t, cur.ScheduledAt.Before(prev.ScheduledAt),
				"seed %d: %s precedes %s", s, cur.ID, prev.ID)
		}
	}
}
