package trigger

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/dist"
	"github.com/cohortgen/cohortgen/internal/identity"
	"github.com/cohortgen/cohortgen/internal/journey"
	"github.com/cohortgen/cohortgen/internal/spec"
	"github.com/cohortgen/cohortgen/internal/testutil"
)

// fixture wires a registry, per-product engines, and a coordinator around
// one pre-registered person.
type fixture struct {
	registry *identity.Registry
	engines  map[string]*journey.Engine
	coord    *Coordinator
}

func newFixture(t *testing.T, specs []spec.TriggerSpec, products []string, rootSeed int64, minted ...string) *fixture {
	t.Helper()

	registry := identity.NewRegistry(identity.NewFixedGenerator(minted...))
	engines := make(map[string]*journey.Engine, len(products))
	for _, p := range products {
		engines[p] = journey.NewEngine(p)
	}

	coord, err := NewCoordinator(specs, registry, engines, rootSeed)
	require.NoError(t, err)
	coord.Attach()
	return &fixture{registry: registry, engines: engines, coord: coord}
}

func dischargeJourney() *spec.JourneySpec {
	return &spec.JourneySpec{
		ID:           "inpatient",
		StartTrigger: "admission",
		Phases: []spec.Phase{
			{
				Name: "stay",
				Events: []spec.EventDef{
					{ID: "discharge", Type: "clinical.discharge", Timing: spec.Timing{Day: testutil.Int(10)}},
				},
			},
		},
	}
}

func dayOf(ev *journey.TimelineEvent, start time.Time) float64 {
	return ev.ScheduledAt.Sub(start).Hours() / 24
}

// A discharge fired on day 10 with a uniform(2,7) delay yields a claim in
// the target product between day 12 and day 17, bound to the same person.
func TestCoordinator_CrossProductTrigger(t *testing.T) {
	specs := []spec.TriggerSpec{
		{
			SourceProduct:   "patientsim",
			SourceEventType: "clinical.discharge",
			TargetProduct:   "membersim",
			TargetEventType: "claims.claim",
			Delay:           dist.Uniform(2, 7),
			Probability:     1,
		},
	}
	f := newFixture(t, specs, []string{"patientsim", "membersim"}, 42)

	_, err := f.registry.Register("person-1", "patientsim", "pat-1")
	require.NoError(t, err)
	_, err = f.registry.Register("person-1", "membersim", "mem-1")
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	_, err = f.engines["patientsim"].Run("pat-1", dischargeJourney(), testutil.StartDate, rng, nil, false)
	require.NoError(t, err)

	tl := f.engines["membersim"].Timeline("mem-1")
	require.NotNil(t, tl, "trigger must create the target timeline")
	require.Len(t, tl.Events, 1)

	claim := tl.Events[0]
	assert.Equal(t, "claims.claim", claim.Type)
	assert.Equal(t, journey.StatusFired, claim.Status)
	assert.Equal(t, "discharge", claim.TriggeredBy)

	day := dayOf(claim, testutil.StartDate)
	assert.GreaterOrEqual(t, day, 12.0)
	assert.LessOrEqual(t, day, 17.0)

	// Both product ids resolve to the same person.
	coreID, err := f.registry.Resolve("membersim", "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "person-1", coreID)
}

func TestCoordinator_ProbabilityZeroNeverFires(t *testing.T) {
	specs := []spec.TriggerSpec{
		{
			SourceProduct:   "patientsim",
			SourceEventType: "clinical.discharge",
			TargetProduct:   "membersim",
			TargetEventType: "claims.claim",
			Delay:           dist.Fixed(2),
			Probability:     0,
		},
	}
	f := newFixture(t, specs, []string{"patientsim", "membersim"}, 42)

	_, err := f.registry.Register("person-1", "patientsim", "pat-1")
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	_, err = f.engines["patientsim"].Run("pat-1", dischargeJourney(), testutil.StartDate, rng, nil, false)
	require.NoError(t, err)

	assert.Empty(t, f.engines["membersim"].Timelines())
}

// A derived event is itself eligible to fire the next trigger in the chain,
// and the target product id is minted lazily when the person has never been
// seen there.
func TestCoordinator_ChainedTriggers(t *testing.T) {
	specs := []spec.TriggerSpec{
		{
			SourceProduct:   "patientsim",
			SourceEventType: "clinical.discharge",
			TargetProduct:   "membersim",
			TargetEventType: "claims.claim",
			Delay:           dist.Fixed(2),
			Probability:     1,
		},
		{
			SourceProduct:   "membersim",
			SourceEventType: "claims.claim",
			TargetProduct:   "pharmsim",
			TargetEventType: "pharmacy.fill",
			Delay:           dist.Fixed(3),
			Probability:     1,
		},
	}
	f := newFixture(t, specs, []string{"patientsim", "membersim", "pharmsim"}, 42, "mem-minted", "pharm-minted")

	_, err := f.registry.Register("person-1", "patientsim", "pat-1")
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	_, err = f.engines["patientsim"].Run("pat-1", dischargeJourney(), testutil.StartDate, rng, nil, false)
	require.NoError(t, err)

	claimTL := f.engines["membersim"].Timeline("mem-minted")
	require.NotNil(t, claimTL)
	require.Len(t, claimTL.Events, 1)
	assert.Equal(t, 12.0, dayOf(claimTL.Events[0], testutil.StartDate))

	fillTL := f.engines["pharmsim"].Timeline("pharm-minted")
	require.NotNil(t, fillTL)
	require.Len(t, fillTL.Events, 1)
	fill := fillTL.Events[0]
	assert.Equal(t, "pharmacy.fill", fill.Type)
	assert.Equal(t, journey.StatusFired, fill.Status)
	assert.Equal(t, 15.0, dayOf(fill, testutil.StartDate), "chained delay compounds from the derived event")

	// The minted ids resolve back to the same person.
	coreID, err := f.registry.Resolve("pharmsim", "pharm-minted")
	require.NoError(t, err)
	assert.Equal(t, "person-1", coreID)
}

// Trigger draws come from a per-person stream keyed on the root seed, so two
// coordinators over the same specs and seed produce identical schedules.
func TestCoordinator_DeterministicAcrossRuns(t *testing.T) {
	run := func() float64 {
		f := newFixture(t, testutil.Triggers(), []string{"patientsim", "membersim"}, 99)
		_, err := f.registry.Register("person-1", "patientsim", "pat-1")
		require.NoError(t, err)
		_, err = f.registry.Register("person-1", "membersim", "mem-1")
		require.NoError(t, err)

		rng := rand.New(rand.NewPCG(7, 7))
		_, err = f.engines["patientsim"].Run("pat-1", testutil.Journey(), testutil.StartDate, rng, nil, false)
		require.NoError(t, err)

		tl := f.engines["membersim"].Timeline("mem-1")
		require.NotNil(t, tl)
		require.Len(t, tl.Events, 1)
		return dayOf(tl.Events[0], testutil.StartDate)
	}

	assert.Equal(t, run(), run())
}

// Each source firing mints a distinct derived event id for the person.
func TestCoordinator_DerivedIDsPerPerson(t *testing.T) {
	f := newFixture(t, testutil.Triggers(), []string{"patientsim", "membersim"}, 42)

	_, err := f.registry.Register("person-1", "patientsim", "pat-1")
	require.NoError(t, err)
	_, err = f.registry.Register("person-1", "membersim", "mem-1")
	require.NoError(t, err)

	j := &spec.JourneySpec{
		ID:           "double-visit",
		StartTrigger: "enrollment",
		Phases: []spec.Phase{
			{
				Name: "care",
				Events: []spec.EventDef{
					{ID: "visit-1", Type: "clinical.visit", Timing: spec.Timing{Day: testutil.Int(0)}},
					{ID: "visit-2", Type: "clinical.visit", Timing: spec.Timing{Day: testutil.Int(30)}},
				},
			},
		},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	_, err = f.engines["patientsim"].Run("pat-1", j, testutil.StartDate, rng, nil, false)
	require.NoError(t, err)

	tl := f.engines["membersim"].Timeline("mem-1")
	require.NotNil(t, tl)
	require.Len(t, tl.Events, 2)
	assert.Equal(t, "claims.claim-1", tl.Events[0].ID)
	assert.Equal(t, "claims.claim-2", tl.Events[1].ID)
}

func TestNewCoordinator_Rejects(t *testing.T) {
	registry := identity.NewRegistry(identity.NewFixedGenerator())
	engines := map[string]*journey.Engine{
		"patientsim": journey.NewEngine("patientsim"),
		"membersim":  journey.NewEngine("membersim"),
	}

	t.Run("cycle", func(t *testing.T) {
		specs := []spec.TriggerSpec{
			edge("patientsim", "clinical.visit", "membersim", "claims.claim"),
			edge("membersim", "claims.claim", "patientsim", "clinical.visit"),
		}
		_, err := NewCoordinator(specs, registry, engines, 1)
		assert.True(t, IsCyclicSpec(err))
	})

	t.Run("unknown product", func(t *testing.T) {
		specs := []spec.TriggerSpec{
			edge("patientsim", "clinical.visit", "pharmsim", "pharmacy.fill"),
		}
		_, err := NewCoordinator(specs, registry, engines, 1)
		var uerr *UnknownProductError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "pharmsim", uerr.Product)
	})

	t.Run("probability out of range", func(t *testing.T) {
		s := edge("patientsim", "clinical.visit", "membersim", "claims.claim")
		s.Probability = 1.5
		_, err := NewCoordinator([]spec.TriggerSpec{s}, registry, engines, 1)
		assert.Error(t, err)
	})

	t.Run("invalid delay distribution", func(t *testing.T) {
		s := edge("patientsim", "clinical.visit", "membersim", "claims.claim")
		s.Delay = dist.Spec{Kind: dist.KindCategorical, Weights: map[string]float64{"x": 0.2}}
		_, err := NewCoordinator([]spec.TriggerSpec{s}, registry, engines, 1)
		assert.True(t, dist.IsInvalidDistribution(err))
	})
}
