// Package journey builds and realizes per-entity event timelines from
// declarative journey specifications.
//
// The engine is a single-threaded, synchronous state machine per entity:
// building and realizing one timeline consumes only the entity's own random
// stream, so batch generation across entities can run in parallel with no
// ordering requirement between them.
package journey

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/cohortgen/cohortgen/internal/dist"
	"github.com/cohortgen/cohortgen/internal/spec"
)

// FireFunc observes fired events in time order. The trigger coordinator
// registers one to schedule correlated events into other products.
type FireFunc func(product, entityID string, ev *TimelineEvent) error

// Engine owns the timelines of one product domain.
type Engine struct {
	product string
	logger  *slog.Logger

	mu        sync.Mutex
	timelines map[string]*Timeline
	onFired   FireFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a journey engine for one product domain.
func NewEngine(product string, opts ...Option) *Engine {
	e := &Engine{
		product:   product,
		logger:    slog.Default(),
		timelines: make(map[string]*Timeline),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Product returns the engine's product domain name.
func (e *Engine) Product() string { return e.product }

// SetFireObserver registers the observer invoked on every fired event.
// Must be called before realization begins.
func (e *Engine) SetFireObserver(fn FireFunc) { e.onFired = fn }

// Timeline returns the stored timeline for an entity, or nil.
func (e *Engine) Timeline(entityID string) *Timeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timelines[entityID]
}

// Timelines returns every stored timeline, ordered by entity id so callers
// iterate deterministically.
func (e *Engine) Timelines() []*Timeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Timeline, 0, len(e.timelines))
	for _, tl := range e.timelines {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// BuildTimeline resolves a journey specification into a timeline for one
// entity. Delays are sampled in declaration order from rng; events without
// dependencies are Scheduled immediately, dependent events stay Pending
// until their dependency resolves during Realize.
func (e *Engine) BuildTimeline(entityID string, j *spec.JourneySpec, start time.Time, rng *rand.Rand) (*Timeline, error) {
	tl := NewTimeline(e.product, entityID, start)
	tl.setBranches(j.Branches)

	for _, ph := range j.Phases {
		for _, def := range ph.Events {
			ev, err := newEvent(def, rng)
			if err != nil {
				return nil, fmt.Errorf("journey %s event %s: %w", j.ID, def.ID, err)
			}
			if ev.dependsOn == "" {
				ev.ScheduledAt = start.Add(days(ev.delayDays))
				if err := ev.transition(StatusScheduled); err != nil {
					return nil, err
				}
			}
			tl.add(ev)
		}
	}
	tl.sortEvents()

	e.mu.Lock()
	e.timelines[entityID] = tl
	e.mu.Unlock()

	e.logger.Debug("timeline built",
		"product", e.product,
		"entity_id", entityID,
		"journey", j.ID,
		"events", len(tl.Events),
	)
	return tl, nil
}

// newEvent lowers an event definition, sampling its delay.
func newEvent(def spec.EventDef, rng *rand.Rand) (*TimelineEvent, error) {
	delay, err := sampleDelayDays(def.Timing, rng)
	if err != nil {
		return nil, err
	}
	ev := &TimelineEvent{
		ID:          def.ID,
		Type:        def.Type,
		Status:      StatusPending,
		Payload:     def.Parameters,
		dependsOn:   def.DependsOn,
		condition:   def.Condition,
		probability: def.Prob(),
		delayDays:   delay,
	}
	if def.DependsOn != "" {
		ev.TriggeredBy = def.DependsOn
	}
	return ev, nil
}

// Realize runs the state machine to completion: events are processed in
// time order (ties by declaration order); conditions and probability draws
// are evaluated at the moment an event becomes eligible; dependents resolve
// when their dependency reaches a terminal state; branch rules are
// evaluated once at their named evaluation point.
//
// strict controls whether a condition referencing an unknown attribute is
// fatal (UnknownContextKeyError) or treated as false.
func (e *Engine) Realize(tl *Timeline, rng *rand.Rand, attrs map[string]any, strict bool) error {
	for {
		ev := nextScheduled(tl)
		if ev == nil {
			break
		}
		if err := e.processEvent(tl, ev, rng, attrs, strict); err != nil {
			return err
		}
	}

	// Events whose dependency never resolved can no longer fire.
	for _, ev := range tl.Events {
		if ev.Status == StatusPending {
			if err := ev.transition(StatusSkipped); err != nil {
				return err
			}
		}
	}
	tl.sortEvents()
	return nil
}

// Run builds and realizes a timeline in one step.
func (e *Engine) Run(entityID string, j *spec.JourneySpec, start time.Time, rng *rand.Rand, attrs map[string]any, strict bool) (*Timeline, error) {
	tl, err := e.BuildTimeline(entityID, j, start, rng)
	if err != nil {
		return nil, err
	}
	if err := e.Realize(tl, rng, attrs, strict); err != nil {
		return nil, err
	}
	return tl, nil
}

// processEvent advances one Scheduled event to a terminal state.
func (e *Engine) processEvent(tl *Timeline, ev *TimelineEvent, rng *rand.Rand, attrs map[string]any, strict bool) error {
	ok, err := e.evalCondition(tl, ev, rng, attrs, strict)
	if err != nil {
		return err
	}
	if !ok {
		if err := ev.transition(StatusSkipped); err != nil {
			return err
		}
		return e.afterTerminal(tl, ev, rng, attrs, strict)
	}

	if ev.probability < 1 && rng.Float64() >= ev.probability {
		if err := ev.transition(StatusSkipped); err != nil {
			return err
		}
		return e.afterTerminal(tl, ev, rng, attrs, strict)
	}

	if err := ev.transition(StatusFired); err != nil {
		return err
	}
	e.logger.Debug("event fired",
		"product", e.product,
		"entity_id", tl.EntityID,
		"event_id", ev.ID,
		"event_type", ev.Type,
		"scheduled_at", ev.ScheduledAt,
	)

	if e.onFired != nil {
		if err := e.onFired(e.product, tl.EntityID, ev); err != nil {
			return fmt.Errorf("fire observer for event %s: %w", ev.ID, err)
		}
	}

	if err := e.evaluateBranches(tl, ev, rng, attrs, strict); err != nil {
		return err
	}
	return e.afterTerminal(tl, ev, rng, attrs, strict)
}

// evalCondition interprets the event's condition against the running
// attribute/event context.
func (e *Engine) evalCondition(tl *Timeline, ev *TimelineEvent, rng *rand.Rand, attrs map[string]any, strict bool) (bool, error) {
	c := ev.condition
	if c == nil {
		return true, nil
	}
	switch c.Kind {
	case spec.CondAttribute:
		pred := dist.Predicate{Attribute: c.Attribute, Operator: c.Operator, Value: c.Value}
		ok, err := pred.Evaluate(attrs)
		if err != nil {
			if dist.IsMissingContext(err) {
				if strict {
					return false, &UnknownContextKeyError{EventID: ev.ID, Key: c.Attribute}
				}
				return false, nil
			}
			return false, err
		}
		return ok, nil
	case spec.CondRandom:
		return rng.Float64() < c.Probability, nil
	case spec.CondPriorEvent:
		prior := tl.Event(c.EventID)
		fired := prior != nil && prior.Status == StatusFired
		return fired == c.RequiresFired(), nil
	default:
		return false, fmt.Errorf("event %s: unknown condition kind %q", ev.ID, c.Kind)
	}
}

// evaluateBranches runs branch rules whose evaluation point is the fired
// event. Each rule is evaluated exactly once; matching rules inject their
// events relative to the evaluation point's resolved time.
func (e *Engine) evaluateBranches(tl *Timeline, fired *TimelineEvent, rng *rand.Rand, attrs map[string]any, strict bool) error {
	for i := range tl.branches {
		br := &tl.branches[i]
		if br.At != fired.ID || tl.branchDone[i] {
			continue
		}
		tl.branchDone[i] = true

		ok, err := br.When.Evaluate(attrs)
		if err != nil {
			if dist.IsMissingContext(err) {
				if strict {
					return &UnknownContextKeyError{EventID: fired.ID, Key: br.When.Attribute}
				}
				continue
			}
			return err
		}
		if !ok {
			continue
		}

		for _, def := range br.Events {
			ev, err := newEvent(def, rng)
			if err != nil {
				return fmt.Errorf("branch at %s event %s: %w", br.At, def.ID, err)
			}
			ev.TriggeredBy = fired.ID
			if ev.dependsOn == "" {
				ev.ScheduledAt = fired.ScheduledAt.Add(days(ev.delayDays))
				if err := ev.transition(StatusScheduled); err != nil {
					return err
				}
			}
			tl.add(ev)
			e.logger.Debug("branch event injected",
				"product", e.product,
				"entity_id", tl.EntityID,
				"branch_at", br.At,
				"event_id", ev.ID,
			)
			// The dependency may already be terminal.
			if ev.dependsOn != "" {
				if dep := tl.Event(ev.dependsOn); dep != nil && dep.Status.Terminal() {
					if err := e.resolveDependent(tl, ev, dep); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// afterTerminal resolves events that were waiting on ev. A satisfied
// dependency schedules the dependent relative to ev's resolved time; an
// unsatisfiable one cascades a skip.
func (e *Engine) afterTerminal(tl *Timeline, ev *TimelineEvent, rng *rand.Rand, attrs map[string]any, strict bool) error {
	for _, dep := range tl.Events {
		if dep.Status != StatusPending || dep.dependsOn != ev.ID {
			continue
		}
		if err := e.resolveDependent(tl, dep, ev); err != nil {
			return err
		}
		if dep.Status == StatusSkipped {
			// Cascade to anything waiting on the skipped event.
			if err := e.afterTerminal(tl, dep, rng, attrs, strict); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveDependent advances one Pending event whose dependency reached a
// terminal state. Fired always satisfies the edge; Skipped satisfies it
// only when the event's own prior_event condition says the dependency need
// not have fired.
func (e *Engine) resolveDependent(tl *Timeline, ev, dep *TimelineEvent) error {
	satisfied := dep.Status == StatusFired
	if dep.Status == StatusSkipped && ev.condition != nil &&
		ev.condition.Kind == spec.CondPriorEvent &&
		ev.condition.EventID == ev.dependsOn &&
		!ev.condition.RequiresFired() {
		satisfied = true
	}
	if !satisfied {
		return ev.transition(StatusSkipped)
	}
	ev.ScheduledAt = dep.ScheduledAt.Add(days(ev.delayDays))
	return ev.transition(StatusScheduled)
}

// nextScheduled returns the Scheduled event with the earliest
// (ScheduledAt, Seq), or nil when none remain.
func nextScheduled(tl *Timeline) *TimelineEvent {
	var next *TimelineEvent
	for _, ev := range tl.Events {
		if ev.Status != StatusScheduled {
			continue
		}
		if next == nil ||
			ev.ScheduledAt.Before(next.ScheduledAt) ||
			(ev.ScheduledAt.Equal(next.ScheduledAt) && ev.Seq < next.Seq) {
			next = ev
		}
	}
	return next
}

// ScheduleDerived appends a trigger-derived event to an entity's timeline,
// creating the timeline if the target product has not seen the entity yet.
// The event must arrive in Pending status; it is advanced to Scheduled.
func (e *Engine) ScheduleDerived(entityID string, start time.Time, ev *TimelineEvent) (*Timeline, error) {
	e.mu.Lock()
	tl, ok := e.timelines[entityID]
	if !ok {
		tl = NewTimeline(e.product, entityID, start)
		e.timelines[entityID] = tl
	}
	e.mu.Unlock()

	if err := ev.transition(StatusScheduled); err != nil {
		return nil, err
	}
	tl.add(ev)
	tl.sortEvents()
	return tl, nil
}

// FireDerived marks a derived event Fired and notifies the observer, so
// derived events are themselves eligible to fire further triggers.
func (e *Engine) FireDerived(entityID string, ev *TimelineEvent) error {
	if err := ev.transition(StatusFired); err != nil {
		return err
	}
	e.logger.Debug("derived event fired",
		"product", e.product,
		"entity_id", entityID,
		"event_id", ev.ID,
		"event_type", ev.Type,
	)
	if e.onFired != nil {
		return e.onFired(e.product, entityID, ev)
	}
	return nil
}

// sampleDelayDays draws the timing's delay in days.
func sampleDelayDays(t spec.Timing, rng *rand.Rand) (float64, error) {
	d := t.Dist()
	v, err := d.Sample(rng, nil)
	if err != nil {
		return 0, err
	}
	f, ok := toDays(v)
	if !ok {
		return 0, fmt.Errorf("timing produced non-numeric delay %T", v)
	}
	return f, nil
}

func toDays(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// days converts a day count to a duration.
func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}
