// Package trigger coordinates cross-domain event correlation: an event
// fired in one product's journey engine schedules correlated events into
// other products' engines, addressed through the identity registry.
//
// All trigger specs are loaded at construction, validated for cycles, and
// never mutated afterwards. Runtime firing is therefore guaranteed to
// terminate: chained triggers walk an acyclic (product, event_type) graph.
package trigger

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cohortgen/cohortgen/internal/identity"
	"github.com/cohortgen/cohortgen/internal/journey"
	"github.com/cohortgen/cohortgen/internal/seed"
	"github.com/cohortgen/cohortgen/internal/spec"
)

// Coordinator observes fired events and schedules derived events into
// other products' journey engines.
//
// Determinism: every probability and delay draw for a person comes from a
// stream keyed by (root seed, core id), not by generation order, so trigger
// outcomes are identical no matter which worker generated the entity or how
// the batch was sliced.
type Coordinator struct {
	specs    []spec.TriggerSpec
	registry *identity.Registry
	engines  map[string]*journey.Engine
	rootSeed int64
	logger   *slog.Logger

	mu       sync.Mutex
	streams  map[string]*rand.Rand
	derived  map[string]int
	queue    []firing
	draining bool
}

// firing is one derived event waiting to be scheduled and fired.
type firing struct {
	product  string
	entityID string
	event    *journey.TimelineEvent
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's structured logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator validates the trigger specs and builds a coordinator over
// the given product engines. Registration fails with a CyclicSpecError if
// any target event type transitively triggers its own source type, and
// with an UnknownProductError if a spec names a product without an engine.
func NewCoordinator(specs []spec.TriggerSpec, registry *identity.Registry, engines map[string]*journey.Engine, rootSeed int64, opts ...CoordinatorOption) (*Coordinator, error) {
	for i, ts := range specs {
		if ts.Probability < 0 || ts.Probability > 1 {
			return nil, fmt.Errorf("trigger %d: probability %v outside [0,1]", i, ts.Probability)
		}
		if err := ts.Delay.Validate(); err != nil {
			return nil, fmt.Errorf("trigger %d delay: %w", i, err)
		}
		if _, ok := engines[ts.SourceProduct]; !ok {
			return nil, &UnknownProductError{Product: ts.SourceProduct}
		}
		if _, ok := engines[ts.TargetProduct]; !ok {
			return nil, &UnknownProductError{Product: ts.TargetProduct}
		}
	}
	if err := detectCycle(specs); err != nil {
		return nil, err
	}

	c := &Coordinator{
		specs:    specs,
		registry: registry,
		engines:  engines,
		rootSeed: rootSeed,
		logger:   slog.Default(),
		streams:  make(map[string]*rand.Rand),
		derived:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Attach registers the coordinator as the fire observer on every engine.
// Call once, before any timeline is realized.
func (c *Coordinator) Attach() {
	for _, eng := range c.engines {
		eng.SetFireObserver(c.OnEventFired)
	}
}

// OnEventFired evaluates every trigger spec matching the fired event, in
// declaration order. Matching specs draw an independent Bernoulli against
// their probability; firing specs sample a delay, resolve the person's
// identity in the target product, and schedule a derived event at
// event.ScheduledAt + delay.
//
// Derived events fire through a FIFO queue rather than recursively, so
// chained triggers realize in the order their sources fired.
func (c *Coordinator) OnEventFired(product, entityID string, ev *journey.TimelineEvent) error {
	coreID, err := c.registry.Resolve(product, entityID)
	if err != nil {
		return fmt.Errorf("trigger source (%s, %s): %w", product, entityID, err)
	}

	for _, ts := range c.specs {
		if ts.SourceProduct != product || ts.SourceEventType != ev.Type {
			continue
		}
		if err := c.evaluate(ts, coreID, ev); err != nil {
			return err
		}
	}
	return c.drain()
}

// evaluate runs one matching spec against one fired event.
func (c *Coordinator) evaluate(ts spec.TriggerSpec, coreID string, ev *journey.TimelineEvent) error {
	c.mu.Lock()
	rng := c.streams[coreID]
	if rng == nil {
		rng = seed.StreamKey(c.rootSeed, "trigger/"+coreID)
		c.streams[coreID] = rng
	}
	fire := rng.Float64() < ts.Probability
	var delay float64
	var derivedID string
	if fire {
		v, err := ts.Delay.Sample(rng, nil)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("trigger %s/%s delay: %w", ts.SourceProduct, ts.SourceEventType, err)
		}
		d, ok := toDays(v)
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("trigger %s/%s delay produced non-numeric value %T", ts.SourceProduct, ts.SourceEventType, v)
		}
		delay = d
		c.derived[coreID]++
		derivedID = fmt.Sprintf("%s-%d", ts.TargetEventType, c.derived[coreID])
	}
	c.mu.Unlock()

	if !fire {
		return nil
	}

	targetID, err := c.registry.EnsureProductID(coreID, ts.TargetProduct)
	if err != nil {
		return err
	}

	at := ev.ScheduledAt.Add(time.Duration(delay * float64(24*time.Hour)))
	derived := journey.NewDerivedEvent(derivedID, ts.TargetEventType, ev.ID, at, ev.Payload)

	c.logger.Debug("trigger fired",
		"source_product", ts.SourceProduct,
		"source_event", ev.ID,
		"target_product", ts.TargetProduct,
		"target_event_type", ts.TargetEventType,
		"core_id", coreID,
		"scheduled_at", at,
	)

	c.mu.Lock()
	c.queue = append(c.queue, firing{product: ts.TargetProduct, entityID: targetID, event: derived})
	c.mu.Unlock()
	return nil
}

// drain schedules and fires queued derived events in FIFO order. Firing a
// derived event re-enters OnEventFired, which only appends to the queue
// while a drain is in progress, so chains stay breadth-ordered and the
// stack stays flat.
func (c *Coordinator) drain() error {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return nil
		}
		f := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		eng := c.engines[f.product]
		if _, err := eng.ScheduleDerived(f.entityID, f.event.ScheduledAt, f.event); err != nil {
			return err
		}
		if err := eng.FireDerived(f.entityID, f.event); err != nil {
			return err
		}
	}
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
