// Package profile executes population specifications into batches of
// generated entities.
//
// Each entity is generated from its own derived seed (never a running RNG
// state carried across entities), in a fixed attribute order, so a given
// (profile, seed, index) triple always yields the same entity. Batch
// generation across entities is embarrassingly parallel; the executor runs
// a bounded worker pool and supports cooperative cancellation between
// entities, never mid-entity.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cohortgen/cohortgen/internal/canon"
	"github.com/cohortgen/cohortgen/internal/dist"
	"github.com/cohortgen/cohortgen/internal/seed"
	"github.com/cohortgen/cohortgen/internal/spec"
)

// Resolver substitutes empirical reference-data distributions for declared
// ones. External collaborator: the executor treats the result as more
// DistributionSpecs and makes no assumption about where they came from.
type Resolver interface {
	Resolve(ctx context.Context, region string, datasets []string) (map[string]dist.Spec, error)
}

// ProgressFunc is invoked after each entity completes (generated or
// failed). done counts completed entities, total is the requested count.
// Intended for caller-side UI; the executor never depends on it.
type ProgressFunc func(done, total int)

// Executor generates entity batches from profile specifications.
// Collaborators are injected at construction; there is no global state.
type Executor struct {
	resolver Resolver
	progress ProgressFunc
	logger   *slog.Logger
	workers  int
}

// Option configures an Executor.
type Option func(*Executor)

// WithResolver attaches a reference-data resolver.
func WithResolver(r Resolver) Option {
	return func(x *Executor) { x.resolver = r }
}

// WithProgress attaches a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(x *Executor) { x.progress = fn }
}

// WithLogger sets the executor's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// WithWorkers bounds the worker pool for parallel batch generation.
// Values below 1 mean sequential execution.
func WithWorkers(n int) Option {
	return func(x *Executor) { x.workers = n }
}

// NewExecutor creates a profile executor.
func NewExecutor(opts ...Option) *Executor {
	x := &Executor{
		logger:  slog.Default(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.workers < 1 {
		x.workers = 1
	}
	return x
}

// Execute generates the batch described by p.
//
// Entities are independent: entity i is derived from (root seed, i) alone,
// so generating 0..k and separately 0..k+1 reproduces identical values for
// 0..k. Under warn/none validation modes a failed entity is recorded in the
// report and does not abort siblings; under strict any failure aborts the
// batch. Structural errors (malformed spec, invalid distributions) always
// abort before any sampling.
func (x *Executor) Execute(ctx context.Context, p *spec.ProfileSpec) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	root := rootSeed(p)
	mode := p.Generation.Mode()
	count := p.Generation.Count

	plan, err := x.buildPlan(ctx, p)
	if err != nil {
		return nil, err
	}

	x.logger.Info("executing profile",
		"profile", p.ID,
		"count", count,
		"seed", root,
		"validation_mode", string(mode),
		"workers", x.workers,
	)

	entities := make([]*Entity, count)
	entityErrs := make([]error, count)

	var done int
	var progressMu sync.Mutex
	report := func() {
		if x.progress == nil {
			return
		}
		progressMu.Lock()
		done++
		n := done
		progressMu.Unlock()
		x.progress(n, count)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for i := 0; i < count; i++ {
		// Cooperative cancellation between entities: an in-flight entity
		// always finishes, the rest are abandoned.
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			ent, err := x.generateEntity(p, plan, root, i, mode)
			if err != nil {
				if mode == spec.ValidationStrict {
					return fmt.Errorf("entity %d: %w", i, err)
				}
				entityErrs[i] = err
				report()
				return nil
			}
			entities[i] = ent
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return assemble(root, count, entities, entityErrs), nil
}

// assemble compacts the indexed results into a Result, keeping per-entity
// failures distinct from the surviving entities.
func assemble(root int64, count int, entities []*Entity, entityErrs []error) *Result {
	res := &Result{Report: Report{Requested: count, Seed: root}}
	for i := 0; i < count; i++ {
		if err := entityErrs[i]; err != nil {
			res.Report.Failures = append(res.Report.Failures, EntityFailure{Index: i, Error: err.Error()})
			continue
		}
		if ent := entities[i]; ent != nil {
			res.Entities = append(res.Entities, ent)
			res.Report.Warnings += len(ent.Report.Warnings)
		}
	}
	res.Report.Generated = len(res.Entities)
	return res
}

// attributePlan is the resolved, ordered list of attribute draws. Built
// once per batch so every entity samples the same attributes in the same
// declared order: demographics, then clinical, then coverage.
type attributePlan struct {
	attrs         []plannedAttr
	comorbidities []spec.Comorbidity
}

type plannedAttr struct {
	name string
	dist dist.Spec
}

// buildPlan fixes the attribute sampling order and applies resolver
// overrides. Overrides substitute attribute-by-attribute; an override for
// an undeclared attribute is appended after the declared geography block,
// in name order, so the plan stays deterministic.
func (x *Executor) buildPlan(ctx context.Context, p *spec.ProfileSpec) (*attributePlan, error) {
	plan := &attributePlan{}
	plan.attrs = append(plan.attrs,
		plannedAttr{name: "age", dist: p.Demographics.Age},
		plannedAttr{name: "gender", dist: p.Demographics.Gender},
	)

	var overrides map[string]dist.Spec
	geo := p.Demographics.Geography
	if geo != nil && x.resolver != nil && geo.Region != "" && len(geo.Datasets) > 0 {
		resolved, err := x.resolver.Resolve(ctx, geo.Region, geo.Datasets)
		if err != nil {
			return nil, fmt.Errorf("resolve reference data for region %q: %w", geo.Region, err)
		}
		overrides = resolved
	}
	if geo != nil {
		for _, a := range geo.Attributes {
			d := a.Dist
			if o, ok := overrides[a.Name]; ok {
				d = o
				delete(overrides, a.Name)
			}
			plan.attrs = append(plan.attrs, plannedAttr{name: a.Name, dist: d})
		}
	}
	if len(overrides) > 0 {
		extra := make([]string, 0, len(overrides))
		for name := range overrides {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		for _, name := range extra {
			d := overrides[name]
			if err := d.Validate(); err != nil {
				return nil, fmt.Errorf("resolved distribution %q: %w", name, err)
			}
			plan.attrs = append(plan.attrs, plannedAttr{name: name, dist: d})
		}
	}

	if p.Clinical != nil {
		plan.attrs = append(plan.attrs, plannedAttr{name: "primary_condition", dist: p.Clinical.PrimaryCondition})
		plan.comorbidities = p.Clinical.Comorbidities
		if p.Clinical.Severity != nil {
			plan.attrs = append(plan.attrs, plannedAttr{name: "severity", dist: *p.Clinical.Severity})
		}
	}
	for _, a := range p.Coverage {
		plan.attrs = append(plan.attrs, plannedAttr{name: a.Name, dist: a.Dist})
	}
	return plan, nil
}

// generateEntity samples one entity from its derived seed. All randomness
// comes from the entity's own attribute stream; sampling order is the
// plan's fixed order, and comorbidity draws happen immediately after the
// primary condition so severity and coverage positions stay stable.
func (x *Executor) generateEntity(p *spec.ProfileSpec, plan *attributePlan, root int64, index int, mode spec.ValidationMode) (*Entity, error) {
	id, err := canon.EntityFingerprint(p.ID, root, index)
	if err != nil {
		return nil, err
	}

	rng := seed.Stream(root, index, seed.StreamAttributes)
	attrs := make(map[string]any, len(plan.attrs)+len(plan.comorbidities))

	for _, pa := range plan.attrs {
		v, err := pa.dist.Sample(rng, attrs)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", pa.name, err)
		}
		attrs[pa.name] = v
		if pa.name == "primary_condition" {
			sampleComorbidities(plan.comorbidities, rng, attrs)
		}
	}

	ent := &Entity{
		ID:         id,
		Index:      index,
		Attributes: attrs,
		SeedUsed:   seed.Derive(root, index),
	}

	if mode != spec.ValidationNone {
		warnings := plausibilityWarnings(attrs)
		if mode == spec.ValidationStrict && len(warnings) > 0 {
			return nil, &ConstraintError{Index: index, Violations: warnings}
		}
		ent.Report.Warnings = warnings
	}
	return ent, nil
}

// sampleComorbidities draws each comorbidity as an independent Bernoulli.
// Present conditions accumulate under the "comorbidities" attribute in
// declaration order.
func sampleComorbidities(cs []spec.Comorbidity, rng *rand.Rand, attrs map[string]any) {
	if len(cs) == 0 {
		return
	}
	present := make([]any, 0, len(cs))
	for _, c := range cs {
		if rng.Float64() < c.Probability {
			present = append(present, c.Condition)
		}
	}
	attrs["comorbidities"] = present
}

// rootSeed returns the declared seed, or derives one from wall time when
// the profile leaves it unset. The effective seed is always recorded on the
// report so an unseeded run is still reproducible afterwards.
func rootSeed(p *spec.ProfileSpec) int64 {
	if p.Generation.Seed != nil {
		return *p.Generation.Seed
	}
	return time.Now().UnixNano()
}
