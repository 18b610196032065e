// Package identity correlates one logical person across product-specific
// identifiers.
//
// The registry is the only shared mutable structure in batch generation.
// All access goes through a single mutex so entity attribute and timeline
// computation can run in parallel while registrations serialize.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints new core identifiers.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
// Panics when exhausted - fail-fast for test misconfiguration.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// PersonIdentity is one logical person: an authoritative core id plus
// per-product identifiers.
type PersonIdentity struct {
	CoreID     string            `json:"core_id"`
	ProductIDs map[string]string `json:"product_ids"`
}

// ErrNotFound is returned when a (product, product id) pair has not been
// registered.
var ErrNotFound = errors.New("identity not found")

// ConflictError reports an attempt to re-register a (product, product id)
// pair under a different core id. This indicates a caller bug and is always
// fatal for the operation.
type ConflictError struct {
	Product   string
	ProductID string
	Existing  string // core id already bound
	Attempted string // core id the caller tried to bind
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict: (%s, %s) already bound to core id %s, cannot rebind to %s",
		e.Product, e.ProductID, e.Existing, e.Attempted)
}

// IsConflict reports whether err is an identity conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

type productKey struct {
	product   string
	productID string
}

// Registry maps logical persons to per-product identifiers.
//
// INVARIANTS:
//   - core_id is stable for the life of the registry
//   - a (product, product_id) pair resolves to exactly one core_id
//   - no entity is ever re-assigned a different core_id
type Registry struct {
	mu        sync.Mutex
	gen       IDGenerator
	persons   map[string]*PersonIdentity
	byProduct map[productKey]string
}

// NewRegistry creates an empty registry minting core ids from gen.
func NewRegistry(gen IDGenerator) *Registry {
	return &Registry{
		gen:       gen,
		persons:   make(map[string]*PersonIdentity),
		byProduct: make(map[productKey]string),
	}
}

// Register binds (product, productID) to a person and returns the core id.
// An empty coreID mints a new one lazily. Re-registering the same pair with
// the same core id is idempotent; with a different core id it fails with a
// ConflictError.
func (r *Registry) Register(coreID, product, productID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := productKey{product, productID}
	if existing, ok := r.byProduct[key]; ok {
		if coreID != "" && coreID != existing {
			return "", &ConflictError{Product: product, ProductID: productID, Existing: existing, Attempted: coreID}
		}
		return existing, nil
	}

	if coreID == "" {
		coreID = r.gen.Generate()
	}
	person, ok := r.persons[coreID]
	if !ok {
		person = &PersonIdentity{CoreID: coreID, ProductIDs: make(map[string]string)}
		r.persons[coreID] = person
	}
	person.ProductIDs[product] = productID
	r.byProduct[key] = coreID
	return coreID, nil
}

// Resolve returns the core id bound to (product, productID), or ErrNotFound.
func (r *Registry) Resolve(product, productID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if coreID, ok := r.byProduct[productKey{product, productID}]; ok {
		return coreID, nil
	}
	return "", fmt.Errorf("resolve (%s, %s): %w", product, productID, ErrNotFound)
}

// Link asserts that (productA, idA) and (productB, idB) are the same
// person. If neither side is registered, a core id is minted; if both are
// registered to different persons, the link fails with a ConflictError.
func (r *Registry) Link(productA, idA, productB, idB string) error {
	coreA, errA := r.Resolve(productA, idA)
	coreB, errB := r.Resolve(productB, idB)

	switch {
	case errA == nil && errB == nil:
		if coreA != coreB {
			return &ConflictError{Product: productB, ProductID: idB, Existing: coreB, Attempted: coreA}
		}
		return nil
	case errA == nil:
		_, err := r.Register(coreA, productB, idB)
		return err
	case errB == nil:
		_, err := r.Register(coreB, productA, idA)
		return err
	default:
		coreID, err := r.Register("", productA, idA)
		if err != nil {
			return err
		}
		_, err = r.Register(coreID, productB, idB)
		return err
	}
}

// ProductID returns the person's identifier in the given product, if any.
func (r *Registry) ProductID(coreID, product string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	person, ok := r.persons[coreID]
	if !ok {
		return "", false
	}
	id, ok := person.ProductIDs[product]
	return id, ok
}

// EnsureProductID returns the person's identifier in the given product,
// minting and registering one if absent. Used by the trigger coordinator to
// address derived events when the target product has not yet seen the
// person.
func (r *Registry) EnsureProductID(coreID, product string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	person, ok := r.persons[coreID]
	if !ok {
		person = &PersonIdentity{CoreID: coreID, ProductIDs: make(map[string]string)}
		r.persons[coreID] = person
	}
	if id, ok := person.ProductIDs[product]; ok {
		return id, nil
	}
	productID := r.gen.Generate()
	person.ProductIDs[product] = productID
	r.byProduct[productKey{product, productID}] = coreID
	return productID, nil
}

// Person returns a copy of the person record for coreID.
func (r *Registry) Person(coreID string) (PersonIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	person, ok := r.persons[coreID]
	if !ok {
		return PersonIdentity{}, false
	}
	out := PersonIdentity{CoreID: person.CoreID, ProductIDs: make(map[string]string, len(person.ProductIDs))}
	for k, v := range person.ProductIDs {
		out.ProductIDs[k] = v
	}
	return out, true
}

// Len returns the number of registered persons.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.persons)
}
