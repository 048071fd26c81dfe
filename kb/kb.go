package kb

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

var (
	// ErrEntityExists is returned when adding an entity whose ID is taken.
	ErrEntityExists = errors.New("entity already exists")
	// ErrEntityNotFound is returned for lookups of unknown IDs.
	ErrEntityNotFound = errors.New("entity not found")
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventEntityAdded EventType = iota
	EventEntityUpdated
	EventEntityRemoved
)

func (t EventType) String() string {
	switch t {
	case EventEntityAdded:
		return "added"
	case EventEntityUpdated:
		return "updated"
	case EventEntityRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when an entity changes.
type Event struct {
	Type   EventType
	Entity model.EntitySpec
}

// EntityRegistry is an in-memory, thread-safe store of entity specs. It keeps
// insertion order so simulations see entities in a stable order.
type EntityRegistry struct {
	mu sync.RWMutex

	entities map[model.EntityID]*model.EntitySpec
	order    []model.EntityID

	subs   map[int]func(Event)
	nextID int
}

// NewEntityRegistry constructs an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		entities: make(map[model.EntityID]*model.EntitySpec),
		subs:     make(map[int]func(Event)),
	}
}

// Add validates and stores spec. An empty ID is replaced with a fresh UUID.
// The stored ID is returned.
func (r *EntityRegistry) Add(spec model.EntitySpec) (model.EntityID, error) {
	spec, err := normalize(spec)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, exists := r.entities[spec.ID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrEntityExists, spec.ID)
	}
	r.entities[spec.ID] = &spec
	r.order = append(r.order, spec.ID)
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventEntityAdded, Entity: spec.Clone()})
	return spec.ID, nil
}

// Replace swaps the whole registry contents for specs. Every spec is
// normalised and validated first; on any error the registry is unchanged.
// Subscribers see a removal for each old entity followed by an addition for
// each new one.
func (r *EntityRegistry) Replace(specs []model.EntitySpec) ([]model.EntityID, error) {
	next := make(map[model.EntityID]*model.EntitySpec, len(specs))
	order := make([]model.EntityID, 0, len(specs))
	added := make([]model.EntitySpec, 0, len(specs))
	for i, spec := range specs {
		spec, err := normalize(spec)
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		if _, dup := next[spec.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrEntityExists, spec.ID)
		}
		next[spec.ID] = &spec
		order = append(order, spec.ID)
		added = append(added, spec.Clone())
	}

	r.mu.Lock()
	removed := make([]model.EntitySpec, 0, len(r.order))
	for _, id := range r.order {
		removed = append(removed, r.entities[id].Clone())
	}
	r.entities = next
	r.order = order
	subs := r.subscribersLocked()
	r.mu.Unlock()

	for _, e := range removed {
		notify(subs, Event{Type: EventEntityRemoved, Entity: e})
	}
	ids := make([]model.EntityID, 0, len(added))
	for _, e := range added {
		ids = append(ids, e.ID)
		notify(subs, Event{Type: EventEntityAdded, Entity: e})
	}
	return ids, nil
}

// Get returns a copy of the entity with the given ID.
func (r *EntityRegistry) Get(id model.EntityID) (model.EntitySpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return model.EntitySpec{}, fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	return e.Clone(), nil
}

// Update applies fn to a copy of the entity and stores the result if it is
// still valid. The ID cannot be changed.
func (r *EntityRegistry) Update(id model.EntityID, fn func(*model.EntitySpec)) error {
	r.mu.Lock()
	current, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	next := current.Clone()
	fn(&next)
	next.ID = id
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.entities[id] = &next
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventEntityUpdated, Entity: next.Clone()})
	return nil
}

// Remove deletes the entity with the given ID.
func (r *EntityRegistry) Remove(id model.EntityID) error {
	r.mu.Lock()
	e, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	delete(r.entities, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventEntityRemoved, Entity: e.Clone()})
	return nil
}

// List returns copies of all entities in insertion order.
func (r *EntityRegistry) List() []model.EntitySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.EntitySpec, 0, len(r.order))
	for _, id := range r.order {
		res = append(res, r.entities[id].Clone())
	}
	return res
}

// Len returns the number of registered entities.
func (r *EntityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every entity without emitting events.
func (r *EntityRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[model.EntityID]*model.EntitySpec)
	r.order = nil
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *EntityRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

func (r *EntityRegistry) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(r.subs))
	for i := 0; i < r.nextID; i++ {
		if fn, ok := r.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func normalize(spec model.EntitySpec) (model.EntitySpec, error) {
	spec = spec.Clone()
	spec.ID = model.EntityID(strings.TrimSpace(string(spec.ID)))
	if spec.ID == "" {
		spec.ID = model.EntityID(uuid.NewString())
	}
	if err := spec.Validate(); err != nil {
		return model.EntitySpec{}, err
	}
	return spec, nil
}

// Subscribers are called outside the lock so they may call back into the
// registry.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
