// Package registry contains the bookkeeping of enabled block-rule resources.
// It tracks, per rule-type ID, the resource that should be compiled and the
// resource whose compilation was last attempted, and derives from the two the
// set of resources still pending compilation.
package registry

import (
	"maps"
	"sync"

	"github.com/Libertus-Lab/shieldcore/internal/ruleset"
)

// Registry holds the desired and the last-attempted compile state of
// block-rule resources.  All methods are safe for concurrent use; every
// operation runs under a single mutex, so no partial state is observable.
//
// Registry has no failure modes.
type Registry struct {
	// mu protects enabled and compiled.
	mu *sync.Mutex

	// enabled maps rule-type IDs to the resources that should be part of the
	// compiled set.
	enabled map[ruleset.ID]ruleset.Resource

	// compiled maps rule-type IDs to the resources last handed to the
	// compiler.  An entry records the last compile attempt regardless of its
	// outcome, not the last success.
	compiled map[ruleset.ID]ruleset.Resource
}

// New returns a new empty *Registry.
func New() (r *Registry) {
	return &Registry{
		mu:       &sync.Mutex{},
		enabled:  map[ruleset.ID]ruleset.Resource{},
		compiled: map[ruleset.ID]ruleset.Resource{},
	}
}

// SetEnabled records res as the desired resource for id, overwriting any
// previous one.  It is idempotent.
func (r *Registry) SetEnabled(res ruleset.Resource, id ruleset.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enabled[id] = res
}

// RemoveEnabled removes the desired resource for id, if any.
func (r *Registry) RemoveEnabled(id ruleset.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.enabled, id)
}

// Pending returns the enabled resources whose compilation has not been
// attempted yet, that is, entries absent from or different in the
// last-attempted state.  The result is a copy owned by the caller.
func (r *Registry) Pending() (pending map[ruleset.ID]ruleset.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending = map[ruleset.ID]ruleset.Resource{}
	for id, res := range r.enabled {
		if prev, ok := r.compiled[id]; !ok || prev != res {
			pending[id] = res
		}
	}

	return pending
}

// MarkAttempted records that a compile attempt, successful or not, has been
// made for the currently enabled resource of id.  The enabled value is
// captured at call time, so if SetEnabled ran after the caller snapshotted
// its pending work, the newer resource wins and stays out of the pending set.
// This is deliberate last-writer-wins behavior.
func (r *Registry) MarkAttempted(id ruleset.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.enabled[id]
	if !ok {
		return
	}

	r.compiled[id] = res
}

// IsSynced is true when no enabled resource is pending compilation.
func (r *Registry) IsSynced() (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, res := range r.enabled {
		if prev, ok := r.compiled[id]; !ok || prev != res {
			return false
		}
	}

	return true
}

// Enabled returns a copy of the currently enabled resources.
func (r *Registry) Enabled() (enabled map[ruleset.ID]ruleset.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.enabled)
}
