package workspace

import (
	"sync"
)

// Registry maps normalized workspace paths to identities. It holds at most
// one identity per normalized path; registering an already-known path
// replaces the previous entry.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[string]Identity),
	}
}

// Register inserts or replaces the identity keyed by its normalized path
func (r *Registry) Register(identity Identity) {
	key := NormalizePath(identity.Path)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities[key] = identity
}

// Unregister removes the identity for the given path. Removing an unknown
// path is a no-op, not an error.
func (r *Registry) Unregister(path string) {
	key := NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.identities, key)
}

// Resolve normalizes the given path and looks up its identity
func (r *Registry) Resolve(path string) (Identity, bool) {
	key := NormalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[key]
	return identity, ok
}

// List returns a snapshot of all registered identities
func (r *Registry) List() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]Identity, 0, len(r.identities))
	for _, identity := range r.identities {
		identities = append(identities, identity)
	}
	return identities
}

// Len returns the number of registered identities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.identities)
}

// Clear removes all registered identities
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities = make(map[string]Identity)
}
