// Package registry holds the identifiers of every provisioned virtual user so
// that agents can pick each other as relation targets.
package registry

import (
	"math/rand"
	"sync"
)

// Registry is a concurrent set of user identifiers. The zero value is ready to use.
type Registry struct {
	mu    sync.RWMutex
	ids   []string
	index map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add inserts id. It reports false when id is empty or already present.
func (r *Registry) Add(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if _, exists := r.index[id]; exists {
		return false
	}
	r.index[id] = len(r.ids)
	r.ids = append(r.ids, id)
	return true
}

// Contains reports whether id has been added.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// Len returns the number of identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Snapshot returns a point-in-time copy of the identifiers in insertion order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// PickOtherThan returns a uniformly random identifier that is neither self nor
// in excluding. The second result is false when no such identifier exists.
func (r *Registry) PickOtherThan(self string, excluding map[string]struct{}, rnd *rand.Rand) (string, bool) {
	r.mu.RLock()
	candidates := make([]string, 0, len(r.ids))
	for _, id := range r.ids {
		if id == self {
			continue
		}
		if _, skip := excluding[id]; skip {
			continue
		}
		candidates = append(candidates, id)
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rnd.Intn(len(candidates))], true
}
