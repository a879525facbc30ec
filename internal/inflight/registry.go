// Package inflight provides the in-process execution registry that keeps
// overlapping execute calls from moving the same message twice.
package inflight

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is a mutex-backed core.ExecutionRegistry. A distributed
// deployment would replace it with a shared lock behind the same interface.
type Registry struct {
	mu     sync.Mutex
	claims map[string]struct{}
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		claims: make(map[string]struct{}),
		logger: logger,
	}
}

// TryClaim atomically claims an id, returning false if it is already held
func (r *Registry) TryClaim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.claims[id]; held {
		r.logger.Debug("Message already claimed by another execution", zap.String("message_id", id))
		return false
	}

	r.claims[id] = struct{}{}
	return true
}

// Release frees a previously claimed id. Releasing an unclaimed id is a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.claims, id)
}

// Size returns the number of ids currently claimed
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.claims)
}
