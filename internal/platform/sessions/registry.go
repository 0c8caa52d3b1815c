package sessions

import (
	"sync"

	"github.com/replicore/permcore/internal/permissions/domain"
)

// DefaultRegistry is the default implementation of Registry
type DefaultRegistry struct {
	perms map[string]domain.Permissions
	mu    sync.RWMutex
}

// NewRegistry creates a new session registry
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		perms: make(map[string]domain.Permissions),
	}
}

// Get retrieves the current Permissions for a user
func (r *DefaultRegistry) Get(userID string) (domain.Permissions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.perms[userID]
	return p, ok
}

// Put stores or replaces the Permissions for a user
func (r *DefaultRegistry) Put(userID string, perms domain.Permissions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms[userID] = perms
}

// Drop removes a user's Permissions
func (r *DefaultRegistry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.perms, userID)
}
