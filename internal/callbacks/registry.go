package callbacks

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps instance ids to their callback tables.
//
// The lock only covers map access. Tables are returned by value so callers
// invoke host functions without holding it.
type Registry struct {
	mu     sync.Mutex
	tables map[string]Table
	logger *zap.Logger
}

// NewRegistry creates an empty callback registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tables: make(map[string]Table),
		logger: logger.With(zap.String("component", "callback-registry")),
	}
}

// Register stores table for instanceID, replacing any previous table.
func (r *Registry) Register(instanceID string, table Table) {
	r.mu.Lock()
	_, replaced := r.tables[instanceID]
	r.tables[instanceID] = table
	r.mu.Unlock()

	r.logger.Debug("Callbacks registered",
		zap.String("instance_id", instanceID),
		zap.Bool("replaced", replaced),
	)
}

// Lookup returns a copy of the table registered for instanceID.
func (r *Registry) Lookup(instanceID string) (Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.tables[instanceID]
	return table, ok
}

// Unregister removes the table for instanceID and reports whether one existed.
func (r *Registry) Unregister(instanceID string) bool {
	r.mu.Lock()
	_, ok := r.tables[instanceID]
	delete(r.tables, instanceID)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("Callbacks unregistered", zap.String("instance_id", instanceID))
	}
	return ok
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}
