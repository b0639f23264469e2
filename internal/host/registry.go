package host

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry manages discovered plugins.
type Registry struct {
	sync.RWMutex
	plugins map[string]*Plugin // id -> plugin
	byKind  map[Kind][]*Plugin // kind -> plugins
	logger  *zap.Logger
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
		byKind:  make(map[Kind][]*Plugin),
		logger:  logger.With(zap.String("component", "plugin-registry")),
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(p *Plugin) error {
	r.Lock()
	defer r.Unlock()

	id := p.Manifest.ID

	if _, exists := r.plugins[id]; exists {
		return &PluginAlreadyRegisteredError{PluginID: id}
	}

	r.plugins[id] = p
	r.byKind[p.Manifest.Kind] = append(r.byKind[p.Manifest.Kind], p)

	r.logger.Info("Plugin registered",
		zap.String("id", id),
		zap.String("kind", string(p.Manifest.Kind)),
	)

	return nil
}

// Get retrieves a plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.RLock()
	defer r.RUnlock()

	p, ok := r.plugins[id]
	return p, ok
}

// LookupByKind returns the plugins loaded as kind.
func (r *Registry) LookupByKind(kind Kind) []*Plugin {
	r.RLock()
	defer r.RUnlock()

	plugins := r.byKind[kind]
	result := make([]*Plugin, len(plugins))
	copy(result, plugins)
	return result
}

// List returns all registered plugins ordered by id.
func (r *Registry) List() []*Plugin {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.ID < result[j].Manifest.ID
	})
	return result
}

// Unregister removes a plugin from the registry.
func (r *Registry) Unregister(id string) {
	r.Lock()
	defer r.Unlock()

	p, ok := r.plugins[id]
	if !ok {
		return
	}

	kind := p.Manifest.Kind
	plugins := r.byKind[kind]
	for i, other := range plugins {
		if other.Manifest.ID == id {
			r.byKind[kind] = append(plugins[:i], plugins[i+1:]...)
			break
		}
	}

	delete(r.plugins, id)

	r.logger.Info("Plugin unregistered", zap.String("id", id))
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.plugins)
}
