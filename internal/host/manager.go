package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/config"
	"github.com/woxQAQ/plugin-bridge/internal/history"
	"github.com/woxQAQ/plugin-bridge/internal/plugin"
	"github.com/woxQAQ/plugin-bridge/internal/stream"
	"github.com/woxQAQ/plugin-bridge/internal/wasm"
	"go.uber.org/zap"
)

// Manager manages plugin discovery and instance lifecycle.
type Manager struct {
	cfg         *config.HostConfig
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	callbacks   *callbacks.Registry
	streams     *stream.Registry
	frontend    *Frontend
	history     *history.Store
	logger      *zap.Logger

	mu        sync.RWMutex
	loaded    bool
	natives   map[string]plugin.CreatePluginFunc
	instances map[string]*Instance
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistory backs require_history plugins with store.
func WithHistory(store *history.Store) Option {
	return func(m *Manager) {
		m.history = store
	}
}

// RuntimeConfig converts the wasm section of the host config.
func RuntimeConfig(cfg config.WasmConfig) *wasm.RuntimeConfig {
	return &wasm.RuntimeConfig{
		MemoryPages:  cfg.MemoryPages,
		DebugEnabled: cfg.Debug,
		CacheDir:     cfg.CacheDir,
		MaxInstances: cfg.MaxInstances,
		CallTimeout:  cfg.CallTimeoutDuration(),
	}
}

// NewManager creates a new plugin manager.
func NewManager(cfg *config.HostConfig, runtime *wasm.Runtime, logger *zap.Logger, opts ...Option) *Manager {
	registry := callbacks.NewRegistry(logger)
	m := &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, wasm.NewHostFunctions(registry, logger), logger),
		callbacks:   registry,
		streams:     stream.NewRegistry(logger),
		frontend:    NewFrontend(cfg.App, logger),
		logger:      logger.With(zap.String("component", "plugin-manager")),
		natives:     make(map[string]plugin.CreatePluginFunc),
		instances:   make(map[string]*Instance),
	}
	m.frontend.setRouter(m)
	m.frontend.SetEventLimit(cfg.Frontend.EventLimit)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAll discovers and loads all plugins from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("plugins already loaded")
	}

	m.logger.Info("Loading plugins",
		zap.Strings("paths", m.cfg.PluginPaths),
	)

	plugins, err := m.loader.DiscoverPlugins(ctx, m.cfg.PluginPaths)
	if err != nil {
		var none *NoPluginsFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No plugins found in configured paths",
				zap.Strings("paths", m.cfg.PluginPaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, p := range plugins {
		if err := m.registry.Register(p); err != nil {
			m.logger.Error("Failed to register plugin",
				zap.String("id", p.Manifest.ID),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Plugins loaded successfully",
		zap.Int("count", len(plugins)),
	)

	return nil
}

// AddPlugin registers a plugin that was not discovered on disk.
func (m *Manager) AddPlugin(manifest *Manifest) error {
	if manifest.Kind == "" {
		manifest.Kind = KindNative
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	if manifest.Kind == KindWasm {
		return &PluginLoadError{PluginID: manifest.ID, Err: errors.New("wasm plugins must be discovered from disk")}
	}
	return m.registry.Register(&Plugin{Manifest: manifest, LoadedAt: time.Now()})
}

// RegisterNative provides the implementation of the native plugin id.
func (m *Manager) RegisterNative(id string, create plugin.CreatePluginFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.natives[id] = create
}

// GetPlugin retrieves a plugin by id.
func (m *Manager) GetPlugin(id string) (*Plugin, error) {
	p, ok := m.registry.Get(id)
	if !ok {
		return nil, &PluginNotFoundError{PluginID: id}
	}
	return p, nil
}

// Instantiate creates and initializes an instance of pluginID. An empty
// instanceID is replaced by a generated one.
func (m *Manager) Instantiate(ctx context.Context, pluginID, instanceID string) (*Instance, error) {
	p, err := m.GetPlugin(pluginID)
	if err != nil {
		return nil, err
	}
	if p.Manifest.Disabled {
		return nil, &PluginLoadError{PluginID: pluginID, Err: ErrPluginDisabled}
	}

	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	// Reserve the id; a nil entry is an instance still being created.
	m.mu.Lock()
	if _, exists := m.instances[instanceID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("instance '%s' already exists", instanceID)
	}
	m.instances[instanceID] = nil
	create := m.natives[pluginID]
	m.mu.Unlock()

	instance, err := m.create(ctx, p, instanceID, create)
	if err != nil {
		m.forget(instanceID)
		return nil, err
	}

	m.mu.Lock()
	m.instances[instanceID] = instance
	m.mu.Unlock()

	instance.logger.Info("Instance created", zap.String("kind", string(p.Manifest.Kind)))
	return instance, nil
}

func (m *Manager) create(ctx context.Context, p *Plugin, instanceID string, create plugin.CreatePluginFunc) (*Instance, error) {
	pluginID := p.ID()

	logger := m.logger.With(
		zap.String("plugin_id", pluginID),
		zap.String("instance_id", instanceID),
	)
	src := &source{frontend: m.frontend, pluginID: pluginID, instanceID: instanceID}
	md := p.Manifest.Metadata(instanceID)

	var (
		r     runner
		table *callbacks.HostTable
	)
	switch p.Manifest.Kind {
	case KindNative:
		if create == nil {
			return nil, &PluginLoadError{PluginID: pluginID, Err: errors.New("no native implementation registered")}
		}
		arena := abi.NewArena()
		table = callbacks.NewHostTable(arena, src, logger)
		env := &plugin.Env{
			Memory:    arena,
			Callbacks: m.callbacks,
			Streams:   m.streams,
			Logger:    m.logger,
		}
		native := &nativePlugin{iface: create(env), mem: arena, instanceID: instanceID, logger: logger}
		if err := native.initialize(md, table.Table()); err != nil {
			table.Close()
			_ = native.Close(ctx)
			return nil, &PluginLoadError{PluginID: pluginID, Err: err}
		}
		r = native

	case KindWasm:
		inst, err := m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
			ModuleName: p.Compiled.Name,
			InstanceID: instanceID,
		})
		if err != nil {
			return nil, &PluginLoadError{PluginID: pluginID, Err: err}
		}
		guest := wasm.NewGuestPlugin(inst, m.callbacks, m.logger)
		table = callbacks.NewHostTable(guest.Memory(), src, logger)
		if err := guest.Initialize(ctx, md, table.Table()); err != nil {
			table.Close()
			_ = guest.Close(ctx)
			return nil, &PluginLoadError{PluginID: pluginID, Err: err}
		}
		r = guest

	default:
		return nil, &PluginLoadError{PluginID: pluginID, Err: fmt.Errorf("unsupported kind %q", p.Manifest.Kind)}
	}

	return &Instance{
		ID:        instanceID,
		Plugin:    p,
		CreatedAt: time.Now(),
		runner:    r,
		table:     table,
		manager:   m,
		logger:    logger,
	}, nil
}

// Instance returns the live instance with id.
func (m *Manager) Instance(id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst := m.instances[id]
	if inst == nil {
		return nil, &InstanceNotFoundError{InstanceID: id}
	}
	return inst, nil
}

// Instances returns the live instances ordered by id.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if inst != nil {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, id)
}

// Route delivers message to the oldest live instance of pluginID other than
// the caller and returns its response.
func (m *Manager) Route(callerInstanceID, pluginID, message string) (string, bool) {
	m.mu.RLock()
	var target *Instance
	for _, inst := range m.instances {
		if inst == nil || inst.Plugin.ID() != pluginID || inst.ID == callerInstanceID {
			continue
		}
		if target == nil || inst.CreatedAt.Before(target.CreatedAt) ||
			(inst.CreatedAt.Equal(target.CreatedAt) && inst.ID < target.ID) {
			target = inst
		}
	}
	m.mu.RUnlock()

	if target == nil {
		m.logger.Warn("No instance to route plugin call to",
			zap.String("caller", callerInstanceID),
			zap.String("plugin_id", pluginID),
		)
		return "", false
	}

	response, err := target.HandleMessage(context.Background(), message)
	if err != nil {
		m.logger.Warn("Routed plugin call failed",
			zap.String("caller", callerInstanceID),
			zap.String("target", target.ID),
			zap.Error(err),
		)
		return "", false
	}
	return response, true
}

// Shutdown closes every instance and the Wasm runtime.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down plugin manager")

	var errs []error
	for _, inst := range m.Instances() {
		if err := inst.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close instance %s: %w", inst.ID, err))
		}
	}

	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		errs = append(errs, err)
	}

	m.logger.Info("Plugin manager shutdown complete")
	return errors.Join(errs...)
}

// Registry returns the plugin registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Frontend returns the event sink shared by all instances.
func (m *Manager) Frontend() *Frontend {
	return m.frontend
}

// Streams returns the stream registry shared by native plugins.
func (m *Manager) Streams() *stream.Registry {
	return m.streams
}

// IsLoaded returns whether plugins have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
