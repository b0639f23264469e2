package wasm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	wasmabi "github.com/woxQAQ/plugin-bridge/api/wasm"
	"go.uber.org/zap"
)

// InstanceManager instantiates compiled guests against the host module.
type InstanceManager struct {
	runtime   *Runtime
	hostFuncs *HostFunctions
	logger    *zap.Logger

	hostOnce sync.Once
	hostErr  error

	mu sync.Mutex // serializes the instance limit check with instantiation
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctions, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Compiled module to instantiate.
	ModuleName string

	// Instance id, also the guest module name. Generated when empty.
	InstanceID string
}

// Instance is one instantiated guest.
type Instance struct {
	module    api.Module
	memory    *GuestMemory
	runtime   *Runtime
	closeOnce sync.Once

	ID        string
	Name      string
	CreatedAt time.Time
}

// Memory returns the guest memory of the instance.
func (i *Instance) Memory() *GuestMemory {
	return i.memory
}

// Export returns the exported function name, or nil.
func (i *Instance) Export(name string) api.Function {
	return i.module.ExportedFunction(name)
}

// Close closes the guest module and stops tracking it. Idempotent.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		i.runtime.deleteInstance(i.ID)
		err = i.module.Close(ctx)
	})
	return err
}

// instantiateHost instantiates the env module once per manager.
func (m *InstanceManager) instantiateHost(ctx context.Context) error {
	m.hostOnce.Do(func() {
		builder := m.runtime.runtime.NewHostModuleBuilder(wasmabi.HostModule)
		m.hostFuncs.export(builder)
		if _, err := builder.Instantiate(ctx); err != nil {
			m.hostErr = fmt.Errorf("failed to instantiate host module: %w", err)
		}
	})
	return m.hostErr
}

// Instantiate creates a new guest instance from a compiled module.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}
	if err := m.instantiateHost(ctx); err != nil {
		return nil, err
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions()

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	memory, err := NewGuestMemory(module)
	if err != nil {
		_ = module.Close(ctx)
		return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
	}

	instance := &Instance{
		module:    module,
		memory:    memory,
		runtime:   m.runtime,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now(),
	}
	m.runtime.storeInstance(instance)

	m.logger.Info("Module instantiated successfully", zap.String("instance_id", instanceID))
	return instance, nil
}
