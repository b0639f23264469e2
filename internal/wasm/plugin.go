package wasm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	wasmabi "github.com/woxQAQ/plugin-bridge/api/wasm"
	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"go.uber.org/zap"
)

// GuestPlugin drives the plugin entry points of a guest instance.
// Calls are serialized: a guest executes one entry point at a time.
type GuestPlugin struct {
	instance  *Instance
	callbacks *callbacks.Registry
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	metadata abi.Metadata
}

// NewGuestPlugin wraps instance. Callback tables are registered in registry
// under the instance id on Initialize.
func NewGuestPlugin(instance *Instance, registry *callbacks.Registry, logger *zap.Logger) *GuestPlugin {
	return &GuestPlugin{
		instance:  instance,
		callbacks: registry,
		timeout:   instance.runtime.config.CallTimeout,
		logger: logger.With(
			zap.String("component", "wasm-plugin"),
			zap.String("instance_id", instance.ID),
		),
	}
}

// InstanceID returns the instance id.
func (p *GuestPlugin) InstanceID() string {
	return p.instance.ID
}

// Memory returns the guest memory, the boundary memory of this instance.
func (p *GuestPlugin) Memory() *GuestMemory {
	return p.instance.memory
}

// call invokes export fn and returns its i32 status. A missing optional
// export counts as success.
func (p *GuestPlugin) call(ctx context.Context, name string, required bool, params ...uint64) (int32, error) {
	fn := p.instance.Export(name)
	if fn == nil {
		if required {
			return 0, &FunctionNotFoundError{ModuleName: p.instance.Name, FunctionName: name}
		}
		return 0, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, &TimeoutError{Function: name, Duration: p.timeout}
		}
		return 0, &GuestCallError{InstanceID: p.instance.ID, Function: name, Err: err}
	}
	if len(results) == 0 {
		return 0, nil
	}
	status := api.DecodeI32(results[0])
	if status != 0 {
		return status, &GuestCallError{InstanceID: p.instance.ID, Function: name, Status: status}
	}
	return 0, nil
}

// Initialize registers table for the instance and hands md to the guest.
// The metadata record is written into guest memory for the duration of the
// call and released afterwards.
func (p *GuestPlugin) Initialize(ctx context.Context, md abi.Metadata, table callbacks.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mem := p.instance.memory
	ffi, err := abi.ToBoundary(mem, md)
	if err != nil {
		return err
	}
	defer func() {
		if err := abi.FreeBoundary(mem, ffi); err != nil {
			p.logger.Warn("Failed to release metadata record", zap.Error(err))
		}
	}()

	record, err := mem.Alloc(abi.MetadataFFISize)
	if err != nil {
		return err
	}
	defer mem.Free(record)
	if !mem.Write(record, ffi.Encode()) {
		return &MemoryAccessError{Operation: "write", Address: uint32(record), Length: abi.MetadataFFISize}
	}

	p.callbacks.Register(p.instance.ID, table)
	if _, err := p.call(ctx, wasmabi.ExportInitialize, true, uint64(record)); err != nil {
		p.callbacks.Unregister(p.instance.ID)
		return err
	}

	p.metadata = md
	return nil
}

func (p *GuestPlugin) lifecycle(ctx context.Context, export string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.call(ctx, export, false)
	return err
}

// Mount calls plugin_on_mount.
func (p *GuestPlugin) Mount(ctx context.Context) error {
	return p.lifecycle(ctx, wasmabi.ExportOnMount)
}

// Dispose calls plugin_on_dispose.
func (p *GuestPlugin) Dispose(ctx context.Context) error {
	return p.lifecycle(ctx, wasmabi.ExportOnDispose)
}

// Connect calls plugin_on_connect.
func (p *GuestPlugin) Connect(ctx context.Context) error {
	return p.lifecycle(ctx, wasmabi.ExportOnConnect)
}

// Disconnect calls plugin_on_disconnect.
func (p *GuestPlugin) Disconnect(ctx context.Context) error {
	return p.lifecycle(ctx, wasmabi.ExportOnDisconnect)
}

// HandleMessage passes message to the guest and returns its response. The
// response block is owned by the host and freed here.
func (p *GuestPlugin) HandleMessage(ctx context.Context, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mem := p.instance.memory
	input, err := abi.WriteString(mem, message)
	if err != nil {
		return "", err
	}
	defer mem.Free(input)

	slot, err := mem.Alloc(4)
	if err != nil {
		return "", err
	}
	defer mem.Free(slot)
	if !mem.Write(slot, []byte{0, 0, 0, 0}) {
		return "", &MemoryAccessError{Operation: "write", Address: uint32(slot), Length: 4}
	}

	if _, err := p.call(ctx, wasmabi.ExportHandleMessage, true, uint64(input), uint64(slot)); err != nil {
		return "", err
	}

	out, ok := mem.ReadUint32(slot)
	if !ok {
		return "", &MemoryAccessError{Operation: "read", Address: uint32(slot), Length: 4}
	}
	response := abi.Ptr(out)
	if response.IsNull() {
		return "", nil
	}
	text, ok := mem.ReadString(response)
	if !ok {
		return "", &MemoryAccessError{Operation: "read", Address: out}
	}
	if response != input {
		if err := mem.Free(response); err != nil {
			p.logger.Warn("Failed to release response", zap.Error(err))
		}
	}
	return text, nil
}

// SetHistory hands the JSON-encoded session history to the guest.
// An empty string clears it.
func (p *GuestPlugin) SetHistory(ctx context.Context, historyJSON string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if historyJSON == "" {
		_, err := p.call(ctx, wasmabi.ExportSetHistory, false, 0)
		return err
	}

	mem := p.instance.memory
	ptr, err := abi.WriteString(mem, historyJSON)
	if err != nil {
		return err
	}
	defer mem.Free(ptr)

	_, err = p.call(ctx, wasmabi.ExportSetHistory, false, uint64(ptr))
	return err
}

// Metadata asks the guest for its metadata. Guests without
// plugin_get_metadata report what they were initialized with.
func (p *GuestPlugin) Metadata(ctx context.Context) (abi.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance.Export(wasmabi.ExportGetMetadata) == nil {
		return p.metadata, nil
	}

	mem := p.instance.memory
	record, err := mem.Alloc(abi.MetadataFFISize)
	if err != nil {
		return abi.Metadata{}, err
	}
	defer mem.Free(record)
	if !mem.Write(record, make([]byte, abi.MetadataFFISize)) {
		return abi.Metadata{}, &MemoryAccessError{Operation: "write", Address: uint32(record), Length: abi.MetadataFFISize}
	}

	if _, err := p.call(ctx, wasmabi.ExportGetMetadata, true, uint64(record)); err != nil {
		return abi.Metadata{}, err
	}

	buf, ok := mem.Read(record, abi.MetadataFFISize)
	if !ok {
		return abi.Metadata{}, &MemoryAccessError{Operation: "read", Address: uint32(record), Length: abi.MetadataFFISize}
	}
	ffi, err := abi.DecodeMetadataFFI(buf)
	if err != nil {
		return abi.Metadata{}, err
	}
	md := abi.FromBoundary(mem, ffi)
	if err := abi.FreeBoundary(mem, ffi); err != nil {
		p.logger.Warn("Failed to release guest metadata", zap.Error(err))
	}
	return md, nil
}

// Close calls plugin_destroy, unregisters the callbacks and closes the instance.
func (p *GuestPlugin) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if _, err := p.call(ctx, wasmabi.ExportDestroy, false); err != nil {
		errs = append(errs, err)
	}
	p.callbacks.Unregister(p.instance.ID)
	if err := p.instance.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
