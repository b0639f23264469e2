package wasm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	wasmabi "github.com/woxQAQ/plugin-bridge/api/wasm"
	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"go.uber.org/zap"
)

// HostFunctions serves the env imports of guest plugins. Each call is routed
// to the callback table registered under the calling instance's id, which is
// the guest module name.
type HostFunctions struct {
	callbacks *callbacks.Registry
	logger    *zap.Logger
}

// NewHostFunctions creates host functions backed by registry.
func NewHostFunctions(registry *callbacks.Registry, logger *zap.Logger) *HostFunctions {
	return &HostFunctions{
		callbacks: registry,
		logger:    logger.With(zap.String("component", "wasm-host")),
	}
}

// export registers every import on builder.
func (h *HostFunctions) export(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(h.sendToFrontend).
		WithParameterNames("event_ptr", "payload_ptr").
		Export(wasmabi.ImportSendToFrontend)

	builder.NewFunctionBuilder().
		WithFunc(h.getAppConfig).
		WithParameterNames("key_ptr").
		Export(wasmabi.ImportGetAppConfig)

	builder.NewFunctionBuilder().
		WithFunc(h.callOtherPlugin).
		WithParameterNames("plugin_id_ptr", "message_ptr").
		Export(wasmabi.ImportCallOtherPlugin)

	builder.NewFunctionBuilder().
		WithFunc(h.logMessage).
		WithParameterNames("level", "ptr", "length").
		Export(wasmabi.ImportLogMessage)
}

// bridge resolves the callback table for mod and moves strings between the
// guest memory and the table memory when the two differ.
type bridge struct {
	h     *HostFunctions
	guest *GuestMemory
	table callbacks.Table
	same  bool
}

func (h *HostFunctions) bridgeFor(mod api.Module, fn string) (*bridge, bool) {
	table, ok := h.callbacks.Lookup(mod.Name())
	if !ok || !table.Valid() {
		h.logger.Warn("Guest called host without registered callbacks",
			zap.String("instance_id", mod.Name()),
			zap.String("function", fn),
		)
		return nil, false
	}
	guest, err := NewGuestMemory(mod)
	if err != nil {
		h.logger.Error("Guest memory unavailable",
			zap.String("instance_id", mod.Name()),
			zap.Error(&HostFunctionError{FunctionName: fn, Err: err}),
		)
		return nil, false
	}
	same := false
	if gm, ok := table.Memory.(*GuestMemory); ok {
		same = gm.mem == guest.mem
	}
	return &bridge{h: h, guest: guest, table: table, same: same}, true
}

// in makes the guest string at ptr available in the table memory.
// The returned release func frees any copy.
func (b *bridge) in(ptr uint32) (abi.Ptr, func(), bool) {
	if b.same {
		return abi.Ptr(ptr), func() {}, true
	}
	s, ok := b.guest.ReadString(abi.Ptr(ptr))
	if !ok {
		return abi.Null, nil, false
	}
	copied, err := abi.WriteString(b.table.Memory, s)
	if err != nil {
		return abi.Null, nil, false
	}
	return copied, func() { _ = b.table.Memory.Free(copied) }, true
}

// out makes a table-memory result visible to the guest. Copies are owned by
// the guest and the table-side result is released once copied.
func (b *bridge) out(ptr abi.Ptr) uint32 {
	if ptr.IsNull() || b.same {
		return uint32(ptr)
	}
	s, ok := b.table.Memory.ReadString(ptr)
	if b.table.Release != nil {
		b.table.Release(ptr)
	}
	if !ok {
		return 0
	}
	copied, err := abi.WriteString(b.guest, s)
	if err != nil {
		return 0
	}
	return uint32(copied)
}

// sendToFrontend: send_to_frontend(event_ptr, payload_ptr) -> delivered
func (h *HostFunctions) sendToFrontend(_ context.Context, mod api.Module, eventPtr, payloadPtr uint32) uint32 {
	b, ok := h.bridgeFor(mod, wasmabi.ImportSendToFrontend)
	if !ok {
		return 0
	}
	event, releaseEvent, ok := b.in(eventPtr)
	if !ok {
		return 0
	}
	defer releaseEvent()
	payload, releasePayload, ok := b.in(payloadPtr)
	if !ok {
		return 0
	}
	defer releasePayload()

	if b.table.SendToFrontend(event, payload) {
		return 1
	}
	return 0
}

// getAppConfig: get_app_config(key_ptr) -> value_ptr
func (h *HostFunctions) getAppConfig(_ context.Context, mod api.Module, keyPtr uint32) uint32 {
	b, ok := h.bridgeFor(mod, wasmabi.ImportGetAppConfig)
	if !ok {
		return 0
	}
	key, release, ok := b.in(keyPtr)
	if !ok {
		return 0
	}
	defer release()
	return b.out(b.table.GetAppConfig(key))
}

// callOtherPlugin: call_other_plugin(plugin_id_ptr, message_ptr) -> reply_ptr
func (h *HostFunctions) callOtherPlugin(_ context.Context, mod api.Module, idPtr, messagePtr uint32) uint32 {
	b, ok := h.bridgeFor(mod, wasmabi.ImportCallOtherPlugin)
	if !ok {
		return 0
	}
	id, releaseID, ok := b.in(idPtr)
	if !ok {
		return 0
	}
	defer releaseID()
	message, releaseMessage, ok := b.in(messagePtr)
	if !ok {
		return 0
	}
	defer releaseMessage()
	return b.out(b.table.CallOtherPlugin(id, message))
}

// logMessage: log_message(level, ptr, length)
func (h *HostFunctions) logMessage(_ context.Context, mod api.Module, level, ptr, length uint32) {
	msg, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	logger := h.logger.With(zap.String("instance_id", mod.Name()))
	switch level {
	case wasmabi.LogDebug:
		logger.Debug(string(msg))
	case wasmabi.LogWarn:
		logger.Warn(string(msg))
	case wasmabi.LogError:
		logger.Error(string(msg))
	default:
		logger.Info(string(msg))
	}
}
