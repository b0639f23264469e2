// Package plugin adapts a Go Handler to the fixed entry-point table a host
// drives across the boundary.
package plugin

import (
	"encoding/json"
	"sync"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/handle"
	"github.com/woxQAQ/plugin-bridge/internal/pluginui"
	"github.com/woxQAQ/plugin-bridge/internal/stream"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// Entry point status codes.
const (
	StatusOK    int32 = 0
	StatusError int32 = -1
)

// Env is what a plugin needs from the process it is loaded into.
type Env struct {
	// Memory is the boundary memory for metadata, messages and responses.
	Memory    abi.Memory
	Callbacks *callbacks.Registry
	Streams   *stream.Registry
	Logger    *zap.Logger

	// ContextOptions are applied to every InstanceContext built by Initialize.
	ContextOptions []ContextOption
}

// Interface is the entry-point table of one plugin object. PluginPtr is the
// opaque self argument of every entry point.
type Interface struct {
	PluginPtr     handle.Handle
	Initialize    func(self handle.Handle, table callbacks.Table, md abi.MetadataFFI) int32
	UpdateUI      func(self, ctx, ui handle.Handle) int32
	OnMount       func(self handle.Handle) int32
	OnDispose     func(self handle.Handle) int32
	OnConnect     func(self handle.Handle) int32
	OnDisconnect  func(self handle.Handle) int32
	HandleMessage func(self handle.Handle, input abi.Ptr, out *abi.Ptr) int32
	GetMetadata   func(self handle.Handle) abi.MetadataFFI
	SetHistory    func(self handle.Handle, history abi.Ptr) int32
	Destroy       func(self handle.Handle)
}

// wrapper is the value behind PluginPtr.
type wrapper struct {
	handler Handler
	env     *Env
	logger  *zap.Logger

	mu  sync.RWMutex
	ctx *InstanceContext
}

func (w *wrapper) context() *InstanceContext {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ctx
}

// NewInterface type-erases handler behind an opaque handle and returns its
// entry-point table.
func NewInterface(handler Handler, env *Env) *Interface {
	e := *env
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Streams == nil {
		e.Streams = stream.NewRegistry(e.Logger)
	}

	w := &wrapper{
		handler: handler,
		env:     &e,
		logger:  e.Logger.With(zap.String("component", "plugin")),
	}

	return &Interface{
		PluginPtr:     handle.New(w),
		Initialize:    initialize,
		UpdateUI:      updateUI,
		OnMount:       lifecycle("mount", Handler.OnMount),
		OnDispose:     lifecycle("dispose", Handler.OnDispose),
		OnConnect:     lifecycle("connect", Handler.OnConnect),
		OnDisconnect:  lifecycle("disconnect", Handler.OnDisconnect),
		HandleMessage: handleMessage,
		GetMetadata:   getMetadata,
		SetHistory:    setHistory,
		Destroy:       destroy,
	}
}

func resolve(self handle.Handle) (*wrapper, bool) {
	return handle.As[*wrapper](self)
}

func initialize(self handle.Handle, table callbacks.Table, mdFFI abi.MetadataFFI) int32 {
	w, ok := resolve(self)
	if !ok {
		return StatusError
	}

	md := abi.FromBoundary(w.env.Memory, mdFFI)
	if md.InstanceID == nil {
		w.logger.Error("Instance ID is required for plugin initialization", zap.String("plugin_id", md.ID))
		return StatusError
	}
	instanceID := *md.InstanceID

	pc := NewInstanceContext(instanceID, md, &table, w.env.Streams, w.logger, w.env.ContextOptions...)
	if w.env.Callbacks != nil {
		w.env.Callbacks.Register(instanceID, table)
	}

	if initer, ok := w.handler.(Initializer); ok {
		if err := initer.Initialize(pc); err != nil {
			w.logger.Error("Plugin initialization failed", zap.String("instance_id", instanceID), zap.Error(err))
			if w.env.Callbacks != nil {
				w.env.Callbacks.Unregister(instanceID)
			}
			return StatusError
		}
	}

	w.mu.Lock()
	prev := w.ctx
	w.ctx = pc
	w.mu.Unlock()

	// Re-initialized under a new id: the old table must not stay reachable.
	if prev != nil && prev.InstanceID() != instanceID && w.env.Callbacks != nil {
		w.env.Callbacks.Unregister(prev.InstanceID())
	}

	w.logger.Debug("Plugin initialized",
		zap.String("plugin_id", md.ID),
		zap.String("instance_id", instanceID),
	)
	return StatusOK
}

func updateUI(self, ctxHandle, uiHandle handle.Handle) int32 {
	w, ok := resolve(self)
	if !ok {
		return StatusError
	}
	ctx, ok := handle.As[*pluginui.Context](ctxHandle)
	if !ok {
		return StatusError
	}
	ui, ok := handle.As[*pluginui.UI](uiHandle)
	if !ok {
		return StatusError
	}

	if pc := w.context(); pc != nil {
		w.handler.UpdateUI(ctx, ui, pc)
	}
	return StatusOK
}

func lifecycle(name string, hook func(Handler, *InstanceContext) error) func(handle.Handle) int32 {
	return func(self handle.Handle) int32 {
		w, ok := resolve(self)
		if !ok {
			return StatusError
		}
		pc := w.context()
		if pc == nil {
			w.logger.Warn("Lifecycle hook called before initialization", zap.String("hook", name))
			return StatusError
		}
		if err := hook(w.handler, pc); err != nil {
			pc.Logger().Error("Lifecycle hook failed", zap.String("hook", name), zap.Error(err))
			return StatusError
		}
		return StatusOK
	}
}

// handleMessage passes the message at input to the handler and writes the
// response into *out. The response is allocated in the env memory and owned
// by the caller.
func handleMessage(self handle.Handle, input abi.Ptr, out *abi.Ptr) int32 {
	w, ok := resolve(self)
	if !ok || out == nil {
		return StatusError
	}
	pc := w.context()
	if pc == nil {
		return StatusError
	}

	message := abi.ReadString(w.env.Memory, input)
	response, err := w.handler.HandleMessage(message, pc)
	if err != nil {
		pc.Logger().Error("Message handling failed", zap.Error(err))
		return StatusError
	}

	ptr, err := abi.WriteString(w.env.Memory, response)
	if err != nil {
		pc.Logger().Error("Failed to marshal response", zap.Error(err))
		return StatusError
	}
	*out = ptr
	return StatusOK
}

// getMetadata returns the handler's metadata in boundary form, owned by the
// caller. Before initialization, or when marshaling fails, every field is Null.
func getMetadata(self handle.Handle) abi.MetadataFFI {
	w, ok := resolve(self)
	if !ok {
		return abi.MetadataFFI{}
	}
	pc := w.context()
	if pc == nil {
		return abi.MetadataFFI{}
	}

	ffi, err := abi.ToBoundary(w.env.Memory, w.handler.Metadata(pc))
	if err != nil {
		pc.Logger().Error("Failed to marshal metadata", zap.Error(err))
		return abi.MetadataFFI{}
	}
	return ffi
}

// setHistory replaces the session history with the JSON array at history.
// Null clears it.
func setHistory(self handle.Handle, history abi.Ptr) int32 {
	w, ok := resolve(self)
	if !ok {
		return StatusError
	}
	pc := w.context()
	if pc == nil {
		return StatusError
	}

	if history.IsNull() {
		pc.ClearHistory()
		return StatusOK
	}

	var messages []protocol.HistoryMessage
	if err := json.Unmarshal([]byte(abi.ReadString(w.env.Memory, history)), &messages); err != nil {
		pc.Logger().Error("Invalid history payload", zap.Error(err))
		return StatusError
	}
	pc.SetHistory(messages)
	return StatusOK
}

func destroy(self handle.Handle) {
	w, ok := resolve(self)
	if !ok {
		return
	}

	w.mu.Lock()
	pc := w.ctx
	w.ctx = nil
	w.mu.Unlock()

	if pc != nil {
		pc.ClearHistory()
		if w.env.Callbacks != nil {
			w.env.Callbacks.Unregister(pc.InstanceID())
		}
	}
	self.Delete()
}
