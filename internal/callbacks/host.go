package callbacks

import (
	"sync"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"go.uber.org/zap"
)

// Host is the Go-side implementation behind a callback table.
type Host interface {
	SendToFrontend(event, payload string) bool
	GetAppConfig(key string) (string, bool)
	CallOtherPlugin(pluginID, message string) (string, bool)
}

// MaxRetained bounds the results a HostTable holds for a module that never
// releases them.
const MaxRetained = 32

// HostTable exposes a Host as a boundary Table.
//
// Strings returned to the module are allocated in the table memory. Each one
// stays valid until it is passed to Release, until MaxRetained newer results
// have been handed out, or until Close.
type HostTable struct {
	mem    abi.Memory
	host   Host
	logger *zap.Logger

	mu      sync.Mutex
	results []abi.Ptr // oldest first
	closed  bool
}

// NewHostTable wraps host for use across the boundary in mem.
func NewHostTable(mem abi.Memory, host Host, logger *zap.Logger) *HostTable {
	return &HostTable{
		mem:    mem,
		host:   host,
		logger: logger.With(zap.String("component", "host-callbacks")),
	}
}

// Table returns the boundary function table.
func (h *HostTable) Table() Table {
	return Table{
		SendToFrontend:  h.sendToFrontend,
		GetAppConfig:    h.getAppConfig,
		CallOtherPlugin: h.callOtherPlugin,
		Release:         h.release,
		Memory:          h.mem,
	}
}

// Close releases every string handed out by this table.
func (h *HostTable) Close() {
	h.mu.Lock()
	results := h.results
	h.results = nil
	h.closed = true
	h.mu.Unlock()

	for _, ptr := range results {
		h.free(ptr)
	}
}

// Retained returns the number of result strings currently held.
func (h *HostTable) Retained() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *HostTable) sendToFrontend(eventPtr, payloadPtr abi.Ptr) bool {
	event, ok := h.mem.ReadString(eventPtr)
	if !ok {
		h.logger.Error("Invalid event pointer", zap.Uint32("ptr", uint32(eventPtr)))
		return false
	}
	payload, ok := h.mem.ReadString(payloadPtr)
	if !ok {
		h.logger.Error("Invalid payload pointer", zap.Uint32("ptr", uint32(payloadPtr)))
		return false
	}
	return h.host.SendToFrontend(event, payload)
}

func (h *HostTable) getAppConfig(keyPtr abi.Ptr) abi.Ptr {
	key, ok := h.mem.ReadString(keyPtr)
	if !ok {
		return abi.Null
	}
	value, ok := h.host.GetAppConfig(key)
	if !ok {
		return abi.Null
	}
	return h.retain(value)
}

func (h *HostTable) callOtherPlugin(idPtr, messagePtr abi.Ptr) abi.Ptr {
	pluginID, ok := h.mem.ReadString(idPtr)
	if !ok {
		return abi.Null
	}
	message, ok := h.mem.ReadString(messagePtr)
	if !ok {
		return abi.Null
	}
	reply, ok := h.host.CallOtherPlugin(pluginID, message)
	if !ok {
		return abi.Null
	}
	return h.retain(reply)
}

// retain writes s into the table memory and tracks the block. Once more than
// MaxRetained results are held the oldest one is freed.
func (h *HostTable) retain(s string) abi.Ptr {
	ptr, err := abi.WriteString(h.mem, s)
	if err != nil {
		h.logger.Error("Failed to marshal callback result", zap.Error(err))
		return abi.Null
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.free(ptr)
		return abi.Null
	}
	h.results = append(h.results, ptr)
	var evicted abi.Ptr
	if len(h.results) > MaxRetained {
		evicted = h.results[0]
		h.results = append(h.results[:0], h.results[1:]...)
	}
	h.mu.Unlock()

	if !evicted.IsNull() {
		h.logger.Debug("Evicted unreleased callback result", zap.Uint32("ptr", uint32(evicted)))
		h.free(evicted)
	}
	return ptr
}

// release frees a result the module has finished reading. Pointers that are
// not held, already evicted ones included, are ignored.
func (h *HostTable) release(ptr abi.Ptr) {
	if ptr.IsNull() {
		return
	}

	h.mu.Lock()
	found := false
	for i, p := range h.results {
		if p == ptr {
			h.results = append(h.results[:i], h.results[i+1:]...)
			found = true
			break
		}
	}
	h.mu.Unlock()

	if found {
		h.free(ptr)
	}
}

func (h *HostTable) free(ptr abi.Ptr) {
	if err := h.mem.Free(ptr); err != nil {
		h.logger.Warn("Failed to release callback result", zap.Uint32("ptr", uint32(ptr)), zap.Error(err))
	}
}
