package wasm

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	wasmabi "github.com/woxQAQ/plugin-bridge/api/wasm"
	"github.com/woxQAQ/plugin-bridge/internal/abi"
)

// GuestMemory is a guest's linear memory used as boundary memory.
// Allocation goes through the guest's exported malloc and free, so every
// block belongs to the guest allocator whichever side requested it.
type GuestMemory struct {
	mem    api.Memory
	malloc api.Function
	free   api.Function
	module string
}

var _ abi.Memory = (*GuestMemory)(nil)

// NewGuestMemory binds the memory and allocator exports of module.
func NewGuestMemory(module api.Module) (*GuestMemory, error) {
	mem := module.Memory()
	if mem == nil {
		return nil, &MemoryAccessError{Operation: "bind", Err: fmt.Errorf("module %s has no memory", module.Name())}
	}
	malloc := module.ExportedFunction(wasmabi.ExportMalloc)
	if malloc == nil {
		return nil, &FunctionNotFoundError{ModuleName: module.Name(), FunctionName: wasmabi.ExportMalloc}
	}
	free := module.ExportedFunction(wasmabi.ExportFree)
	if free == nil {
		return nil, &FunctionNotFoundError{ModuleName: module.Name(), FunctionName: wasmabi.ExportFree}
	}
	return &GuestMemory{mem: mem, malloc: malloc, free: free, module: module.Name()}, nil
}

// Alloc calls the guest malloc.
func (m *GuestMemory) Alloc(size uint32) (abi.Ptr, error) {
	results, err := m.malloc.Call(context.Background(), uint64(size))
	if err != nil {
		return abi.Null, &abi.AllocationError{Size: size, Err: err}
	}
	ptr := abi.Ptr(api.DecodeU32(results[0]))
	if ptr.IsNull() {
		return abi.Null, &abi.AllocationError{Size: size, Err: fmt.Errorf("guest %s returned null", m.module)}
	}
	return ptr, nil
}

// Free calls the guest free. Null is ignored.
func (m *GuestMemory) Free(ptr abi.Ptr) error {
	if ptr.IsNull() {
		return nil
	}
	if _, err := m.free.Call(context.Background(), uint64(ptr)); err != nil {
		return &MemoryAccessError{Operation: "free", Address: uint32(ptr), Err: err}
	}
	return nil
}

// Read copies length bytes at ptr.
func (m *GuestMemory) Read(ptr abi.Ptr, length uint32) ([]byte, bool) {
	view, ok := m.mem.Read(uint32(ptr), length)
	if !ok {
		return nil, false
	}
	return bytes.Clone(view), true
}

// Write copies data to ptr.
func (m *GuestMemory) Write(ptr abi.Ptr, data []byte) bool {
	return m.mem.Write(uint32(ptr), data)
}

// ReadString reads the NUL-terminated string at ptr. A string running to the
// end of memory without a terminator is rejected.
func (m *GuestMemory) ReadString(ptr abi.Ptr) (string, bool) {
	size := m.mem.Size()
	if uint32(ptr) >= size {
		return "", false
	}
	view, ok := m.mem.Read(uint32(ptr), size-uint32(ptr))
	if !ok {
		return "", false
	}
	end := bytes.IndexByte(view, 0)
	if end < 0 {
		return "", false
	}
	return string(view[:end]), true
}

// ReadUint32 reads a little-endian uint32 slot.
func (m *GuestMemory) ReadUint32(ptr abi.Ptr) (uint32, bool) {
	return m.mem.ReadUint32Le(uint32(ptr))
}

// Size returns the current memory size in bytes.
func (m *GuestMemory) Size() uint32 {
	return m.mem.Size()
}
