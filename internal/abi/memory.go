package abi

import (
	"fmt"
	"sync"
)

// Ptr is an address in a boundary memory. Zero is the null pointer.
type Ptr uint32

// Null is the explicit encoding of an absent value.
const Null Ptr = 0

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool {
	return p == Null
}

// Memory is a linear memory shared by the two sides of a boundary.
//
// Every block returned by Alloc belongs to that Memory's allocator and must be
// released through the same Memory's Free. Implementations:
//   - Arena: in-process allocator used when host and module live in one process
//   - wasm.GuestMemory: a wasm guest's linear memory driven by its malloc/free exports
type Memory interface {
	// Alloc reserves size bytes and returns the block address.
	Alloc(size uint32) (Ptr, error)

	// Free releases a block previously returned by Alloc.
	Free(ptr Ptr) error

	// Read returns length bytes starting at ptr.
	Read(ptr Ptr, length uint32) ([]byte, bool)

	// Write copies data to ptr.
	Write(ptr Ptr, data []byte) bool

	// ReadString reads a NUL-terminated string starting at ptr.
	ReadString(ptr Ptr) (string, bool)
}

// Arena is an in-process Memory.
//
// Blocks are tracked individually, so out-of-bounds access and frees of
// unknown addresses are reported instead of corrupting state.
type Arena struct {
	mu     sync.Mutex
	blocks map[Ptr][]byte
	next   Ptr
}

// arenaBase keeps the first block away from Null.
const arenaBase Ptr = 8

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		blocks: make(map[Ptr][]byte),
		next:   arenaBase,
	}
}

// Alloc reserves a zeroed block of size bytes.
func (a *Arena) Alloc(size uint32) (Ptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Zero-sized blocks still get a distinct address.
	span := size
	if span == 0 {
		span = 1
	}
	if uint64(a.next)+uint64(span) > uint64(^uint32(0)) {
		return Null, &AllocationError{Size: size, Err: fmt.Errorf("arena address space exhausted")}
	}

	ptr := a.next
	a.blocks[ptr] = make([]byte, size)
	// Keep blocks 8-byte aligned.
	a.next += Ptr((span + 7) &^ 7)
	return ptr, nil
}

// Free releases the block at ptr.
func (a *Arena) Free(ptr Ptr) error {
	if ptr.IsNull() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.blocks[ptr]; !ok {
		return &InvalidFreeError{Ptr: ptr}
	}
	delete(a.blocks, ptr)
	return nil
}

// Read returns a copy of length bytes at ptr. Reads must stay inside one block.
func (a *Arena) Read(ptr Ptr, length uint32) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, offset, ok := a.locate(ptr)
	if !ok || uint64(offset)+uint64(length) > uint64(len(block)) {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, block[offset:offset+length])
	return out, true
}

// Write copies data to ptr. Writes must stay inside one block.
func (a *Arena) Write(ptr Ptr, data []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, offset, ok := a.locate(ptr)
	if !ok || uint64(offset)+uint64(len(data)) > uint64(len(block)) {
		return false
	}
	copy(block[offset:], data)
	return true
}

// ReadString reads a NUL-terminated string at ptr.
// A block without a terminator is read to its end.
func (a *Arena) ReadString(ptr Ptr) (string, bool) {
	if ptr.IsNull() {
		return "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	block, offset, ok := a.locate(ptr)
	if !ok {
		return "", false
	}
	return string(cstring(block[offset:])), true
}

// Live returns the number of blocks not yet freed.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// locate finds the block containing ptr. Only block starts are fast-pathed;
// interior pointers fall back to a scan.
func (a *Arena) locate(ptr Ptr) ([]byte, uint32, bool) {
	if block, ok := a.blocks[ptr]; ok {
		return block, 0, true
	}
	for base, block := range a.blocks {
		if ptr > base && uint64(ptr) < uint64(base)+uint64(len(block)) {
			return block, uint32(ptr - base), true
		}
	}
	return nil, 0, false
}

// cstring trims buf at the first NUL byte.
func cstring(buf []byte) []byte {
	for i, b := range buf {
		if b == 0 {
			return buf[:i]
		}
	}
	return buf
}
