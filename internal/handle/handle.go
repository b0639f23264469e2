// Package handle maps opaque integer handles to Go values.
//
// A Handle is what crosses the boundary in place of a pointer to a Go value:
// the module hands out handles, the host passes them back on every entry point,
// and only this package turns a handle back into the value it names.
package handle

import (
	"sync"
	"sync/atomic"
)

// Handle is an opaque reference to a Go value. The zero Handle is invalid.
type Handle uintptr

var (
	values sync.Map // map[Handle]any
	nextID atomic.Uintptr
)

// New returns a handle for v. v must not be nil.
// The handle stays valid until Delete is called.
func New(v any) Handle {
	if v == nil {
		panic("handle: nil value")
	}
	h := Handle(nextID.Add(1))
	values.Store(h, v)
	return h
}

// Value returns the value h refers to. It panics on an invalid handle.
func (h Handle) Value() any {
	v, ok := values.Load(h)
	if !ok {
		panic("handle: invalid handle")
	}
	return v
}

// Lookup returns the value h refers to and whether h is live.
func Lookup(h Handle) (any, bool) {
	if h == 0 {
		return nil, false
	}
	return values.Load(h)
}

// As resolves h to a value of type T.
func As[T any](h Handle) (T, bool) {
	var zero T
	v, ok := Lookup(h)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Delete invalidates h. Deleting an invalid handle is a no-op.
func (h Handle) Delete() {
	values.Delete(h)
}
