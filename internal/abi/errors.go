package abi

import (
	"errors"
	"fmt"
)

var (
	// ErrInteriorNul is returned when a string destined for the boundary contains a NUL byte.
	ErrInteriorNul = errors.New("string contains an interior NUL byte")

	// ErrInvalidUTF8 is returned when a string destined for the boundary is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("string is not valid UTF-8")
)

// StringError occurs when a string cannot be placed on the boundary.
type StringError struct {
	Field string
	Err   error
}

func (e *StringError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cannot marshal field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("cannot marshal string: %v", e.Err)
}

func (e *StringError) Unwrap() error {
	return e.Err
}

// AllocationError occurs when a boundary memory cannot satisfy an allocation.
type AllocationError struct {
	Size uint32
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation of %d bytes failed: %v", e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// InvalidFreeError occurs when a pointer that is not a live block is freed.
type InvalidFreeError struct {
	Ptr Ptr
}

func (e *InvalidFreeError) Error() string {
	return fmt.Sprintf("free of unknown block at %d", e.Ptr)
}

// WriteError occurs when bytes cannot be written to an allocated block.
type WriteError struct {
	Ptr    Ptr
	Length uint32
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write of %d bytes at %d out of range", e.Length, e.Ptr)
}
