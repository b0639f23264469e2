package abi

import (
	"strings"
	"unicode/utf8"
)

// CheckString reports whether s can cross the boundary as a C string.
func CheckString(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrInteriorNul
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	return nil
}

// WriteString allocates a NUL-terminated copy of s in mem.
// The caller owns the returned pointer and releases it with mem.Free.
func WriteString(mem Memory, s string) (Ptr, error) {
	if err := CheckString(s); err != nil {
		return Null, &StringError{Err: err}
	}

	size := uint32(len(s)) + 1
	ptr, err := mem.Alloc(size)
	if err != nil {
		return Null, err
	}

	buf := make([]byte, size)
	copy(buf, s)
	if !mem.Write(ptr, buf) {
		_ = mem.Free(ptr)
		return Null, &WriteError{Ptr: ptr, Length: size}
	}
	return ptr, nil
}

// WriteOptional writes s when it is present and returns Null otherwise.
func WriteOptional(mem Memory, s *string) (Ptr, error) {
	if s == nil {
		return Null, nil
	}
	return WriteString(mem, *s)
}

// ReadString copies the string at ptr out of mem. Null reads as "".
// The pointer is neither freed nor retained.
func ReadString(mem Memory, ptr Ptr) string {
	if ptr.IsNull() {
		return ""
	}
	s, ok := mem.ReadString(ptr)
	if !ok {
		return ""
	}
	return strings.ToValidUTF8(s, "�")
}

// ReadOptional copies the string at ptr, mapping Null to nil.
func ReadOptional(mem Memory, ptr Ptr) *string {
	if ptr.IsNull() {
		return nil
	}
	s, ok := mem.ReadString(ptr)
	if !ok {
		return nil
	}
	s = strings.ToValidUTF8(s, "�")
	return &s
}
