package abi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Metadata is the owned description of a plugin instance.
type Metadata struct {
	ID             string  `json:"id" yaml:"id"`
	Disabled       bool    `json:"disabled" yaml:"disabled"`
	Name           string  `json:"name" yaml:"name"`
	Description    string  `json:"description" yaml:"description"`
	Version        string  `json:"version" yaml:"version"`
	Author         *string `json:"author,omitempty" yaml:"author,omitempty"`
	LibraryPath    *string `json:"library_path,omitempty" yaml:"library_path,omitempty"`
	ConfigPath     string  `json:"config_path" yaml:"config_path"`
	InstanceID     *string `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	RequireHistory bool    `json:"require_history" yaml:"require_history"`
}

// InstanceIDOr returns the instance id, or fallback when it has not been assigned.
func (m *Metadata) InstanceIDOr(fallback string) string {
	if m.InstanceID == nil {
		return fallback
	}
	return *m.InstanceID
}

// MetadataFFI is the flat boundary form of Metadata.
// Null in an optional field means absent; required fields are never Null
// when produced by ToBoundary.
type MetadataFFI struct {
	ID             Ptr
	Disabled       bool
	Name           Ptr
	Description    Ptr
	Version        Ptr
	Author         Ptr
	LibraryPath    Ptr
	ConfigPath     Ptr
	InstanceID     Ptr
	RequireHistory bool
}

// MetadataFFISize is the encoded size of MetadataFFI in linear memory.
const MetadataFFISize = 40

// Pointers returns every non-null pointer held by f.
func (f MetadataFFI) Pointers() []Ptr {
	all := []Ptr{f.ID, f.Name, f.Description, f.Version, f.ConfigPath, f.Author, f.LibraryPath, f.InstanceID}
	out := all[:0]
	for _, p := range all {
		if !p.IsNull() {
			out = append(out, p)
		}
	}
	return out
}

// ToBoundary copies md into mem. Required strings always allocate; optional
// strings allocate only when present. The caller owns the result and must
// release it with FreeBoundary on the same mem.
func ToBoundary(mem Memory, md Metadata) (MetadataFFI, error) {
	ffi := MetadataFFI{
		Disabled:       md.Disabled,
		RequireHistory: md.RequireHistory,
	}

	required := []struct {
		field string
		value string
		dst   *Ptr
	}{
		{"id", md.ID, &ffi.ID},
		{"name", md.Name, &ffi.Name},
		{"description", md.Description, &ffi.Description},
		{"version", md.Version, &ffi.Version},
		{"config_path", md.ConfigPath, &ffi.ConfigPath},
	}
	for _, f := range required {
		ptr, err := WriteString(mem, f.value)
		if err != nil {
			_ = FreeBoundary(mem, ffi)
			return MetadataFFI{}, fieldError(f.field, err)
		}
		*f.dst = ptr
	}

	optional := []struct {
		field string
		value *string
		dst   *Ptr
	}{
		{"author", md.Author, &ffi.Author},
		{"library_path", md.LibraryPath, &ffi.LibraryPath},
		{"instance_id", md.InstanceID, &ffi.InstanceID},
	}
	for _, f := range optional {
		ptr, err := WriteOptional(mem, f.value)
		if err != nil {
			_ = FreeBoundary(mem, ffi)
			return MetadataFFI{}, fieldError(f.field, err)
		}
		*f.dst = ptr
	}

	return ffi, nil
}

// FreeBoundary releases every non-null pointer in f.
// Freeing the same value twice is a contract violation.
func FreeBoundary(mem Memory, f MetadataFFI) error {
	var errs []error
	for _, p := range f.Pointers() {
		if err := mem.Free(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromBoundary copies f into an owned Metadata. It never frees or retains the
// input pointers. A Null required field reads as "".
func FromBoundary(mem Memory, f MetadataFFI) Metadata {
	return Metadata{
		ID:             ReadString(mem, f.ID),
		Disabled:       f.Disabled,
		Name:           ReadString(mem, f.Name),
		Description:    ReadString(mem, f.Description),
		Version:        ReadString(mem, f.Version),
		Author:         ReadOptional(mem, f.Author),
		LibraryPath:    ReadOptional(mem, f.LibraryPath),
		ConfigPath:     ReadString(mem, f.ConfigPath),
		InstanceID:     ReadOptional(mem, f.InstanceID),
		RequireHistory: f.RequireHistory,
	}
}

// Encode lays f out as ten little-endian uint32 slots, in declaration order.
func (f MetadataFFI) Encode() []byte {
	buf := make([]byte, MetadataFFISize)
	slots := []uint32{
		uint32(f.ID), boolSlot(f.Disabled), uint32(f.Name), uint32(f.Description),
		uint32(f.Version), uint32(f.Author), uint32(f.LibraryPath), uint32(f.ConfigPath),
		uint32(f.InstanceID), boolSlot(f.RequireHistory),
	}
	for i, v := range slots {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// DecodeMetadataFFI reads the layout produced by Encode.
func DecodeMetadataFFI(buf []byte) (MetadataFFI, error) {
	if len(buf) < MetadataFFISize {
		return MetadataFFI{}, fmt.Errorf("metadata record too short: %d bytes, want %d", len(buf), MetadataFFISize)
	}
	slot := func(i int) uint32 { return binary.LittleEndian.Uint32(buf[i*4:]) }
	return MetadataFFI{
		ID:             Ptr(slot(0)),
		Disabled:       slot(1) != 0,
		Name:           Ptr(slot(2)),
		Description:    Ptr(slot(3)),
		Version:        Ptr(slot(4)),
		Author:         Ptr(slot(5)),
		LibraryPath:    Ptr(slot(6)),
		ConfigPath:     Ptr(slot(7)),
		InstanceID:     Ptr(slot(8)),
		RequireHistory: slot(9) != 0,
	}, nil
}

func boolSlot(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func fieldError(field string, err error) error {
	var se *StringError
	if errors.As(err, &se) {
		return &StringError{Field: field, Err: se.Err}
	}
	return fmt.Errorf("marshal field '%s': %w", field, err)
}
