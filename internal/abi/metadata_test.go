package abi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// countingMemory records every allocation and free made through it.
type countingMemory struct {
	*Arena

	mu        sync.Mutex
	allocated map[Ptr]int
	freed     map[Ptr]int
}

func newCountingMemory() *countingMemory {
	return &countingMemory{
		Arena:     NewArena(),
		allocated: make(map[Ptr]int),
		freed:     make(map[Ptr]int),
	}
}

func (c *countingMemory) Alloc(size uint32) (Ptr, error) {
	ptr, err := c.Arena.Alloc(size)
	if err == nil {
		c.mu.Lock()
		c.allocated[ptr]++
		c.mu.Unlock()
	}
	return ptr, err
}

func (c *countingMemory) Free(ptr Ptr) error {
	c.mu.Lock()
	c.freed[ptr]++
	c.mu.Unlock()
	return c.Arena.Free(ptr)
}

func strPtr(s string) *string {
	return &s
}

func sampleMetadata() Metadata {
	return Metadata{
		ID:             "echo",
		Name:           "Echo",
		Description:    "Echoes messages back",
		Version:        "1.0.0",
		Author:         strPtr("plugin-bridge"),
		ConfigPath:     "/plugins/echo/manifest.yaml",
		InstanceID:     strPtr("inst-1"),
		RequireHistory: true,
	}
}

func TestToBoundary_RoundTrip(t *testing.T) {
	mem := newCountingMemory()
	md := sampleMetadata()

	ffi, err := ToBoundary(mem, md)
	require.NoError(t, err)

	assert.True(t, ffi.LibraryPath.IsNull(), "absent optional must be Null")
	assert.False(t, ffi.Author.IsNull())

	got := FromBoundary(mem, ffi)
	assert.Equal(t, md, got)

	require.NoError(t, FreeBoundary(mem, ffi))
	assert.Equal(t, mem.allocated, mem.freed, "every allocation freed exactly once")
	assert.Zero(t, mem.Live())
}

func TestToBoundary_RoundTripProperty(t *testing.T) {
	optional := func(t *rapid.T, label string) *string {
		if rapid.Bool().Draw(t, label+"_set") {
			s := rapid.StringMatching(`[^\x00]*`).Draw(t, label)
			return &s
		}
		return nil
	}

	rapid.Check(t, func(t *rapid.T) {
		mem := newCountingMemory()
		md := Metadata{
			ID:             rapid.StringMatching(`[a-z0-9-]{0,16}`).Draw(t, "id"),
			Disabled:       rapid.Bool().Draw(t, "disabled"),
			Name:           rapid.StringMatching(`[^\x00]{0,32}`).Draw(t, "name"),
			Description:    rapid.StringMatching(`[^\x00]{0,64}`).Draw(t, "description"),
			Version:        rapid.StringMatching(`[0-9.]{0,8}`).Draw(t, "version"),
			Author:         optional(t, "author"),
			LibraryPath:    optional(t, "library_path"),
			ConfigPath:     rapid.StringMatching(`[^\x00]{0,32}`).Draw(t, "config_path"),
			InstanceID:     optional(t, "instance_id"),
			RequireHistory: rapid.Bool().Draw(t, "require_history"),
		}

		ffi, err := ToBoundary(mem, md)
		if err != nil {
			t.Fatalf("ToBoundary: %v", err)
		}
		if got := FromBoundary(mem, ffi); !assert.ObjectsAreEqual(md, got) {
			t.Fatalf("round trip mismatch: want %+v, got %+v", md, got)
		}
		if err := FreeBoundary(mem, ffi); err != nil {
			t.Fatalf("FreeBoundary: %v", err)
		}
		if !assert.ObjectsAreEqual(mem.allocated, mem.freed) {
			t.Fatalf("allocated %v, freed %v", mem.allocated, mem.freed)
		}
		for ptr, n := range mem.freed {
			if n != 1 {
				t.Fatalf("pointer %d freed %d times", ptr, n)
			}
		}
	})
}

func TestToBoundary_InteriorNulReleasesPartialRecord(t *testing.T) {
	mem := newCountingMemory()
	md := sampleMetadata()
	md.Author = strPtr("bad\x00author")

	_, err := ToBoundary(mem, md)
	require.Error(t, err)

	var se *StringError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "author", se.Field)
	assert.ErrorIs(t, err, ErrInteriorNul)

	assert.Equal(t, mem.allocated, mem.freed)
	assert.Zero(t, mem.Live())
}

func TestFromBoundary_NullRequiredFieldsReadEmpty(t *testing.T) {
	mem := NewArena()
	name, err := WriteString(mem, "partial")
	require.NoError(t, err)

	got := FromBoundary(mem, MetadataFFI{Name: name, Disabled: true})
	assert.Equal(t, "", got.ID)
	assert.Equal(t, "partial", got.Name)
	assert.Equal(t, "", got.ConfigPath)
	assert.Nil(t, got.Author)
	assert.Nil(t, got.InstanceID)
	assert.True(t, got.Disabled)

	// The input pointer is still owned by the producer.
	assert.Equal(t, 1, mem.Live())
	require.NoError(t, mem.Free(name))
}

func TestMetadataFFI_EncodeDecode(t *testing.T) {
	ffi := MetadataFFI{
		ID: 8, Disabled: true, Name: 16, Description: 24, Version: 32,
		ConfigPath: 40, InstanceID: 48, RequireHistory: true,
	}

	buf := ffi.Encode()
	require.Len(t, buf, MetadataFFISize)

	got, err := DecodeMetadataFFI(buf)
	require.NoError(t, err)
	assert.Equal(t, ffi, got)

	_, err = DecodeMetadataFFI(buf[:12])
	assert.Error(t, err)
}

func TestMetadata_InstanceIDOr(t *testing.T) {
	md := Metadata{ID: "echo"}
	assert.Equal(t, "echo", md.InstanceIDOr(md.ID))

	md.InstanceID = strPtr("inst-7")
	assert.Equal(t, "inst-7", md.InstanceIDOr(md.ID))
}
