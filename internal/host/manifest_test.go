package host

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseManifest_Valid(t *testing.T) {
	dir := filepath.Join("testdata", "plugins", "echo")

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.ID != "echo" {
		t.Errorf("expected ID 'echo', got '%s'", manifest.ID)
	}

	if manifest.Name != "Echo" {
		t.Errorf("expected Name 'Echo', got '%s'", manifest.Name)
	}

	if manifest.Version != "1.0.0" {
		t.Errorf("expected Version '1.0.0', got '%s'", manifest.Version)
	}

	if manifest.Kind != KindNative {
		t.Errorf("expected Kind native, got '%s'", manifest.Kind)
	}

	if manifest.RequireHistory {
		t.Error("expected RequireHistory false")
	}
}

func TestParseManifest_DefaultKind(t *testing.T) {
	manifest, err := ParseManifest(filepath.Join("testdata", "plugins", "history-echo"))
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Kind != KindNative {
		t.Errorf("expected default Kind native, got '%s'", manifest.Kind)
	}

	if !manifest.RequireHistory {
		t.Error("expected RequireHistory true")
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	dir := filepath.Join("testdata", "plugins", "nonexistent")

	_, err := ParseManifest(dir)
	if err == nil {
		t.Fatal("ParseManifest() should fail for nonexistent directory")
	}

	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := ParseManifest(filepath.Join("testdata", "invalid", "invalid-yaml"))
	if err == nil {
		t.Fatal("ParseManifest() should fail for invalid YAML")
	}

	var parseErr *ManifestParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ManifestParseError, got %T", err)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		dir   string
		field string
	}{
		{"missing-fields", "name"},
		{"bad-kind", "kind"},
		{"wasm-no-library", "library"},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			_, err := ParseManifest(filepath.Join("testdata", "invalid", tt.dir))
			if err == nil {
				t.Fatal("ParseManifest() should fail")
			}

			var validationErr *ManifestValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ManifestValidationError, got %T", err)
			}

			if validationErr.Field != tt.field {
				t.Errorf("expected field '%s', got '%s'", tt.field, validationErr.Field)
			}
		})
	}
}

func TestParseManifest_LibraryNotFound(t *testing.T) {
	_, err := ParseManifest(filepath.Join("testdata", "invalid", "library-missing"))
	if err == nil {
		t.Fatal("ParseManifest() should fail when the library is missing")
	}

	var libErr *LibraryNotFoundError
	if !errors.As(err, &libErr) {
		t.Fatalf("expected LibraryNotFoundError, got %T", err)
	}

	if libErr.Library != "missing.wasm" {
		t.Errorf("expected library 'missing.wasm', got '%s'", libErr.Library)
	}
}

func TestManifest_InteriorNul(t *testing.T) {
	m := &Manifest{ID: "nul", Name: "bad\x00name", Version: "1.0.0", Kind: KindNative}

	var validationErr *ManifestValidationError
	if err := m.Validate(); !errors.As(err, &validationErr) {
		t.Errorf("expected ManifestValidationError, got %v", err)
	}
}

func TestManifest_Paths(t *testing.T) {
	dir := filepath.Join("testdata", "plugins", "echo")

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Dir() != dir {
		t.Errorf("expected dir '%s', got '%s'", dir, manifest.Dir())
	}

	if want := filepath.Join(dir, "manifest.yaml"); manifest.Path() != want {
		t.Errorf("expected path '%s', got '%s'", want, manifest.Path())
	}

	if manifest.LibraryPath() != "" {
		t.Errorf("expected no library path, got '%s'", manifest.LibraryPath())
	}
}

func TestManifest_Metadata(t *testing.T) {
	manifest, err := ParseManifest(filepath.Join("testdata", "plugins", "echo"))
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	md := manifest.Metadata("inst-1")

	if md.ID != "echo" || md.Name != "Echo" || md.Version != "1.0.0" {
		t.Errorf("unexpected metadata: %+v", md)
	}

	if md.ConfigPath != manifest.Path() {
		t.Errorf("expected config path '%s', got '%s'", manifest.Path(), md.ConfigPath)
	}

	if md.Author == nil || *md.Author != "plugin-bridge" {
		t.Errorf("expected author 'plugin-bridge', got %v", md.Author)
	}

	if md.LibraryPath != nil {
		t.Errorf("expected nil library path, got %q", *md.LibraryPath)
	}

	if md.InstanceID == nil || *md.InstanceID != "inst-1" {
		t.Errorf("expected instance id 'inst-1', got %v", md.InstanceID)
	}

	if unassigned := manifest.Metadata(""); unassigned.InstanceID != nil {
		t.Error("expected nil instance id for an unassigned instance")
	}
}
