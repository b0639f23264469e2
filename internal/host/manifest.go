package host

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name inside a plugin directory.
const ManifestFile = "manifest.yaml"

// Kind is how a plugin is loaded.
type Kind string

const (
	// KindNative plugins are Go handlers linked into the host and registered
	// with Manager.RegisterNative.
	KindNative Kind = "native"
	// KindWasm plugins are guest modules run by the Wasm runtime.
	KindWasm Kind = "wasm"
)

// Manifest represents the plugin manifest.yaml structure.
type Manifest struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Version        string `yaml:"version"`
	Author         string `yaml:"author"`
	Disabled       bool   `yaml:"disabled"`
	RequireHistory bool   `yaml:"require_history"`
	Kind           Kind   `yaml:"kind"`
	// Library is the guest module file, relative to the manifest.
	Library string `yaml:"library"`

	// Internal fields
	dir string // Directory containing manifest
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir
	if m.Kind == "" {
		m.Kind = KindNative
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	required := []struct{ field, value string }{
		{"id", m.ID},
		{"name", m.Name},
		{"version", m.Version},
	}
	for _, r := range required {
		if r.value == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   r.field,
				Message: r.field + " is required",
			}
		}
	}

	for _, s := range []string{m.ID, m.Name, m.Description, m.Version, m.Author} {
		if err := abi.CheckString(s); err != nil {
			return &ManifestValidationError{Path: m.Path(), Message: err.Error()}
		}
	}

	switch m.Kind {
	case KindNative:
	case KindWasm:
		if m.Library == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "library",
				Message: "library is required for wasm plugins",
			}
		}
		if _, err := os.Stat(m.LibraryPath()); os.IsNotExist(err) {
			return &LibraryNotFoundError{
				ManifestPath: m.Path(),
				Library:      m.Library,
			}
		}
	default:
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind: %s (must be one of: native, wasm)", m.Kind),
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// LibraryPath returns the path to the guest module, or "" for plugins
// without one.
func (m *Manifest) LibraryPath() string {
	if m.Library == "" {
		return ""
	}
	return filepath.Join(m.dir, m.Library)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// Metadata builds the boundary metadata for one instance of the plugin.
func (m *Manifest) Metadata(instanceID string) abi.Metadata {
	md := abi.Metadata{
		ID:             m.ID,
		Disabled:       m.Disabled,
		Name:           m.Name,
		Description:    m.Description,
		Version:        m.Version,
		ConfigPath:     m.Path(),
		RequireHistory: m.RequireHistory,
	}
	if m.Author != "" {
		author := m.Author
		md.Author = &author
	}
	if lib := m.LibraryPath(); lib != "" {
		md.LibraryPath = &lib
	}
	if instanceID != "" {
		md.InstanceID = &instanceID
	}
	return md
}
