package host

import (
	"errors"
	"fmt"
)

// ErrPluginDisabled is returned when instantiating a disabled plugin.
var ErrPluginDisabled = errors.New("plugin is disabled")

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// LibraryNotFoundError occurs when the guest module referenced in a manifest doesn't exist.
type LibraryNotFoundError struct {
	ManifestPath string
	Library      string
}

func (e *LibraryNotFoundError) Error() string {
	return fmt.Sprintf("library '%s' not found (referenced in manifest '%s')",
		e.Library, e.ManifestPath)
}

// PluginLoadError occurs when loading or instantiating a plugin fails.
type PluginLoadError struct {
	PluginID string
	Err      error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("failed to load plugin '%s': %v", e.PluginID, e.Err)
}

func (e *PluginLoadError) Unwrap() error {
	return e.Err
}

// PluginNotFoundError occurs when a plugin is not found in the registry.
type PluginNotFoundError struct {
	PluginID string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("plugin '%s' not found", e.PluginID)
}

// PluginAlreadyRegisteredError occurs when attempting to register a duplicate plugin.
type PluginAlreadyRegisteredError struct {
	PluginID string
}

func (e *PluginAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("plugin '%s' is already registered", e.PluginID)
}

// NoPluginsFoundError occurs when no plugins are found in the configured paths.
type NoPluginsFoundError struct {
	Paths []string
}

func (e *NoPluginsFoundError) Error() string {
	return fmt.Sprintf("no plugins found in paths: %v", e.Paths)
}

// InstanceNotFoundError occurs when an instance id is unknown to the manager.
type InstanceNotFoundError struct {
	InstanceID string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("instance '%s' not found", e.InstanceID)
}

// EntryPointError occurs when a plugin entry point reports a failure status.
type EntryPointError struct {
	InstanceID string
	EntryPoint string
	Status     int32
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("entry point '%s' failed with status %d (instance: %s)",
		e.EntryPoint, e.Status, e.InstanceID)
}
