package host

import (
	"time"

	"github.com/woxQAQ/plugin-bridge/internal/wasm"
)

// Plugin is a discovered plugin: its manifest and, for wasm plugins, the
// compiled guest module.
type Plugin struct {
	// Manifest is the parsed plugin metadata
	Manifest *Manifest

	// Compiled is the compiled guest module; nil for native plugins
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the plugin was loaded
	LoadedAt time.Time
}

// ID returns the plugin id.
func (p *Plugin) ID() string {
	return p.Manifest.ID
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.Manifest.Name
}

// Version returns the plugin version.
func (p *Plugin) Version() string {
	return p.Manifest.Version
}

// Kind returns how the plugin is loaded.
func (p *Plugin) Kind() Kind {
	return p.Manifest.Kind
}
