package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadHostConfigDefaults(t *testing.T) {
	cfg, err := LoadHostConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Default log level mismatch: got %s, want info", cfg.LogLevel)
	}

	if len(cfg.PluginPaths) != 1 || cfg.PluginPaths[0] != "./plugins" {
		t.Errorf("Default plugin paths mismatch: got %v, want [./plugins]", cfg.PluginPaths)
	}

	if cfg.History.Enabled {
		t.Errorf("History should be disabled by default")
	}

	if cfg.History.Limit != 50 {
		t.Errorf("Default history limit mismatch: got %d, want 50", cfg.History.Limit)
	}

	if cfg.Wasm.MemoryPages != 256 {
		t.Errorf("Default memory pages mismatch: got %d, want 256", cfg.Wasm.MemoryPages)
	}

	if cfg.Wasm.CallTimeoutDuration() != 30*time.Second {
		t.Errorf("Default call timeout mismatch: got %v, want 30s", cfg.Wasm.CallTimeoutDuration())
	}

	if cfg.Frontend.EventLimit != 1024 {
		t.Errorf("Default event limit mismatch: got %d, want 1024", cfg.Frontend.EventLimit)
	}
}

func TestLoadHostConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
log_level: debug
plugin_paths:
  - /opt/plugins
  - ./local
history:
  enabled: true
  db_path: /tmp/history.db
  limit: 10
wasm:
  max_instances: 4
  call_timeout: 5
app:
  theme: dark
  locale: en
`
	if err := os.WriteFile(path, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadHostConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Log level mismatch: got %s, want debug", cfg.LogLevel)
	}

	if len(cfg.PluginPaths) != 2 || cfg.PluginPaths[0] != "/opt/plugins" {
		t.Errorf("Plugin paths mismatch: got %v", cfg.PluginPaths)
	}

	if !cfg.History.Enabled || cfg.History.DBPath != "/tmp/history.db" || cfg.History.Limit != 10 {
		t.Errorf("History config mismatch: got %+v", cfg.History)
	}

	if cfg.Wasm.MaxInstances != 4 {
		t.Errorf("Max instances mismatch: got %d, want 4", cfg.Wasm.MaxInstances)
	}

	// Unset keys keep their defaults.
	if cfg.Wasm.MemoryPages != 256 {
		t.Errorf("Memory pages mismatch: got %d, want 256", cfg.Wasm.MemoryPages)
	}

	if cfg.App["theme"] != "dark" || cfg.App["locale"] != "en" {
		t.Errorf("App config mismatch: got %v", cfg.App)
	}
}

func TestLoadHostConfigMissingFile(t *testing.T) {
	if _, err := LoadHostConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Loading a missing config file should fail")
	}
}
