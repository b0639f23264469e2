package config

import (
	"time"

	"github.com/spf13/viper"
)

// HostConfig is the plugin host configuration.
type HostConfig struct {
	PluginPaths []string          `mapstructure:"plugin_paths"`
	LogLevel    string            `mapstructure:"log_level"`
	History     HistoryConfig     `mapstructure:"history"`
	Wasm        WasmConfig        `mapstructure:"wasm"`
	Frontend    FrontendConfig    `mapstructure:"frontend"`
	App         map[string]string `mapstructure:"app"`
}

// HistoryConfig controls the session history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// Messages attached per call for require_history plugins.
	Limit int `mapstructure:"limit"`
}

// FrontendConfig controls the host's frontend event sink.
type FrontendConfig struct {
	// Recent events kept in memory; negative disables recording.
	EventLimit int `mapstructure:"event_limit"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Guest call timeout (seconds).
	CallTimeout int `mapstructure:"call_timeout"`
}

// CallTimeoutDuration returns CallTimeout as a duration.
func (w WasmConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(w.CallTimeout) * time.Second
}

// LoadHostConfig reads configPath over the defaults. An empty path yields
// the defaults.
func LoadHostConfig(configPath string) (*HostConfig, error) {
	v := viper.New()

	v.SetDefault("plugin_paths", []string{"./plugins"})
	v.SetDefault("log_level", "info")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "./build/history.db")
	v.SetDefault("history.limit", 50)

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.call_timeout", 30)

	v.SetDefault("frontend.event_limit", 1024)

	v.SetDefault("app", map[string]string{})

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
