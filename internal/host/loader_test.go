package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/plugin-bridge/internal/wasm"
	"github.com/woxQAQ/plugin-bridge/internal/wasm/wasmtest"
	"go.uber.org/zap"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(ctx) })

	return NewLoader(runtime, logger)
}

// writeWasmPlugin lays out a wasm plugin directory under base.
func writeWasmPlugin(t *testing.T, base, id string) string {
	t.Helper()
	dir := filepath.Join(base, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "id: " + id + "\nname: Wasm Echo\nversion: 0.1.0\nkind: wasm\nlibrary: echo.wasm\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "echo.wasm"), wasmtest.EchoModule(), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoader_LoadPlugin_Native(t *testing.T) {
	loader := newTestLoader(t)

	p, err := loader.LoadPlugin(context.Background(), filepath.Join("testdata", "plugins", "echo"))
	if err != nil {
		t.Fatalf("LoadPlugin() failed: %v", err)
	}

	if p.ID() != "echo" || p.Name() != "Echo" || p.Version() != "1.0.0" {
		t.Errorf("unexpected plugin: %s %s %s", p.ID(), p.Name(), p.Version())
	}

	if p.Kind() != KindNative {
		t.Errorf("expected native kind, got %s", p.Kind())
	}

	if p.Compiled != nil {
		t.Error("native plugins should not carry a compiled module")
	}
}

func TestLoader_LoadPlugin_Wasm(t *testing.T) {
	loader := newTestLoader(t)
	dir := writeWasmPlugin(t, t.TempDir(), "wasm-echo")

	p, err := loader.LoadPlugin(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadPlugin() failed: %v", err)
	}

	if p.Compiled == nil {
		t.Fatal("wasm plugin should carry a compiled module")
	}

	if p.Compiled.SizeBytes != int64(len(wasmtest.EchoModule())) {
		t.Errorf("unexpected module size %d", p.Compiled.SizeBytes)
	}
}

func TestLoader_LoadPlugin_BadModule(t *testing.T) {
	loader := newTestLoader(t)
	dir := writeWasmPlugin(t, t.TempDir(), "garbage")
	if err := os.WriteFile(filepath.Join(dir, "echo.wasm"), []byte("not wasm"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loader.LoadPlugin(context.Background(), dir)
	var loadErr *PluginLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected PluginLoadError, got %v", err)
	}

	var compileErr *wasm.CompilationError
	if !errors.As(err, &compileErr) {
		t.Errorf("expected wrapped CompilationError, got %v", err)
	}
}

func TestLoader_LoadPlugin_ManifestNotFound(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.LoadPlugin(context.Background(), filepath.Join("testdata", "plugins", "nonexistent"))
	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestLoader_DiscoverPlugins(t *testing.T) {
	loader := newTestLoader(t)
	wasmDir := t.TempDir()
	writeWasmPlugin(t, wasmDir, "wasm-echo")

	plugins, err := loader.DiscoverPlugins(context.Background(), []string{
		filepath.Join("testdata", "plugins"),
		wasmDir,
	})
	if err != nil {
		t.Fatalf("DiscoverPlugins() failed: %v", err)
	}

	if len(plugins) != 4 {
		t.Errorf("expected 4 plugins, got %d", len(plugins))
	}
}

func TestLoader_DiscoverPlugins_SkipsInvalid(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.DiscoverPlugins(context.Background(), []string{filepath.Join("testdata", "invalid")})
	var none *NoPluginsFoundError
	if !errors.As(err, &none) {
		t.Errorf("expected NoPluginsFoundError, got %v", err)
	}
}

func TestLoader_DiscoverPlugins_EmptyDir(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.DiscoverPlugins(context.Background(), []string{t.TempDir()})
	var none *NoPluginsFoundError
	if !errors.As(err, &none) {
		t.Errorf("expected NoPluginsFoundError, got %v", err)
	}
}

func TestLoader_DiscoverPlugins_PathNotExist(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.DiscoverPlugins(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	var none *NoPluginsFoundError
	if !errors.As(err, &none) {
		t.Errorf("expected NoPluginsFoundError, got %v", err)
	}
}
