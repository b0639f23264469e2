package host

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func testPlugin(id string, kind Kind) *Plugin {
	return &Plugin{Manifest: &Manifest{ID: id, Name: id, Version: "1.0.0", Kind: kind}}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(testPlugin("echo", KindNative)); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(testPlugin("echo", KindNative)); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}

	err := registry.Register(testPlugin("echo", KindWasm))
	var dup *PluginAlreadyRegisteredError
	if !errors.As(err, &dup) {
		t.Fatalf("expected PluginAlreadyRegisteredError, got %v", err)
	}

	if dup.PluginID != "echo" {
		t.Errorf("expected plugin id 'echo', got '%s'", dup.PluginID)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	p := testPlugin("echo", KindNative)
	registry.Register(p)

	got, ok := registry.Get("echo")
	if !ok {
		t.Fatal("Get() should find registered plugin")
	}
	if got != p {
		t.Error("Get() returned a different plugin")
	}

	if _, ok := registry.Get("missing"); ok {
		t.Error("Get() should not find unregistered plugin")
	}
}

func TestRegistry_LookupByKind(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(testPlugin("a", KindNative))
	registry.Register(testPlugin("b", KindWasm))
	registry.Register(testPlugin("c", KindNative))

	if got := registry.LookupByKind(KindNative); len(got) != 2 {
		t.Errorf("expected 2 native plugins, got %d", len(got))
	}

	if got := registry.LookupByKind(KindWasm); len(got) != 1 || got[0].ID() != "b" {
		t.Errorf("expected wasm plugin 'b', got %v", got)
	}

	if got := registry.LookupByKind("other"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(testPlugin("zeta", KindNative))
	registry.Register(testPlugin("alpha", KindNative))

	list := registry.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(list))
	}
	if list[0].ID() != "alpha" || list[1].ID() != "zeta" {
		t.Errorf("expected plugins ordered by id, got %s, %s", list[0].ID(), list[1].ID())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(testPlugin("echo", KindNative))

	registry.Unregister("echo")
	registry.Unregister("echo")

	if registry.Count() != 0 {
		t.Errorf("expected count 0, got %d", registry.Count())
	}
	if got := registry.LookupByKind(KindNative); len(got) != 0 {
		t.Errorf("expected kind index to be cleared, got %d", len(got))
	}
}
