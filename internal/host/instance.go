package host

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/pluginui"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// runner is the entry-point surface shared by native and wasm plugins.
type runner interface {
	Mount(ctx context.Context) error
	Dispose(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HandleMessage(ctx context.Context, message string) (string, error)
	SetHistory(ctx context.Context, historyJSON string) error
	Metadata(ctx context.Context) (abi.Metadata, error)
	Close(ctx context.Context) error
}

type uiRenderer interface {
	RenderUI(ctx *pluginui.Context) ([]pluginui.Command, error)
}

// Instance is one live plugin instance.
type Instance struct {
	ID        string
	Plugin    *Plugin
	CreatedAt time.Time

	runner  runner
	table   *callbacks.HostTable
	manager *Manager
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Mount calls on_mount.
func (i *Instance) Mount(ctx context.Context) error {
	return i.runner.Mount(ctx)
}

// Dispose calls on_dispose.
func (i *Instance) Dispose(ctx context.Context) error {
	return i.runner.Dispose(ctx)
}

// Connect calls on_connect.
func (i *Instance) Connect(ctx context.Context) error {
	return i.runner.Connect(ctx)
}

// Disconnect calls on_disconnect.
func (i *Instance) Disconnect(ctx context.Context) error {
	return i.runner.Disconnect(ctx)
}

// Metadata asks the plugin for its current metadata.
func (i *Instance) Metadata(ctx context.Context) (abi.Metadata, error) {
	return i.runner.Metadata(ctx)
}

// Events returns the frontend events this instance delivered.
func (i *Instance) Events() []Event {
	return i.manager.frontend.EventsFor(i.ID)
}

// RenderUI runs one UI frame. Only native plugins draw UI.
func (i *Instance) RenderUI(frame uint64, clicked ...string) ([]pluginui.Command, error) {
	r, ok := i.runner.(uiRenderer)
	if !ok {
		return nil, fmt.Errorf("plugin '%s' does not render UI", i.Plugin.ID())
	}
	return r.RenderUI(pluginui.NewContext(frame, clicked...))
}

// HandleMessage sends message to the plugin and returns its response. Plugins
// that require history get the stored session history first, and the
// exchange is appended to it afterwards.
func (i *Instance) HandleMessage(ctx context.Context, message string) (string, error) {
	if err := i.attachHistory(ctx); err != nil {
		return "", err
	}

	response, err := i.runner.HandleMessage(ctx, message)
	if err != nil {
		return "", err
	}

	i.recordHistory(ctx, message, response)
	return response, nil
}

func (i *Instance) historyEnabled() bool {
	return i.Plugin.Manifest.RequireHistory && i.manager.history != nil
}

func (i *Instance) attachHistory(ctx context.Context) error {
	if !i.historyEnabled() {
		return nil
	}
	messages, err := i.manager.history.List(ctx, i.Plugin.ID(), i.manager.cfg.History.Limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return i.runner.SetHistory(ctx, string(payload))
}

func (i *Instance) recordHistory(ctx context.Context, message, response string) {
	if !i.historyEnabled() {
		return
	}
	exchange := []protocol.HistoryMessage{
		{MessageType: "normal", Status: "completed", Content: message, PluginID: i.Plugin.ID(), Role: "user"},
		{MessageType: "normal", Status: "completed", Content: response, PluginID: i.Plugin.ID(), Role: "plugin"},
	}
	for _, m := range exchange {
		if _, err := i.manager.history.Append(ctx, m); err != nil {
			i.logger.Warn("Failed to record history", zap.Error(err))
			return
		}
	}
}

// Close destroys the plugin instance and releases its callback results.
// Idempotent.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.table.Close()
		i.closeErr = i.runner.Close(ctx)
		i.manager.forget(i.ID)
		i.logger.Info("Instance closed")
	})
	return i.closeErr
}
