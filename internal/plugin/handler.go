package plugin

import (
	"fmt"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/pluginui"
	"go.uber.org/zap"
)

// Handler is implemented by every plugin. Entry points of one instance may be
// called from different goroutines.
type Handler interface {
	UpdateUI(ctx *pluginui.Context, ui *pluginui.UI, pc *InstanceContext)
	OnMount(pc *InstanceContext) error
	OnDispose(pc *InstanceContext) error
	OnConnect(pc *InstanceContext) error
	OnDisconnect(pc *InstanceContext) error
	HandleMessage(message string, pc *InstanceContext) (string, error)
	Metadata(pc *InstanceContext) abi.Metadata
}

// Initializer is an optional hook run once the instance context is built.
// A returned error fails initialization.
type Initializer interface {
	Initialize(pc *InstanceContext) error
}

// BaseHandler provides default lifecycle hooks that only log, and an echo
// HandleMessage. Embed it and override what the plugin needs.
type BaseHandler struct{}

func (BaseHandler) UpdateUI(*pluginui.Context, *pluginui.UI, *InstanceContext) {}

func (BaseHandler) OnMount(pc *InstanceContext) error {
	logLifecycle(pc, "Plugin mounted")
	return nil
}

func (BaseHandler) OnDispose(pc *InstanceContext) error {
	logLifecycle(pc, "Plugin disposed")
	return nil
}

func (BaseHandler) OnConnect(pc *InstanceContext) error {
	logLifecycle(pc, "Plugin connected")
	return nil
}

func (BaseHandler) OnDisconnect(pc *InstanceContext) error {
	logLifecycle(pc, "Plugin disconnected")
	return nil
}

// HandleMessage echoes message back, notes the history size for plugins that
// require history, and mirrors the message to the frontend.
func (BaseHandler) HandleMessage(message string, pc *InstanceContext) (string, error) {
	md := pc.Metadata()
	pc.Logger().Info("Plugin received message",
		zap.String("name", md.Name),
		zap.Bool("require_history", md.RequireHistory),
	)

	suffix := HistorySuffix(pc)
	pc.SendMessageToFrontend(fmt.Sprintf("[%s] received: %s%s", md.Name, message, suffix))
	return fmt.Sprintf("Echo from %s: %s%s", md.Name, message, suffix), nil
}

func (BaseHandler) Metadata(pc *InstanceContext) abi.Metadata {
	return pc.Metadata()
}

// HistorySuffix describes the session history for plugins that require it,
// and is empty otherwise.
func HistorySuffix(pc *InstanceContext) string {
	if !pc.Metadata().RequireHistory {
		return ""
	}
	history, ok := pc.History()
	if !ok {
		return " (no history)"
	}
	return fmt.Sprintf(" (with %d history messages)", len(history))
}

func logLifecycle(pc *InstanceContext, msg string) {
	md := pc.Metadata()
	pc.Logger().Info(msg,
		zap.String("name", md.Name),
		zap.String("version", md.Version),
	)
}
