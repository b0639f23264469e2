package host

import (
	"context"
	"errors"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/handle"
	"github.com/woxQAQ/plugin-bridge/internal/plugin"
	"github.com/woxQAQ/plugin-bridge/internal/pluginui"
	"go.uber.org/zap"
)

// nativePlugin drives the entry-point table of an in-process plugin. All
// boundary strings live in the instance's arena.
type nativePlugin struct {
	iface      *plugin.Interface
	mem        *abi.Arena
	instanceID string
	logger     *zap.Logger
}

func (n *nativePlugin) check(entry string, status int32) error {
	if status == plugin.StatusOK {
		return nil
	}
	return &EntryPointError{InstanceID: n.instanceID, EntryPoint: entry, Status: status}
}

// initialize marshals md into the arena for the duration of the call.
func (n *nativePlugin) initialize(md abi.Metadata, table callbacks.Table) error {
	ffi, err := abi.ToBoundary(n.mem, md)
	if err != nil {
		return err
	}
	defer func() {
		if err := abi.FreeBoundary(n.mem, ffi); err != nil {
			n.logger.Warn("Failed to release metadata record", zap.Error(err))
		}
	}()
	return n.check("initialize", n.iface.Initialize(n.iface.PluginPtr, table, ffi))
}

func (n *nativePlugin) hook(entry string, fn func(handle.Handle) int32) error {
	if fn == nil {
		return nil
	}
	return n.check(entry, fn(n.iface.PluginPtr))
}

func (n *nativePlugin) Mount(context.Context) error {
	return n.hook("on_mount", n.iface.OnMount)
}

func (n *nativePlugin) Dispose(context.Context) error {
	return n.hook("on_dispose", n.iface.OnDispose)
}

func (n *nativePlugin) Connect(context.Context) error {
	return n.hook("on_connect", n.iface.OnConnect)
}

func (n *nativePlugin) Disconnect(context.Context) error {
	return n.hook("on_disconnect", n.iface.OnDisconnect)
}

// HandleMessage passes message in and takes ownership of the response.
func (n *nativePlugin) HandleMessage(_ context.Context, message string) (string, error) {
	input, err := abi.WriteString(n.mem, message)
	if err != nil {
		return "", err
	}
	defer n.mem.Free(input)

	var out abi.Ptr
	if err := n.check("handle_message", n.iface.HandleMessage(n.iface.PluginPtr, input, &out)); err != nil {
		return "", err
	}
	if out.IsNull() {
		return "", nil
	}
	response := abi.ReadString(n.mem, out)
	if err := n.mem.Free(out); err != nil {
		n.logger.Warn("Failed to release response", zap.Error(err))
	}
	return response, nil
}

func (n *nativePlugin) SetHistory(_ context.Context, historyJSON string) error {
	if historyJSON == "" {
		return n.check("set_history", n.iface.SetHistory(n.iface.PluginPtr, abi.Null))
	}
	ptr, err := abi.WriteString(n.mem, historyJSON)
	if err != nil {
		return err
	}
	defer n.mem.Free(ptr)
	return n.check("set_history", n.iface.SetHistory(n.iface.PluginPtr, ptr))
}

func (n *nativePlugin) Metadata(context.Context) (abi.Metadata, error) {
	ffi := n.iface.GetMetadata(n.iface.PluginPtr)
	if ffi.ID.IsNull() {
		return abi.Metadata{}, errors.New("plugin returned no metadata")
	}
	md := abi.FromBoundary(n.mem, ffi)
	if err := abi.FreeBoundary(n.mem, ffi); err != nil {
		n.logger.Warn("Failed to release metadata", zap.Error(err))
	}
	return md, nil
}

// RenderUI runs one UI frame and returns the commands the plugin emitted.
func (n *nativePlugin) RenderUI(ctx *pluginui.Context) ([]pluginui.Command, error) {
	ui := pluginui.New(ctx)
	ctxHandle := handle.New(ctx)
	uiHandle := handle.New(ui)
	defer ctxHandle.Delete()
	defer uiHandle.Delete()

	if err := n.check("update_ui", n.iface.UpdateUI(n.iface.PluginPtr, ctxHandle, uiHandle)); err != nil {
		return nil, err
	}
	return ui.Commands(), nil
}

func (n *nativePlugin) Close(context.Context) error {
	plugin.DestroyPlugin(n.iface)
	return nil
}
