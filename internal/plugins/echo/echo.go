// Package echo is the reference native plugin. It echoes messages back and,
// for "stream:<text>", streams the words of text to the frontend.
package echo

import (
	"fmt"
	"strings"

	"github.com/woxQAQ/plugin-bridge/internal/plugin"
	"github.com/woxQAQ/plugin-bridge/internal/pluginui"
	"go.uber.org/zap"
)

// ID is the plugin id the host registers the echo plugin under.
const ID = "echo"

// StreamPrefix marks a message whose text is streamed back word by word.
const StreamPrefix = "stream:"

// Plugin is the echo handler.
type Plugin struct {
	plugin.BaseHandler
}

// Create is the echo plugin's create_plugin constructor.
var Create plugin.CreatePluginFunc = plugin.Factory(func() plugin.Handler {
	return &Plugin{}
})

func (p *Plugin) HandleMessage(message string, pc *plugin.InstanceContext) (string, error) {
	text, ok := strings.CutPrefix(message, StreamPrefix)
	if !ok {
		return p.BaseHandler.HandleMessage(message, pc)
	}
	return p.stream(text, pc)
}

// stream sends the words of text as one batch of chunks, each but the last
// followed by a space.
func (p *Plugin) stream(text string, pc *plugin.InstanceContext) (string, error) {
	words := strings.Fields(text)
	chunks := make([]string, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		chunks[i] = w
	}

	id, err := pc.StartStream()
	if err != nil {
		return "", err
	}

	if err := pc.SendStreamBatch(id, chunks); err != nil {
		msg := err.Error()
		if endErr := pc.EndStream(id, false, &msg); endErr != nil {
			pc.Logger().Warn("Failed to end interrupted stream", zap.String("stream_id", id), zap.Error(endErr))
		}
		return "", err
	}
	if err := pc.EndStream(id, true, nil); err != nil {
		return "", err
	}

	pc.Logger().Debug("Stream sent", zap.String("stream_id", id), zap.Int("chunks", len(chunks)))
	return fmt.Sprintf("Streamed %d chunks on %s", len(chunks), id), nil
}

func (p *Plugin) UpdateUI(_ *pluginui.Context, ui *pluginui.UI, pc *plugin.InstanceContext) {
	md := pc.Metadata()
	ui.Label(fmt.Sprintf("%s %s", md.Name, md.Version))
	if md.RequireHistory {
		history, _ := pc.History()
		ui.Label(fmt.Sprintf("History: %d messages", len(history)))
	}
	ui.Separator()
	if ui.Button("Refresh").Clicked {
		pc.RefreshUI()
	}
	if ui.Button("Disconnect").Clicked {
		pc.RequestDisconnect()
	}
}
