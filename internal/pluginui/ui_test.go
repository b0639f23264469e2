package pluginui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUICollectsCommands(t *testing.T) {
	ui := New(NewContext(3, "Refresh"))

	assert.False(t, ui.Label("Status: ok").Clicked)
	ui.Separator()
	assert.True(t, ui.Button("Refresh").Clicked)
	assert.False(t, ui.Button("Close").Clicked)

	assert.Equal(t, []Command{
		{Kind: KindLabel, Text: "Status: ok"},
		{Kind: KindSeparator},
		{Kind: KindButton, Text: "Refresh"},
		{Kind: KindButton, Text: "Close"},
	}, ui.Commands())
}

func TestNilContext(t *testing.T) {
	ui := New(nil)
	assert.False(t, ui.Button("x").Clicked)
}
