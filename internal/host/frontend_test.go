package host

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

func refreshed(s *source, n int) {
	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"plugin":"%s","instance":"%s-%d"}`, s.pluginID, s.instanceID, i)
		s.SendToFrontend(protocol.EventUIRefreshed, payload)
	}
}

func TestFrontend_KeepsRecentEvents(t *testing.T) {
	f := NewFrontend(nil, zaptest.NewLogger(t))
	f.SetEventLimit(10)
	src := &source{frontend: f, pluginID: "echo", instanceID: "a"}

	refreshed(src, 1000)

	events := f.Events()
	require.Len(t, events, 10)
	assert.Equal(t, `{"plugin":"echo","instance":"a-990"}`, events[0].Payload)
	assert.Equal(t, `{"plugin":"echo","instance":"a-999"}`, events[9].Payload)
	assert.Len(t, f.EventsFor("a"), 10)
	assert.LessOrEqual(t, cap(f.events), 20, "storage stays bounded")
}

func TestFrontend_RecordingDisabled(t *testing.T) {
	f := NewFrontend(nil, zaptest.NewLogger(t))
	f.SetEventLimit(-1)

	var forwarded int
	f.SetForward(func(Event) { forwarded++ })

	src := &source{frontend: f, pluginID: "echo", instanceID: "a"}
	refreshed(src, 50)

	assert.Empty(t, f.Events())
	assert.Equal(t, 50, forwarded)
}

func TestFrontend_SetEventLimit(t *testing.T) {
	f := NewFrontend(nil, zaptest.NewLogger(t))
	src := &source{frontend: f, pluginID: "echo", instanceID: "a"}
	refreshed(src, 5)

	f.SetEventLimit(2)
	events := f.Events()
	require.Len(t, events, 2)
	assert.Equal(t, `{"plugin":"echo","instance":"a-4"}`, events[1].Payload)

	f.SetEventLimit(0)
	refreshed(src, DefaultEventLimit+1)
	assert.Len(t, f.Events(), DefaultEventLimit, "zero restores the default")
}

func TestFrontend_RejectsInvalidPayload(t *testing.T) {
	f := NewFrontend(nil, zaptest.NewLogger(t))
	src := &source{frontend: f, pluginID: "echo", instanceID: "a"}

	assert.False(t, src.SendToFrontend(protocol.EventUIRefreshed, `{"plugin":"echo"}`))
	assert.Empty(t, f.Events())
	assert.Equal(t, 1, f.Rejected())
}
