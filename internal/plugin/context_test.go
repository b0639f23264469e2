package plugin

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/stream"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

type event struct {
	name    string
	payload string
}

// frontend is a callbacks.Host that records events.
type frontend struct {
	mu      sync.Mutex
	events  []event
	reject  func(name string) bool
	config  map[string]string
	plugins map[string]func(string) string
}

func (f *frontend) SendToFrontend(name, payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil && f.reject(name) {
		return false
	}
	f.events = append(f.events, event{name, payload})
	return true
}

func (f *frontend) GetAppConfig(key string) (string, bool) {
	v, ok := f.config[key]
	return v, ok
}

func (f *frontend) CallOtherPlugin(pluginID, message string) (string, bool) {
	fn, ok := f.plugins[pluginID]
	if !ok {
		return "", false
	}
	return fn(message), true
}

func (f *frontend) last(t *testing.T) event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

var fixedNow = time.UnixMilli(1_700_000_000_123)

func strPtr(s string) *string { return &s }

func testMetadata() abi.Metadata {
	return abi.Metadata{
		ID:         "echo",
		Name:       "Echo",
		Version:    "1.0.0",
		ConfigPath: "/plugins/echo/manifest.yaml",
		InstanceID: strPtr("inst-1"),
	}
}

func newTestContext(t *testing.T, md abi.Metadata, host *frontend) (*InstanceContext, *abi.Arena, *callbacks.HostTable) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := abi.NewArena()
	ht := callbacks.NewHostTable(mem, host, logger)
	t.Cleanup(ht.Close)
	table := ht.Table()
	pc := NewInstanceContext(*md.InstanceID, md, &table, stream.NewRegistry(logger), logger,
		WithClock(func() time.Time { return fixedNow }))
	return pc, mem, ht
}

func TestInstanceContext_SendToFrontendReleasesArguments(t *testing.T) {
	host := &frontend{}
	pc, mem, _ := newTestContext(t, testMetadata(), host)

	require.True(t, pc.SendToFrontend("custom", `{"a":1}`))
	assert.Equal(t, event{"custom", `{"a":1}`}, host.last(t))
	assert.Zero(t, mem.Live())

	assert.False(t, pc.SendToFrontend("bad\x00event", "{}"))
	assert.Zero(t, mem.Live())
}

func TestInstanceContext_NoCallbacks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pc := NewInstanceContext("inst-1", testMetadata(), nil, stream.NewRegistry(logger), logger)

	assert.False(t, pc.SendToFrontend("e", "p"))
	_, ok := pc.GetAppConfig("theme")
	assert.False(t, ok)
	_, ok = pc.CallOtherPlugin("other", "hi")
	assert.False(t, ok)
	_, ok = pc.Callbacks()
	assert.False(t, ok)

	_, err := pc.StartStream()
	assert.ErrorIs(t, err, stream.ErrSendFailed)
}

func TestInstanceContext_GetAppConfig(t *testing.T) {
	host := &frontend{config: map[string]string{"theme": "dark"}}
	pc, mem, ht := newTestContext(t, testMetadata(), host)

	v, ok := pc.GetAppConfig("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	_, ok = pc.GetAppConfig("missing")
	assert.False(t, ok)

	// results are handed back once copied
	assert.Zero(t, ht.Retained())
	assert.Zero(t, mem.Live())
}

func TestInstanceContext_RepeatedCallbacksDoNotAccumulate(t *testing.T) {
	host := &frontend{
		config:  map[string]string{"theme": "dark"},
		plugins: map[string]func(string) string{"upper": strings.ToUpper},
	}
	pc, mem, ht := newTestContext(t, testMetadata(), host)

	for i := 0; i < 1000; i++ {
		v, ok := pc.GetAppConfig("theme")
		require.True(t, ok)
		require.Equal(t, "dark", v)

		reply, ok := pc.CallOtherPlugin("upper", "hi")
		require.True(t, ok)
		require.Equal(t, "HI", reply)
	}
	assert.Zero(t, ht.Retained())
	assert.Zero(t, mem.Live())
}

func TestInstanceContext_CallOtherPlugin(t *testing.T) {
	host := &frontend{plugins: map[string]func(string) string{
		"upper": strings.ToUpper,
	}}
	pc, _, _ := newTestContext(t, testMetadata(), host)

	reply, ok := pc.CallOtherPlugin("upper", "hello")
	require.True(t, ok)
	assert.Equal(t, "HELLO", reply)

	_, ok = pc.CallOtherPlugin("missing", "hello")
	assert.False(t, ok)
}

func TestInstanceContext_SendMessageToFrontend(t *testing.T) {
	host := &frontend{}
	pc, _, _ := newTestContext(t, testMetadata(), host)

	require.True(t, pc.SendMessageToFrontend("hi there"))

	ev := host.last(t)
	assert.Equal(t, protocol.EventPluginMessage, ev.name)
	require.NoError(t, protocol.Validate(ev.name, []byte(ev.payload)))

	var msg protocol.PluginMessage
	require.NoError(t, json.Unmarshal([]byte(ev.payload), &msg))
	assert.Equal(t, protocol.PluginMessage{
		MessageType: protocol.MessageTypePlugin,
		PluginID:    "echo",
		InstanceID:  "inst-1",
		MessageID:   "message_1700000000123000000",
		Content:     "hi there",
		Timestamp:   1_700_000_000_123,
	}, msg)
}

func TestInstanceContext_InstanceIDFallsBackToPluginID(t *testing.T) {
	host := &frontend{}
	md := testMetadata()
	logger := zaptest.NewLogger(t)
	mem := abi.NewArena()
	table := callbacks.NewHostTable(mem, host, logger).Table()

	md.InstanceID = nil
	pc := NewInstanceContext("inst-1", md, &table, stream.NewRegistry(logger), logger)

	require.True(t, pc.RefreshUI())
	var refreshed protocol.UIRefreshed
	require.NoError(t, json.Unmarshal([]byte(host.last(t).payload), &refreshed))
	assert.Equal(t, protocol.UIRefreshed{Plugin: "echo", Instance: "echo"}, refreshed)
}

func TestInstanceContext_RequestDisconnect(t *testing.T) {
	host := &frontend{}
	pc, _, _ := newTestContext(t, testMetadata(), host)

	require.True(t, pc.RequestDisconnect())
	ev := host.last(t)
	assert.Equal(t, protocol.EventDisconnectRequest, ev.name)

	var req protocol.DisconnectRequest
	require.NoError(t, json.Unmarshal([]byte(ev.payload), &req))
	assert.Equal(t, protocol.DisconnectRequest{PluginID: "echo", InstanceID: "inst-1", Timestamp: 1_700_000_000_123}, req)
}

func TestInstanceContext_History(t *testing.T) {
	pc, _, _ := newTestContext(t, testMetadata(), &frontend{})

	_, ok := pc.History()
	assert.False(t, ok)

	history := []protocol.HistoryMessage{{ID: "m1", Role: "user", Content: "hi"}}
	pc.SetHistory(history)

	// require_history is false: a warning is logged but the data is returned
	got, ok := pc.History()
	require.True(t, ok)
	assert.Equal(t, history, got)

	pc.ClearHistory()
	_, ok = pc.History()
	assert.False(t, ok)
}

func TestInstanceContext_StreamEnvelopes(t *testing.T) {
	host := &frontend{}
	pc, _, _ := newTestContext(t, testMetadata(), host)

	id, err := pc.StartStream()
	require.NoError(t, err)
	require.NoError(t, pc.SendStreamData(id, "part", false))
	require.NoError(t, pc.SendStreamBatch(id, []string{"a", "b"}))
	require.NoError(t, pc.EndStream(id, true, nil))

	status, ok := pc.StreamStatus(id)
	require.True(t, ok)
	assert.Equal(t, stream.StatusCompleted, status)
	assert.Empty(t, pc.ActiveStreams())

	host.mu.Lock()
	events := append([]event(nil), host.events...)
	host.mu.Unlock()
	require.Len(t, events, 5)

	var types []string
	for _, ev := range events {
		assert.Equal(t, protocol.EventPluginStream, ev.name)
		require.NoError(t, protocol.Validate(ev.name, []byte(ev.payload)))

		var env protocol.StreamEnvelope
		require.NoError(t, json.Unmarshal([]byte(ev.payload), &env))
		assert.Equal(t, "echo", env.PluginID)
		assert.Equal(t, "inst-1", env.InstanceID)
		assert.Equal(t, id, env.Data.StreamID())
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{
		protocol.StreamTypeStart,
		protocol.StreamTypeData,
		protocol.StreamTypeData,
		protocol.StreamTypeData,
		protocol.StreamTypeEnd,
	}, types)
}

func TestInstanceContext_StreamRejectedByHost(t *testing.T) {
	host := &frontend{}
	pc, _, _ := newTestContext(t, testMetadata(), host)

	id, err := pc.StartStream()
	require.NoError(t, err)

	host.reject = func(string) bool { return true }
	assert.ErrorIs(t, pc.SendStreamData(id, "x", false), stream.ErrStreamCancelled)
	assert.ErrorIs(t, pc.PauseStream(id), stream.ErrSendFailed)
	assert.ErrorIs(t, pc.ResumeStream(id), stream.ErrSendFailed)
	assert.ErrorIs(t, pc.CancelStream(id), stream.ErrSendFailed)

	status, _ := pc.StreamStatus(id)
	assert.Equal(t, stream.StatusCancelled, status)
}
