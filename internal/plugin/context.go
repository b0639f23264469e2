package plugin

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/woxQAQ/plugin-bridge/internal/abi"
	"github.com/woxQAQ/plugin-bridge/internal/callbacks"
	"github.com/woxQAQ/plugin-bridge/internal/stream"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// InstanceContext is the per-instance state a handler works with: its
// metadata, the host callbacks and the session history.
type InstanceContext struct {
	instanceID string
	metadata   abi.Metadata
	table      *callbacks.Table
	streamer   *stream.Streamer
	now        func() time.Time
	logger     *zap.Logger

	mu         sync.RWMutex
	history    []protocol.HistoryMessage
	hasHistory bool
}

// ContextOption configures an InstanceContext.
type ContextOption func(*InstanceContext)

// WithClock replaces time.Now for envelope timestamps and generated ids.
func WithClock(now func() time.Time) ContextOption {
	return func(c *InstanceContext) { c.now = now }
}

// WithStreamOptions passes options to the context's streamer.
func WithStreamOptions(opts ...stream.Option) ContextOption {
	return func(c *InstanceContext) {
		c.streamer = stream.NewStreamer(c.streamer.Registry(), c, c.metadata.ID, c.logger, opts...)
	}
}

// NewInstanceContext builds the context for instanceID. table may be nil, in
// which case every host call reports failure.
func NewInstanceContext(instanceID string, md abi.Metadata, table *callbacks.Table, streams *stream.Registry, logger *zap.Logger, opts ...ContextOption) *InstanceContext {
	c := &InstanceContext{
		instanceID: instanceID,
		metadata:   md,
		table:      table,
		now:        time.Now,
		logger: logger.With(
			zap.String("plugin_id", md.ID),
			zap.String("instance_id", instanceID),
		),
	}
	c.streamer = stream.NewStreamer(streams, c, md.ID, c.logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InstanceID returns the id the host assigned to this instance.
func (c *InstanceContext) InstanceID() string {
	return c.instanceID
}

// Metadata returns the instance metadata.
func (c *InstanceContext) Metadata() abi.Metadata {
	return c.metadata
}

// Logger returns the instance-scoped logger.
func (c *InstanceContext) Logger() *zap.Logger {
	return c.logger
}

// Callbacks returns the host callback table, if one was provided.
func (c *InstanceContext) Callbacks() (callbacks.Table, bool) {
	if c.table == nil {
		return callbacks.Table{}, false
	}
	return *c.table, true
}

// envelopeInstanceID is the instance id used in outbound envelopes: the
// metadata instance id, falling back to the plugin id.
func (c *InstanceContext) envelopeInstanceID() string {
	return c.metadata.InstanceIDOr(c.metadata.ID)
}

// SendToFrontend delivers event with payload through the host. Both strings
// are marshaled for the duration of the call and released afterwards.
func (c *InstanceContext) SendToFrontend(event, payload string) bool {
	if c.table == nil || c.table.SendToFrontend == nil {
		return false
	}
	mem := c.table.Memory

	eventPtr, err := abi.WriteString(mem, event)
	if err != nil {
		c.logger.Warn("Failed to marshal event name", zap.String("event", event), zap.Error(err))
		return false
	}
	defer c.free(mem, eventPtr)

	payloadPtr, err := abi.WriteString(mem, payload)
	if err != nil {
		c.logger.Warn("Failed to marshal event payload", zap.String("event", event), zap.Error(err))
		return false
	}
	defer c.free(mem, payloadPtr)

	return c.table.SendToFrontend(eventPtr, payloadPtr)
}

// GetAppConfig reads an application setting from the host.
func (c *InstanceContext) GetAppConfig(key string) (string, bool) {
	if c.table == nil || c.table.GetAppConfig == nil {
		return "", false
	}
	mem := c.table.Memory

	keyPtr, err := abi.WriteString(mem, key)
	if err != nil {
		c.logger.Warn("Failed to marshal config key", zap.String("key", key), zap.Error(err))
		return "", false
	}
	defer c.free(mem, keyPtr)

	return c.take(mem, c.table.GetAppConfig(keyPtr))
}

// CallOtherPlugin sends message to pluginID through the host and returns the reply.
func (c *InstanceContext) CallOtherPlugin(pluginID, message string) (string, bool) {
	if c.table == nil || c.table.CallOtherPlugin == nil {
		return "", false
	}
	mem := c.table.Memory

	idPtr, err := abi.WriteString(mem, pluginID)
	if err != nil {
		c.logger.Warn("Failed to marshal plugin id", zap.String("target", pluginID), zap.Error(err))
		return "", false
	}
	defer c.free(mem, idPtr)

	msgPtr, err := abi.WriteString(mem, message)
	if err != nil {
		c.logger.Warn("Failed to marshal plugin message", zap.String("target", pluginID), zap.Error(err))
		return "", false
	}
	defer c.free(mem, msgPtr)

	return c.take(mem, c.table.CallOtherPlugin(idPtr, msgPtr))
}

// take copies a host-owned result and hands it back to the host.
func (c *InstanceContext) take(mem abi.Memory, result abi.Ptr) (string, bool) {
	if result.IsNull() {
		return "", false
	}
	s, ok := mem.ReadString(result)
	if c.table.Release != nil {
		c.table.Release(result)
	}
	return s, ok
}

func (c *InstanceContext) free(mem abi.Memory, ptr abi.Ptr) {
	if err := mem.Free(ptr); err != nil {
		c.logger.Warn("Failed to release argument", zap.Uint32("ptr", uint32(ptr)), zap.Error(err))
	}
}

// sendJSON marshals payload and sends it as event.
func (c *InstanceContext) sendJSON(event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to encode payload", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.SendToFrontend(event, string(data))
}

// SendMessageToFrontend sends content as a plugin chat message.
func (c *InstanceContext) SendMessageToFrontend(content string) bool {
	return c.sendJSON(protocol.EventPluginMessage, protocol.PluginMessage{
		MessageType: protocol.MessageTypePlugin,
		PluginID:    c.metadata.ID,
		InstanceID:  c.envelopeInstanceID(),
		MessageID:   c.NewMessageID(),
		Content:     content,
		Timestamp:   c.now().UnixMilli(),
	})
}

// RefreshUI asks the frontend to redraw this instance.
func (c *InstanceContext) RefreshUI() bool {
	return c.sendJSON(protocol.EventUIRefreshed, protocol.UIRefreshed{
		Plugin:   c.metadata.ID,
		Instance: c.envelopeInstanceID(),
	})
}

// RequestDisconnect asks the frontend to disconnect this instance.
func (c *InstanceContext) RequestDisconnect() bool {
	return c.sendJSON(protocol.EventDisconnectRequest, protocol.DisconnectRequest{
		PluginID:   c.metadata.ID,
		InstanceID: c.envelopeInstanceID(),
		Timestamp:  c.now().UnixMilli(),
	})
}

// NewMessageID returns "message_<unix-nanos>".
func (c *InstanceContext) NewMessageID() string {
	return fmt.Sprintf("message_%d", c.now().UnixNano())
}

// History returns the session history handed over by the host. Plugins that
// did not declare require_history get a warning but still see the data.
func (c *InstanceContext) History() ([]protocol.HistoryMessage, bool) {
	if !c.metadata.RequireHistory {
		c.logger.Warn("History requested but plugin does not set require_history")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasHistory {
		return nil, false
	}
	return c.history, true
}

// SetHistory replaces the session history.
func (c *InstanceContext) SetHistory(history []protocol.HistoryMessage) {
	c.mu.Lock()
	c.history = history
	c.hasHistory = true
	c.mu.Unlock()
}

// ClearHistory drops the session history.
func (c *InstanceContext) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.hasHistory = false
	c.mu.Unlock()
}

// DispatchStream wraps data in a stream envelope and sends it on the
// plugin-stream event.
func (c *InstanceContext) DispatchStream(messageType string, data protocol.StreamData) bool {
	return c.sendJSON(protocol.EventPluginStream, protocol.StreamEnvelope{
		Type:       messageType,
		PluginID:   c.metadata.ID,
		InstanceID: c.envelopeInstanceID(),
		Data:       data,
		Timestamp:  c.now().UnixMilli(),
	})
}

// Streamer returns the streamer bound to this instance.
func (c *InstanceContext) Streamer() *stream.Streamer {
	return c.streamer
}

// StartStream opens a stream and returns its id.
func (c *InstanceContext) StartStream() (string, error) {
	return c.streamer.Start()
}

// SendStreamData sends one chunk on streamID.
func (c *InstanceContext) SendStreamData(streamID, chunk string, isFinal bool) error {
	return c.streamer.Data(streamID, chunk, isFinal)
}

// EndStream closes streamID. errMsg is reported to the frontend when success is false.
func (c *InstanceContext) EndStream(streamID string, success bool, errMsg *string) error {
	return c.streamer.End(streamID, success, errMsg)
}

// PauseStream pauses streamID.
func (c *InstanceContext) PauseStream(streamID string) error {
	return c.streamer.Pause(streamID)
}

// ResumeStream resumes streamID.
func (c *InstanceContext) ResumeStream(streamID string) error {
	return c.streamer.Resume(streamID)
}

// CancelStream cancels streamID.
func (c *InstanceContext) CancelStream(streamID string) error {
	return c.streamer.Cancel(streamID)
}

// SendStreamBatch sends chunks on streamID, the last one final.
func (c *InstanceContext) SendStreamBatch(streamID string, chunks []string) error {
	return c.streamer.Batch(streamID, chunks)
}

// StreamStatus returns the status of streamID.
func (c *InstanceContext) StreamStatus(streamID string) (stream.Status, bool) {
	return c.streamer.Status(streamID)
}

// ActiveStreams lists the ids of all live streams.
func (c *InstanceContext) ActiveStreams() []string {
	return c.streamer.ListActive()
}
