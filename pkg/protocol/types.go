package protocol

// Wire types for events a plugin dispatches to the host frontend.
// Field names and shapes are fixed: host-side decoders depend on them.

// Event names passed as the first argument of send_to_frontend.
const (
	EventPluginMessage     = "plugin-message"
	EventPluginStream      = "plugin-stream"
	EventUIRefreshed       = "plugin-ui-refreshed"
	EventDisconnectRequest = "plugin-disconnect-request"
)

// Stream envelope types.
const (
	StreamTypeStart  = "stream_start"
	StreamTypeData   = "stream_data"
	StreamTypeEnd    = "stream_end"
	StreamTypePause  = "stream_pause"
	StreamTypeResume = "stream_resume"
	StreamTypeCancel = "stream_cancel"
)

// MessageTypePlugin is the message_type of a PluginMessage.
const MessageTypePlugin = "plugin_message"

// PluginMessage is the payload of EventPluginMessage.
// Timestamp is in Unix milliseconds.
type PluginMessage struct {
	MessageType string `json:"message_type"`
	PluginID    string `json:"plugin_id"`
	InstanceID  string `json:"instance_id"`
	MessageID   string `json:"message_id"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
}

// StreamEnvelope is the payload of EventPluginStream.
// Timestamp is in Unix milliseconds.
type StreamEnvelope struct {
	Type       string     `json:"type"`
	PluginID   string     `json:"plugin_id"`
	InstanceID string     `json:"instance_id"`
	Data       StreamData `json:"data"`
	Timestamp  int64      `json:"timestamp"`
}

// UIRefreshed is the payload of EventUIRefreshed.
type UIRefreshed struct {
	Plugin   string `json:"plugin"`
	Instance string `json:"instance"`
}

// DisconnectRequest is the payload of EventDisconnectRequest.
type DisconnectRequest struct {
	PluginID   string `json:"plugin_id"`
	InstanceID string `json:"instance_id"`
	Timestamp  int64  `json:"timestamp"`
}

// HistoryMessage is one entry of a session history handed to a plugin.
type HistoryMessage struct {
	ID          string `json:"id"`
	MessageType string `json:"type"`   // normal | streaming
	Status      string `json:"status"` // completed | active | paused | error | cancelled
	Content     string `json:"content"`
	PluginID    string `json:"pluginId"`
	Role        string `json:"role"`      // user | plugin | system
	CreatedAt   string `json:"createdAt"` // RFC 3339
}
