package protocol

import (
	"encoding/json"
	"fmt"
)

// StreamData is the data field of a StreamEnvelope.
//
// The encoding is untagged: the variant is recognized by which fields are
// present, never by a discriminator. Implementations are StartData,
// ChunkData, EndData and ControlData.
type StreamData interface {
	StreamID() string
	isStreamData()
}

// StartData opens a stream.
type StartData struct {
	ID          string `json:"stream_id"`
	MessageType string `json:"message_type"`
}

// ChunkData carries one chunk of a stream.
type ChunkData struct {
	ID      string `json:"stream_id"`
	Chunk   string `json:"chunk"`
	IsFinal bool   `json:"is_final"`
}

// EndData closes a stream. Error is null on success.
type EndData struct {
	ID      string  `json:"stream_id"`
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

// ControlData carries pause, resume and cancel requests.
type ControlData struct {
	ID string `json:"stream_id"`
}

func (d StartData) StreamID() string { return d.ID }
func (d ChunkData) StreamID() string { return d.ID }
func (d EndData) StreamID() string { return d.ID }
func (d ControlData) StreamID() string { return d.ID }

func (StartData) isStreamData() {}
func (ChunkData) isStreamData() {}
func (EndData) isStreamData() {}
func (ControlData) isStreamData() {}

// DecodeStreamData recognizes the variant in raw structurally.
// Variants are tried in declaration order and unknown fields are ignored, so
// the first variant whose required fields are all present wins.
func DecodeStreamData(raw []byte) (StreamData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode stream data: %w", err)
	}

	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := fields[k]; !ok {
				return false
			}
		}
		return true
	}

	var (
		data StreamData
		err  error
	)
	switch {
	case has("stream_id", "message_type"):
		var d StartData
		err = json.Unmarshal(raw, &d)
		data = d
	case has("stream_id", "chunk", "is_final"):
		var d ChunkData
		err = json.Unmarshal(raw, &d)
		data = d
	case has("stream_id", "success"):
		var d EndData
		err = json.Unmarshal(raw, &d)
		data = d
	case has("stream_id"):
		var d ControlData
		err = json.Unmarshal(raw, &d)
		data = d
	default:
		return nil, fmt.Errorf("decode stream data: no variant matches fields")
	}
	if err != nil {
		return nil, fmt.Errorf("decode stream data: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes the untagged data field.
func (e *StreamEnvelope) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type       string          `json:"type"`
		PluginID   string          `json:"plugin_id"`
		InstanceID string          `json:"instance_id"`
		Data       json.RawMessage `json:"data"`
		Timestamp  int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	data, err := DecodeStreamData(raw.Data)
	if err != nil {
		return err
	}

	*e = StreamEnvelope{
		Type:       raw.Type,
		PluginID:   raw.PluginID,
		InstanceID: raw.InstanceID,
		Data:       data,
		Timestamp:  raw.Timestamp,
	}
	return nil
}
