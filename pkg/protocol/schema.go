package protocol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas for every outbound event. Additional properties are allowed so that
// newer modules can add fields without breaking older hosts.
var eventSchemas = map[string]string{
	EventPluginMessage: `{
		"type": "object",
		"required": ["message_type", "plugin_id", "instance_id", "message_id", "content", "timestamp"],
		"properties": {
			"message_type": {"const": "plugin_message"},
			"plugin_id":    {"type": "string"},
			"instance_id":  {"type": "string"},
			"message_id":   {"type": "string"},
			"content":      {"type": "string"},
			"timestamp":    {"type": "integer", "minimum": 0}
		}
	}`,
	EventPluginStream: `{
		"type": "object",
		"required": ["type", "plugin_id", "instance_id", "data", "timestamp"],
		"properties": {
			"type": {"enum": ["stream_start", "stream_data", "stream_end", "stream_pause", "stream_resume", "stream_cancel"]},
			"plugin_id":   {"type": "string"},
			"instance_id": {"type": "string"},
			"timestamp":   {"type": "integer", "minimum": 0},
			"data": {
				"anyOf": [
					{"type": "object", "required": ["stream_id", "message_type"],
					 "properties": {"stream_id": {"type": "string"}, "message_type": {"type": "string"}}},
					{"type": "object", "required": ["stream_id", "chunk", "is_final"],
					 "properties": {"stream_id": {"type": "string"}, "chunk": {"type": "string"}, "is_final": {"type": "boolean"}}},
					{"type": "object", "required": ["stream_id", "success"],
					 "properties": {"stream_id": {"type": "string"}, "success": {"type": "boolean"}, "error": {"type": ["string", "null"]}}},
					{"type": "object", "required": ["stream_id"],
					 "properties": {"stream_id": {"type": "string"}}}
				]
			}
		}
	}`,
	EventUIRefreshed: `{
		"type": "object",
		"required": ["plugin", "instance"],
		"properties": {
			"plugin":   {"type": "string"},
			"instance": {"type": "string"}
		}
	}`,
	EventDisconnectRequest: `{
		"type": "object",
		"required": ["plugin_id", "instance_id", "timestamp"],
		"properties": {
			"plugin_id":   {"type": "string"},
			"instance_id": {"type": "string"},
			"timestamp":   {"type": "integer", "minimum": 0}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

// ValidationError lists the schema violations of an event payload.
type ValidationError struct {
	Event  string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid '%s' payload: %s", e.Event, strings.Join(e.Issues, "; "))
}

// UnknownEventError occurs when an event name has no schema.
type UnknownEventError struct {
	Event string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event '%s'", e.Event)
}

// Validate checks payload against the schema registered for event.
func Validate(event string, payload []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}

	schema, ok := compiled[event]
	if !ok {
		return &UnknownEventError{Event: event}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate '%s' payload: %w", event, err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, re.String())
	}
	return &ValidationError{Event: event, Issues: issues}
}

// KnownEvent reports whether event has a schema.
func KnownEvent(event string) bool {
	_, ok := eventSchemas[event]
	return ok
}

func compileSchemas() {
	compiled = make(map[string]*gojsonschema.Schema, len(eventSchemas))
	for event, src := range eventSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			compileErr = fmt.Errorf("compile schema for '%s': %w", event, err)
			return
		}
		compiled[event] = schema
	}
}
