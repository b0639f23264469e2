package stream

import (
	"fmt"
	"time"

	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// MessageType is recorded on every stream created by a Streamer.
const MessageType = "plugin_stream"

// Dispatcher delivers one stream envelope to the host and reports success.
type Dispatcher interface {
	DispatchStream(messageType string, data protocol.StreamData) bool
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(messageType string, data protocol.StreamData) bool

// DispatchStream calls f.
func (f DispatcherFunc) DispatchStream(messageType string, data protocol.StreamData) bool {
	return f(messageType, data)
}

// Streamer drives streams for one plugin instance against a shared Registry.
type Streamer struct {
	registry   *Registry
	dispatcher Dispatcher
	pluginID   string
	newID      func() string
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithIDGenerator replaces the time-derived stream id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Streamer) { s.newID = gen }
}

// WithClock replaces time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Streamer) { s.now = now }
}

// NewStreamer binds registry and dispatcher for pluginID.
func NewStreamer(registry *Registry, dispatcher Dispatcher, pluginID string, logger *zap.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		registry:   registry,
		dispatcher: dispatcher,
		pluginID:   pluginID,
		newID:      NewStreamID,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "streamer"), zap.String("plugin_id", pluginID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStreamID returns "stream_<unix-nanos>".
func NewStreamID() string {
	return fmt.Sprintf("stream_%d", time.Now().UnixNano())
}

// Registry returns the registry the streamer records into.
func (s *Streamer) Registry() *Registry {
	return s.registry
}

// Start opens a new stream. The record is created only after the host
// accepted the start envelope; on failure no id is handed out. An id that is
// already registered yields InvalidStreamID.
//
// Dispatch happens without the lock; the insert takes it afterwards.
func (s *Streamer) Start() (string, error) {
	id := s.newID()
	if s.registry.has(id) {
		s.logger.Warn("Stream id already registered", zap.String("stream_id", id))
		return "", newError(KindInvalidStreamID, id, 0)
	}

	data := protocol.StartData{ID: id, MessageType: protocol.StreamTypeStart}
	if !s.dispatcher.DispatchStream(protocol.StreamTypeStart, data) {
		s.logger.Warn("Stream start not delivered", zap.String("stream_id", id))
		return "", newError(KindSendFailed, id, 0)
	}

	if err := s.registry.insert(Info{
		ID:          id,
		PluginID:    s.pluginID,
		MessageType: MessageType,
		Status:      StatusActive,
		CreatedAt:   s.now(),
	}); err != nil {
		return "", err
	}

	s.logger.Debug("Stream started", zap.String("stream_id", id))
	return id, nil
}

// Data sends one chunk. A final chunk moves the stream to Finalizing.
//
// The prior status is not checked: a Paused stream still accepts chunks here,
// pause being advisory for the host UI. Batch, by contrast, refuses Paused
// streams.
//
// Existence is checked under the lock; dispatch runs after it is released and
// the transition re-acquires it.
func (s *Streamer) Data(id, chunk string, isFinal bool) error {
	if _, err := s.registry.lookup(id); err != nil {
		return err
	}

	data := protocol.ChunkData{ID: id, Chunk: chunk, IsFinal: isFinal}
	if !s.dispatcher.DispatchStream(protocol.StreamTypeData, data) {
		s.logger.Debug("Stream chunk not delivered", zap.String("stream_id", id))
		return newError(KindStreamCancelled, id, 0)
	}

	if isFinal {
		s.registry.settle(id, StatusFinalizing)
	}
	return nil
}

// End closes a stream as Completed when success is true, Error otherwise.
//
// Existence is checked under the lock; dispatch runs after it is released.
func (s *Streamer) End(id string, success bool, errMsg *string) error {
	if _, err := s.registry.lookup(id); err != nil {
		return err
	}

	data := protocol.EndData{ID: id, Success: success, Error: errMsg}
	if !s.dispatcher.DispatchStream(protocol.StreamTypeEnd, data) {
		return newError(KindSendFailed, id, 0)
	}

	next := StatusCompleted
	if !success {
		next = StatusError
	}
	s.registry.settle(id, next)
	return nil
}

// Pause moves an Active stream to Paused.
//
// Check and transition are one critical section; the control envelope is
// dispatched after the lock is released and a failed dispatch does not undo
// the transition.
func (s *Streamer) Pause(id string) error {
	return s.control(id, protocol.StreamTypePause, StatusPaused, func(cur Status) *Error {
		if cur != StatusActive {
			return newError(KindInvalidState, id, cur)
		}
		return nil
	})
}

// Resume moves a Paused stream back to Active. Locking as in Pause.
func (s *Streamer) Resume(id string) error {
	return s.control(id, protocol.StreamTypeResume, StatusActive, func(cur Status) *Error {
		if cur != StatusPaused {
			return newError(KindInvalidState, id, cur)
		}
		return nil
	})
}

// Cancel moves a live stream to Cancelled. Locking as in Pause.
func (s *Streamer) Cancel(id string) error {
	return s.control(id, protocol.StreamTypeCancel, StatusCancelled, func(cur Status) *Error {
		if !cur.Live() {
			return newError(KindStreamAlreadyEnded, id, cur)
		}
		return nil
	})
}

func (s *Streamer) control(id, messageType string, next Status, check func(Status) *Error) error {
	prev, err := s.registry.transition(id, check, next)
	if err != nil {
		return err
	}

	if !s.dispatcher.DispatchStream(messageType, protocol.ControlData{ID: id}) {
		s.logger.Warn("Stream control not delivered",
			zap.String("stream_id", id),
			zap.String("type", messageType),
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
		)
		return newError(KindSendFailed, id, next)
	}
	return nil
}

// Batch sends chunks in order, marking the last one final.
//
// The status is validated once, before anything is sent: Paused streams are
// refused and terminal streams report StreamAlreadyEnded. A failed dispatch
// aborts the batch; chunks already delivered stay delivered. A fully
// delivered non-empty batch moves the stream to Finalizing.
func (s *Streamer) Batch(id string, chunks []string) error {
	status, err := s.registry.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case status == StatusPaused:
		return newError(KindInvalidState, id, status)
	case status.Terminal():
		return newError(KindStreamAlreadyEnded, id, status)
	}

	for i, chunk := range chunks {
		data := protocol.ChunkData{ID: id, Chunk: chunk, IsFinal: i == len(chunks)-1}
		if !s.dispatcher.DispatchStream(protocol.StreamTypeData, data) {
			s.logger.Warn("Stream batch interrupted",
				zap.String("stream_id", id),
				zap.Int("delivered", i),
				zap.Int("total", len(chunks)),
			)
			return newError(KindSendFailed, id, status)
		}
	}

	if len(chunks) > 0 {
		s.registry.settle(id, StatusFinalizing)
	}
	return nil
}

// Status returns the status of id.
func (s *Streamer) Status(id string) (Status, bool) {
	return s.registry.Status(id)
}

// ListActive returns the ids of all live streams in the registry.
func (s *Streamer) ListActive() []string {
	return s.registry.ListActive()
}
