package stream

import "fmt"

// Kind classifies a stream failure.
type Kind int

const (
	// KindSendFailed: the host callback reported failure or was unreachable.
	KindSendFailed Kind = iota + 1
	// KindInvalidStreamID: the id cannot be used, e.g. Start produced an id already registered.
	KindInvalidStreamID
	// KindStreamNotFound: no stream with this id is registered.
	KindStreamNotFound
	// KindStreamAlreadyEnded: the stream is in a terminal state.
	KindStreamAlreadyEnded
	// KindInvalidState: the operation is illegal for the current live state.
	KindInvalidState
	// KindStreamCancelled: a chunk could not be delivered to a stream presumed live.
	KindStreamCancelled
)

var kindMessages = map[Kind]string{
	KindSendFailed:         "failed to send message to frontend",
	KindInvalidStreamID:    "invalid stream id",
	KindStreamNotFound:     "stream not found",
	KindStreamAlreadyEnded: "stream already ended",
	KindInvalidState:       "invalid stream state",
	KindStreamCancelled:    "stream was cancelled",
}

// Error is a stream operation failure.
// Match it against the sentinels with errors.Is.
type Error struct {
	Kind     Kind
	StreamID string
	Status   Status
}

func (e *Error) Error() string {
	msg := kindMessages[e.Kind]
	switch {
	case e.StreamID == "":
		return msg
	case e.Kind == KindInvalidState || e.Kind == KindStreamAlreadyEnded:
		return fmt.Sprintf("%s (stream: %s, status: %s)", msg, e.StreamID, e.Status)
	default:
		return fmt.Sprintf("%s (stream: %s)", msg, e.StreamID)
	}
}

// Is matches errors of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSendFailed         = &Error{Kind: KindSendFailed}
	ErrInvalidStreamID    = &Error{Kind: KindInvalidStreamID}
	ErrStreamNotFound     = &Error{Kind: KindStreamNotFound}
	ErrStreamAlreadyEnded = &Error{Kind: KindStreamAlreadyEnded}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrStreamCancelled    = &Error{Kind: KindStreamCancelled}
)

func newError(kind Kind, id string, status Status) *Error {
	return &Error{Kind: kind, StreamID: id, Status: status}
}
