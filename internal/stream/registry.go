package stream

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds every stream created in a process.
//
// The mutex guards map access only and is never held while a message is
// dispatched to the host. Terminal streams are kept: the registry does not
// evict records.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Info
	logger  *zap.Logger
}

// NewRegistry creates an empty stream registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		streams: make(map[string]*Info),
		logger:  logger.With(zap.String("component", "stream-registry")),
	}
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.streams[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Status returns the current status of id.
func (r *Registry) Status(id string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.streams[id]
	if !ok {
		return 0, false
	}
	return info.Status, true
}

// ListActive returns the ids of streams that are Active, Paused or Finalizing, sorted.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.streams))
	for id, info := range r.streams {
		if info.Status.Live() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of records, terminal ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// insert adds a new record. An id that is already registered, terminal or
// not, is refused and the existing record is left untouched.
func (r *Registry) insert(info Info) error {
	r.mu.Lock()
	existing, taken := r.streams[info.ID]
	if !taken {
		r.streams[info.ID] = &info
	}
	r.mu.Unlock()

	if taken {
		r.logger.Warn("Stream id reused", zap.String("stream_id", info.ID))
		return newError(KindInvalidStreamID, info.ID, existing.Status)
	}
	return nil
}

func (r *Registry) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[id]
	return ok
}

// lookup validates existence and returns the current status.
func (r *Registry) lookup(id string) (Status, error) {
	status, ok := r.Status(id)
	if !ok {
		return 0, newError(KindStreamNotFound, id, 0)
	}
	return status, nil
}

// transition atomically checks the current status with check and, when it
// passes, moves the stream to next. Returns the previous status.
func (r *Registry) transition(id string, check func(Status) *Error, next Status) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.streams[id]
	if !ok {
		return 0, newError(KindStreamNotFound, id, 0)
	}
	if err := check(info.Status); err != nil {
		return info.Status, err
	}
	prev := info.Status
	info.Status = next
	return prev, nil
}

// settle moves a stream to next after a dispatch completed outside the lock.
// Streams that reached a terminal state in the meantime are left alone.
func (r *Registry) settle(id string, next Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.streams[id]
	if !ok || info.Status.Terminal() {
		return false
	}
	info.Status = next
	return true
}
