package host

import (
	"sync"
	"time"

	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// Event is one event a plugin instance delivered to the frontend.
type Event struct {
	PluginID   string
	InstanceID string
	Name       string
	Payload    string
	ReceivedAt time.Time
}

// DefaultEventLimit is the number of recent events a Frontend keeps unless
// configured otherwise.
const DefaultEventLimit = 1024

// Router answers call_other_plugin requests.
type Router interface {
	Route(callerInstanceID, pluginID, message string) (string, bool)
}

// Frontend is the host-side event sink behind every instance's callback
// table. Payloads are checked against the protocol schema before they are
// accepted. Only the most recent accepted events are kept.
type Frontend struct {
	app     map[string]string
	router  Router
	forward func(Event)
	logger  *zap.Logger

	mu       sync.Mutex
	events   []Event // oldest first; compacted to limit once it doubles
	limit    int     // 0 disables recording
	rejected int
}

// NewFrontend creates a frontend serving app as the application config.
func NewFrontend(app map[string]string, logger *zap.Logger) *Frontend {
	cfg := make(map[string]string, len(app))
	for k, v := range app {
		cfg[k] = v
	}
	return &Frontend{
		app:    cfg,
		limit:  DefaultEventLimit,
		logger: logger.With(zap.String("component", "frontend")),
	}
}

// SetEventLimit sets how many recent events are kept. Zero selects
// DefaultEventLimit; a negative limit turns recording off, leaving only the
// forward func.
func (f *Frontend) SetEventLimit(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case n == 0:
		n = DefaultEventLimit
	case n < 0:
		n = 0
	}
	f.limit = n
	f.events = trimEvents(f.events, n)
}

// trimEvents drops the oldest events beyond limit, copying so the dropped
// ones can be collected.
func trimEvents(events []Event, limit int) []Event {
	if len(events) <= limit {
		return events
	}
	if limit == 0 {
		return nil
	}
	kept := make([]Event, limit, 2*limit)
	copy(kept, events[len(events)-limit:])
	return kept
}

// recent returns the last limit events. Callers hold mu.
func (f *Frontend) recent() []Event {
	if len(f.events) > f.limit {
		return f.events[len(f.events)-f.limit:]
	}
	return f.events
}

// SetForward registers fn to receive every accepted event after it is
// recorded.
func (f *Frontend) SetForward(fn func(Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forward = fn
}

func (f *Frontend) setRouter(r Router) {
	f.router = r
}

// Events returns the recorded events in delivery order.
func (f *Frontend) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.recent()...)
}

// EventsFor returns the accepted events of one instance.
func (f *Frontend) EventsFor(instanceID string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.recent() {
		if ev.InstanceID == instanceID {
			out = append(out, ev)
		}
	}
	return out
}

// Rejected returns how many events failed validation.
func (f *Frontend) Rejected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejected
}

func (f *Frontend) deliver(ev Event) bool {
	if err := protocol.Validate(ev.Name, []byte(ev.Payload)); err != nil {
		f.logger.Warn("Rejected frontend event",
			zap.String("plugin_id", ev.PluginID),
			zap.String("instance_id", ev.InstanceID),
			zap.String("event", ev.Name),
			zap.Error(err),
		)
		f.mu.Lock()
		f.rejected++
		f.mu.Unlock()
		return false
	}

	ev.ReceivedAt = time.Now()
	f.mu.Lock()
	if f.limit > 0 {
		f.events = append(f.events, ev)
		if len(f.events) >= 2*f.limit {
			f.events = trimEvents(f.events, f.limit)
		}
	}
	forward := f.forward
	f.mu.Unlock()

	if forward != nil {
		forward(ev)
	}
	return true
}

// source is the callbacks.Host of one instance.
type source struct {
	frontend   *Frontend
	pluginID   string
	instanceID string
}

func (s *source) SendToFrontend(event, payload string) bool {
	return s.frontend.deliver(Event{
		PluginID:   s.pluginID,
		InstanceID: s.instanceID,
		Name:       event,
		Payload:    payload,
	})
}

func (s *source) GetAppConfig(key string) (string, bool) {
	value, ok := s.frontend.app[key]
	return value, ok
}

func (s *source) CallOtherPlugin(pluginID, message string) (string, bool) {
	if s.frontend.router == nil {
		return "", false
	}
	return s.frontend.router.Route(s.instanceID, pluginID, message)
}
