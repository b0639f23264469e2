// Package stream tracks the lifecycle of plugin-to-host streams and builds the
// stream envelopes a plugin dispatches.
//
// Legal transitions:
//
//	Active -> Paused -> Active
//	Active | Paused -> Finalizing
//	Finalizing -> Completed | Error
//	Active | Paused | Finalizing -> Cancelled
//
// Completed, Error and Cancelled are terminal.
package stream

import "time"

// Status is the lifecycle state of a stream.
type Status int

const (
	StatusActive Status = iota
	StatusPaused
	StatusFinalizing
	StatusCompleted
	StatusError
	StatusCancelled
)

var statusNames = [...]string{
	StatusActive:     "active",
	StatusPaused:     "paused",
	StatusFinalizing: "finalizing",
	StatusCompleted:  "completed",
	StatusError:      "error",
	StatusCancelled:  "cancelled",
}

func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Live reports whether s is Active, Paused or Finalizing.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusPaused || s == StatusFinalizing
}

// Info is the registry record of one stream.
type Info struct {
	ID          string
	PluginID    string
	MessageType string
	Status      Status
	CreatedAt   time.Time
}
