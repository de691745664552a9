// Package events carries comparison session notifications to consumers
// that must not block the session: the MQTT publisher, metrics and the
// result cache.
//
// Events are plain values so consumers can serialize them directly.
package events

import (
	"time"
)

// Kind identifies an event
type Kind string

const (
	KindStateChanged Kind = "state_changed"
	KindNoteStatus   Kind = "note_status"
	KindDetection    Kind = "detection"
	KindResult       Kind = "result"
)

// Event is one session notification. Only the payload matching Kind is set.
type Event struct {
	Kind      Kind      `json:"kind"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	State   string `json:"state,omitempty"`
	Cause   string `json:"cause,omitempty"`
	Message string `json:"message,omitempty"`

	Note      *NoteStatus `json:"note,omitempty"`
	Detection *Detection  `json:"detection,omitempty"`
	Result    *Summary    `json:"result,omitempty"`
}

// NoteStatus reports a settled expected note.
type NoteStatus struct {
	Index  int    `json:"index"`
	Note   string `json:"note"`
	Status string `json:"status"`
}

// Detection reports a detected note.
type Detection struct {
	Note      string  `json:"note"`
	Frequency float64 `json:"frequency"`
	Cents     float64 `json:"cents"`
	Clarity   float64 `json:"clarity"`
	OffsetMs  int64   `json:"offset_ms"`
}

// Summary is the final outcome of a run.
type Summary struct {
	Title      string   `json:"title,omitempty"`
	Similarity float64  `json:"similarity"`
	Matched    int      `json:"matched"`
	Total      int      `json:"total"`
	Unmatched  []string `json:"unmatched"`
}

// Consumer processes events delivered by a Bus
type Consumer interface {
	// Name identifies the consumer in logs
	Name() string

	// ProcessEvent handles a single event
	ProcessEvent(event Event) error
}

// Stats contains runtime statistics for monitoring
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
