package session

import (
	"github.com/tphakala/notematch/internal/alignment"
)

// State is the lifecycle state of a comparison session
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRunning
	StateFinalizing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy reports whether a run is in progress.
func (s State) Busy() bool {
	return s == StatePreparing || s == StateRunning || s == StateFinalizing
}

// Cause categorizes why a run failed
type Cause string

const (
	CauseNone       Cause = ""
	CausePermission Cause = "permission"
	CauseDevice     Cause = "device"
	CauseInput      Cause = "input"
)

// Snapshot is a consistent view of the session for UI readers.
type Snapshot struct {
	State   State                  `json:"state"`
	RunID   string                 `json:"run_id,omitempty"`
	Title   string                 `json:"title,omitempty"`
	Cause   Cause                  `json:"cause,omitempty"`
	Message string                 `json:"message,omitempty"`
	Notes   []alignment.NoteStatus `json:"notes"`
	Result  *alignment.Result      `json:"result,omitempty"`
}
