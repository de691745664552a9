// Package alignment scores detected notes against the expected notes of a
// score, one sequencer window at a time.
package alignment

import (
	"math"
	"sync"
	"time"

	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
	"github.com/tphakala/notematch/internal/score"
	"github.com/tphakala/notematch/internal/sequencer"
)

// GetLogger returns the alignment package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("alignment")
}

// DetectedEvent is one quantized pitch observation.
type DetectedEvent struct {
	Note      music.Note
	Frequency float64
	Clarity   float64
	Offset    time.Duration // since run start
}

// RunState is the lifecycle of a single scoring run
type RunState int

const (
	StateIdle RunState = iota
	StateArmed
	StateActive
	StateScored
)

func (s RunState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateActive:
		return "active"
	case StateScored:
		return "scored"
	default:
		return "idle"
	}
}

// NoteStatus is the status of one expected note.
type NoteStatus struct {
	Index  int          `json:"index"`
	Note   music.Note   `json:"note"`
	Status score.Status `json:"status"`
}

// NoteUpdate reports a status transition made by EvaluateTick. Detection
// is the event that matched the note, nil for unmatched notes.
type NoteUpdate struct {
	NoteStatus
	Detection *DetectedEvent
}

// Result is the final outcome of a run.
type Result struct {
	Similarity float64              `json:"similarity"` // percent, [0,100]
	Matched    int                  `json:"matched"`
	Total      int                  `json:"total"`
	Unmatched  []score.ExpectedNote `json:"unmatched"`
	Statuses   []NoteStatus         `json:"statuses"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithSemitoneTolerance accepts detections up to n semitones away from the
// expected note. Zero requires an identical note.
func WithSemitoneTolerance(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.tolerance = n
		}
	}
}

// Engine owns the per-run status of every expected note. It is safe for
// concurrent use.
type Engine struct {
	mu        sync.Mutex
	notes     []score.ExpectedNote
	slot      map[int]int // expected index -> position in notes/status
	status    []score.Status
	buffer    []DetectedEvent
	state     RunState
	result    *Result
	tolerance int
	log       logger.Logger
}

// NewEngine returns an idle engine for the given expected notes.
func NewEngine(notes []score.ExpectedNote, opts ...Option) *Engine {
	e := &Engine{
		notes:  append([]score.ExpectedNote(nil), notes...),
		slot:   make(map[int]int, len(notes)),
		status: make([]score.Status, len(notes)),
		log:    GetLogger(),
	}
	for i, n := range e.notes {
		e.slot[n.Index] = i
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Arm prepares a new run: every note returns to pending and the detection
// buffer is emptied.
func (e *Engine) Arm() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.state = StateArmed
}

// Reset returns the engine to idle, discarding statuses and any result.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearLocked()
	e.state = StateIdle
}

func (e *Engine) clearLocked() {
	for i := range e.status {
		e.status[i] = score.StatusPending
	}
	e.buffer = e.buffer[:0]
	e.result = nil
}

// State returns the run state.
func (e *Engine) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddDetection buffers ev for the next tick. Events arriving outside an
// armed or active run are ignored and false is returned.
func (e *Engine) AddDetection(ev DetectedEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateArmed && e.state != StateActive {
		return false
	}
	e.buffer = append(e.buffer, ev)
	return true
}

// Buffered returns the number of detections waiting for the next tick.
func (e *Engine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// EvaluateTick settles every pending note of the tick window against the
// detections buffered since the previous tick, then clears the buffer.
func (e *Engine) EvaluateTick(tick sequencer.Tick) []NoteUpdate {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateArmed:
		e.state = StateActive
	case StateActive:
	default:
		return nil
	}

	var updates []NoteUpdate
	for _, expected := range tick.Window {
		i, ok := e.slot[expected.Index]
		if !ok || e.status[i].Final() {
			continue
		}

		u := NoteUpdate{NoteStatus: NoteStatus{Index: expected.Index, Note: expected.Note}}
		if det := e.matchLocked(expected.Note); det != nil {
			u.Status = score.StatusMatched
			u.Detection = det
		} else {
			u.Status = score.StatusUnmatched
		}
		e.status[i] = u.Status
		updates = append(updates, u)
	}

	e.log.Trace("tick evaluated",
		logger.Int("seq", tick.Seq),
		logger.Int("window", len(tick.Window)),
		logger.Int("detections", len(e.buffer)))
	e.buffer = e.buffer[:0]
	return updates
}

func (e *Engine) matchLocked(n music.Note) *DetectedEvent {
	for i := range e.buffer {
		if e.buffer[i].Note.Distance(n) <= e.tolerance {
			det := e.buffer[i]
			return &det
		}
	}
	return nil
}

// Finalize marks every still-pending note unmatched and computes the
// result. Subsequent calls return the same result.
func (e *Engine) Finalize() Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.result != nil {
		return *e.result
	}

	res := Result{Total: len(e.notes)}
	for i, n := range e.notes {
		if e.status[i] == score.StatusPending {
			e.status[i] = score.StatusUnmatched
		}
		if e.status[i] == score.StatusMatched {
			res.Matched++
		} else {
			res.Unmatched = append(res.Unmatched, n)
		}
	}
	res.Statuses = e.statusesLocked()
	res.Similarity = Similarity(res.Matched, res.Total)

	e.buffer = e.buffer[:0]
	e.state = StateScored
	e.result = &res

	e.log.Debug("run scored",
		logger.Int("matched", res.Matched),
		logger.Int("total", res.Total),
		logger.Float64("similarity", res.Similarity))
	return res
}

// Similarity returns 100*matched/total clamped to [0,100], and 0 for an
// empty score.
func Similarity(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, 100*float64(matched)/float64(total)))
}

// Status returns the status of the expected note with the given index.
func (e *Engine) Status(index int) score.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.slot[index]; ok {
		return e.status[i]
	}
	return score.StatusPending
}

// Statuses returns a snapshot of every note in score order.
func (e *Engine) Statuses() []NoteStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusesLocked()
}

func (e *Engine) statusesLocked() []NoteStatus {
	out := make([]NoteStatus, len(e.notes))
	for i, n := range e.notes {
		out[i] = NoteStatus{Index: n.Index, Note: n.Note, Status: e.status[i]}
	}
	return out
}
