// Package score holds the expected-note model of a piece and its ingestion
// from score files.
//
// A Score is an ordered list of positions. Each position is the chord
// window sounding at one point of the score: a single note, several
// simultaneous notes, or none for a rest. Flattening the positions yields
// the ExpectedNote sequence whose indices are contiguous from zero.
package score

import (
	"strings"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
)

// ErrEmptyScore is returned when a score has no positions at all.
var ErrEmptyScore = errors.NewStd("score has no positions")

// GetLogger returns the score package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("score")
}

// Status is the match state of an expected note during a run
type Status int

const (
	StatusPending Status = iota
	StatusMatched
	StatusUnmatched
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusUnmatched:
		return "unmatched"
	default:
		return "pending"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StatusPending
	case "matched":
		*s = StatusMatched
	case "unmatched":
		*s = StatusUnmatched
	default:
		return errors.Newf("unknown note status %q", text).
			Component("score").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Final reports whether the status is terminal.
func (s Status) Final() bool {
	return s == StatusMatched || s == StatusUnmatched
}

// ExpectedNote is a note at a fixed index of the score
type ExpectedNote struct {
	Index int        `json:"index"`
	Note  music.Note `json:"note"`
}

func (e ExpectedNote) String() string {
	return e.Note.String()
}

// Position is the chord window at one score position
type Position struct {
	Notes []ExpectedNote
}

// Rest reports whether no note sounds at this position.
func (p Position) Rest() bool {
	return len(p.Notes) == 0
}

// Score is an ordered sequence of positions with an optional tempo
type Score struct {
	Title     string
	Tempo     float64 // BPM, 0 when the source did not specify one
	Positions []Position
}

// ExpectedNotes returns every expected note in score order.
func (s *Score) ExpectedNotes() []ExpectedNote {
	if s == nil {
		return nil
	}
	notes := make([]ExpectedNote, 0, s.NoteCount())
	for _, p := range s.Positions {
		notes = append(notes, p.Notes...)
	}
	return notes
}

// NoteCount returns the number of expected notes.
func (s *Score) NoteCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, p := range s.Positions {
		n += len(p.Notes)
	}
	return n
}

// Len returns the number of positions.
func (s *Score) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Positions)
}

// Validate checks that the score can drive a comparison run.
func (s *Score) Validate() error {
	if s.Len() == 0 {
		return errors.New(ErrEmptyScore).
			Component("score").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Tempo < 0 {
		return errors.Newf("score tempo %v is negative", s.Tempo).
			Component("score").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Notation renders the score in the inline notation read by FromNotation.
func (s *Score) Notation() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		if p.Rest() {
			parts = append(parts, restToken)
			continue
		}
		names := make([]string, len(p.Notes))
		for i, n := range p.Notes {
			names[i] = n.Note.String()
		}
		parts = append(parts, strings.Join(names, chordSeparator))
	}
	return strings.Join(parts, " ")
}

// Builder assembles a Score, assigning contiguous note indices
type Builder struct {
	score Score
	next  int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Title sets the score title.
func (b *Builder) Title(title string) *Builder {
	b.score.Title = title
	return b
}

// Tempo sets the tempo in BPM.
func (b *Builder) Tempo(bpm float64) *Builder {
	b.score.Tempo = bpm
	return b
}

// Add appends one position. No notes appends a rest. Duplicate notes
// within the position are collapsed.
func (b *Builder) Add(notes ...music.Note) *Builder {
	pos := Position{}
	seen := make(map[music.Note]bool, len(notes))
	for _, n := range notes {
		if seen[n] {
			continue
		}
		seen[n] = true
		pos.Notes = append(pos.Notes, ExpectedNote{Index: b.next, Note: n})
		b.next++
	}
	b.score.Positions = append(b.score.Positions, pos)
	return b
}

// Build returns the assembled score. The builder must not be reused.
func (b *Builder) Build() *Score {
	s := b.score
	return &s
}
