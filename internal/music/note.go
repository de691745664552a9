// Package music models equal-tempered notes and maps frequencies onto them.
package music

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReferenceFrequency is the tuning of A4 in Hz.
const ReferenceFrequency = 440.0

// referenceSemitone is the semitone index of A4.
const referenceSemitone = 69

// classNames lists the letter classes with sharps, index 0 is C.
var classNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// naturalClasses maps a natural letter to its class index.
var naturalClasses = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Note is a pitch class plus octave. The zero value is C-1.
type Note struct {
	Class  int // 0..11, C through B
	Octave int
}

// NewNote builds a note from a letter step, a chromatic alteration in
// semitones and an octave, the way score formats describe pitches.
// Alterations move across octave boundaries (B#3 is C4).
func NewNote(step string, alter, octave int) (Note, error) {
	if len(step) != 1 {
		return Note{}, fmt.Errorf("invalid note step %q", step)
	}
	class, ok := naturalClasses[strings.ToUpper(step)[0]]
	if !ok {
		return Note{}, fmt.Errorf("invalid note step %q", step)
	}
	return FromSemitone(12*(octave+1) + class + alter), nil
}

// FromSemitone returns the note with the given absolute semitone index.
func FromSemitone(semitone int) Note {
	return Note{Class: mod(semitone, 12), Octave: floorDiv(semitone, 12) - 1}
}

// ParseNote parses names such as "C4", "F#3", "Bb5" or "Cs4".
// Flats are normalised to the enharmonic sharp.
func ParseNote(name string) (Note, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return Note{}, fmt.Errorf("invalid note name %q", name)
	}

	step := s[:1]
	alter, i := 0, 1
	for ; i < len(s); i++ {
		if s[i] == '#' || s[i] == 's' {
			alter++
		} else if s[i] == 'b' {
			alter--
		} else {
			break
		}
	}
	oct, err := strconv.Atoi(s[i:])
	if err != nil {
		return Note{}, fmt.Errorf("invalid octave in note name %q", name)
	}
	n, err := NewNote(step, alter, oct)
	if err != nil {
		return Note{}, fmt.Errorf("invalid note name %q: %w", name, err)
	}
	return n, nil
}

// MustParseNote is like ParseNote but panics on error.
func MustParseNote(name string) Note {
	n, err := ParseNote(name)
	if err != nil {
		panic(err)
	}
	return n
}

// Semitone returns the MIDI-like absolute index 12*(octave+1)+class.
func (n Note) Semitone() int {
	return 12*(n.Octave+1) + n.Class
}

// Frequency returns the equal-tempered frequency in Hz.
func (n Note) Frequency() float64 {
	return ReferenceFrequency * math.Pow(2, float64(n.Semitone()-referenceSemitone)/12)
}

// Name returns the letter class, e.g. "C#".
func (n Note) Name() string {
	return classNames[mod(n.Class, 12)]
}

func (n Note) String() string {
	return n.Name() + strconv.Itoa(n.Octave)
}

// Compare orders notes by semitone index.
func (n Note) Compare(o Note) int {
	switch a, b := n.Semitone(), o.Semitone(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Distance returns the absolute semitone distance between two notes.
func (n Note) Distance(o Note) int {
	d := n.Semitone() - o.Semitone()
	if d < 0 {
		return -d
	}
	return d
}

// MarshalText implements encoding.TextMarshaler.
func (n Note) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Note) UnmarshalText(text []byte) error {
	parsed, err := ParseNote(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
