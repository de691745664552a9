package music

import (
	"fmt"
	"math"
)

// Quantize returns the equal-tempered note nearest to freq, measured in
// semitones from A4. freq must be > 0.
func Quantize(freq float64) Note {
	distance := int(math.Round(12 * math.Log2(freq/ReferenceFrequency)))
	return Note{
		Class:  mod(distance+9, 12),
		Octave: floorDiv(distance+9, 12) + 4,
	}
}

// Cents returns how far freq lies from the frequency of n, in cents.
func Cents(freq float64, n Note) float64 {
	return 1200 * math.Log2(freq/n.Frequency())
}

// Range is an inclusive note range compared by semitone index
type Range struct {
	Min Note
	Max Note
}

// DefaultRange covers C2 to C7.
var DefaultRange = Range{Min: Note{Class: 0, Octave: 2}, Max: Note{Class: 0, Octave: 7}}

// ParseRange builds a range from two note names.
func ParseRange(minName, maxName string) (Range, error) {
	lo, err := ParseNote(minName)
	if err != nil {
		return Range{}, err
	}
	hi, err := ParseNote(maxName)
	if err != nil {
		return Range{}, err
	}
	if lo.Compare(hi) > 0 {
		return Range{}, fmt.Errorf("note range %s..%s is inverted", lo, hi)
	}
	return Range{Min: lo, Max: hi}, nil
}

// Contains reports whether n lies within the range, bounds included.
func (r Range) Contains(n Note) bool {
	s := n.Semitone()
	return s >= r.Min.Semitone() && s <= r.Max.Semitone()
}

func (r Range) String() string {
	return r.Min.String() + ".." + r.Max.String()
}
