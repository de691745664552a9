package music

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeKnownFrequencies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		freq float64
		want string
	}{
		{440, "A4"},
		{261.63, "C4"},
		{329.63, "E4"},
		{392.0, "G4"},
		{27.5, "A0"},
		{4186.01, "C8"},
		{466.16, "A#4"},
		{445, "A4"},
		{16.35, "C0"},
		{8.18, "C-1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Quantize(tt.freq).String())
		})
	}
}

func TestQuantizeOctaveDoubling(t *testing.T) {
	t.Parallel()

	// frequencies chosen away from the half-semitone rounding boundary
	for _, f := range []float64{55, 82.41, 110, 196, 261.63, 300, 440, 587.33, 1000} {
		lo := Quantize(f)
		hi := Quantize(2 * f)
		assert.Equal(t, lo.Class, hi.Class, "class for %v Hz", f)
		assert.Equal(t, lo.Octave+1, hi.Octave, "octave for %v Hz", f)
	}
}

func TestCents(t *testing.T) {
	t.Parallel()

	a4 := MustParseNote("A4")
	tests := []struct {
		name string
		freq float64
		note Note
		want float64
	}{
		{"exact", 440, a4, 0},
		{"octave above", 880, a4, 1200},
		{"semitone below", MustParseNote("G#4").Frequency(), a4, -100},
		{"sharp within note", 445, a4, 19.56},
		{"flat within note", 435, a4, -19.79},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Cents(tt.freq, tt.note), 0.01)
		})
	}

	// The nearest note is never more than half a semitone away.
	for _, f := range []float64{55, 82.41, 110, 196, 261.63, 300, 440, 587.33, 1000} {
		c := Cents(f, Quantize(f))
		assert.LessOrEqual(t, math.Abs(c), 50.0, "%v Hz", f)
	}
}

func TestQuantizeRoundTrip(t *testing.T) {
	t.Parallel()

	for s := DefaultRange.Min.Semitone(); s <= DefaultRange.Max.Semitone(); s++ {
		n := FromSemitone(s)
		got := Quantize(n.Frequency())
		require.Equal(t, s, got.Semitone(), "note %s", n)
	}
}

func TestParseNote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		want     string
		semitone int
		wantErr  bool
	}{
		{in: "C4", want: "C4", semitone: 60},
		{in: "A4", want: "A4", semitone: 69},
		{in: "F#3", want: "F#3", semitone: 54},
		{in: "Gb3", want: "F#3", semitone: 54},
		{in: "Cs4", want: "C#4", semitone: 61},
		{in: "Cb4", want: "B3", semitone: 59},
		{in: "B#3", want: "C4", semitone: 60},
		{in: "c-1", want: "C-1", semitone: 0},
		{in: "H4", wantErr: true},
		{in: "C", wantErr: true},
		{in: "C#x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			n, err := ParseNote(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
			assert.Equal(t, tt.semitone, n.Semitone())
		})
	}
}

func TestNoteOrdering(t *testing.T) {
	t.Parallel()

	c4 := MustParseNote("C4")
	b3 := MustParseNote("B3")
	assert.Equal(t, 1, c4.Compare(b3))
	assert.Equal(t, -1, b3.Compare(c4))
	assert.Equal(t, 0, c4.Compare(FromSemitone(60)))
	assert.Equal(t, 1, c4.Distance(b3))
	assert.InDelta(t, 261.63, c4.Frequency(), 0.01)
}

func TestRangeContains(t *testing.T) {
	t.Parallel()

	r, err := ParseRange("C3", "C5")
	require.NoError(t, err)

	assert.True(t, r.Contains(MustParseNote("C3")))
	assert.True(t, r.Contains(MustParseNote("C5")))
	assert.True(t, r.Contains(MustParseNote("G4")))
	assert.False(t, r.Contains(MustParseNote("B2")))
	assert.False(t, r.Contains(MustParseNote("C#5")))

	_, err = ParseRange("C5", "C3")
	assert.Error(t, err)
}

func TestNoteText(t *testing.T) {
	t.Parallel()

	var n Note
	require.NoError(t, n.UnmarshalText([]byte("Eb4")))
	text, err := n.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "D#4", string(text))
	assert.Error(t, n.UnmarshalText([]byte("X9")))
}
