package sequencer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/score"
)

func TestInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tempo float64
		speed float64
		want  time.Duration
	}{
		{"120 bpm", 120, 1, 500 * time.Millisecond},
		{"60 bpm", 60, 1, time.Second},
		{"half speed multiplier", 120, 2, time.Second},
		{"missing tempo", 0, 1, 500 * time.Millisecond},
		{"negative tempo", -30, 1, 500 * time.Millisecond},
		{"nan tempo", math.NaN(), 1, 500 * time.Millisecond},
		{"inf tempo", math.Inf(1), 1, 500 * time.Millisecond},
		{"missing speed", 90, 0, 666666666 * time.Nanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, float64(tt.want), float64(Interval(tt.tempo, tt.speed)), float64(time.Microsecond))
		})
	}
}

func notation(t *testing.T, text string) *score.Score {
	t.Helper()
	s, err := score.FromNotation(text, 120)
	require.NoError(t, err)
	return s
}

func windowNames(w []score.ExpectedNote) []string {
	out := make([]string, len(w))
	for i, n := range w {
		out[i] = n.Note.String()
	}
	return out
}

func TestSequencerTicksThroughScore(t *testing.T) {
	t.Parallel()

	sched := scheduler.NewManual()
	var ticks []Tick
	seq := New(score.NewCursor(notation(t, "C4 E4+G4 - A4")), sched, Config{Tempo: 120}, func(tk Tick) {
		ticks = append(ticks, tk)
	})

	require.NoError(t, seq.Start())
	assert.Equal(t, []string{"C4"}, windowNames(seq.Current()))
	assert.ErrorIs(t, seq.Start(), ErrAlreadyStarted)

	sched.Advance(499 * time.Millisecond)
	assert.Empty(t, ticks)

	sched.Advance(time.Millisecond)
	require.Len(t, ticks, 1)
	assert.Equal(t, []string{"C4"}, windowNames(ticks[0].Window))
	assert.False(t, ticks[0].EndReached)

	sched.Advance(5 * time.Second)
	require.Len(t, ticks, 4, "ticking stops at the end")
	assert.Equal(t, []string{"E4", "G4"}, windowNames(ticks[1].Window))
	assert.Empty(t, ticks[2].Window)
	assert.Equal(t, []string{"A4"}, windowNames(ticks[3].Window))
	assert.True(t, ticks[3].EndReached)
	assert.Equal(t, 4, ticks[3].Seq)

	assert.False(t, seq.Running())
	assert.Equal(t, 4, seq.Consumed())
	assert.Equal(t, 0, sched.ActiveTasks())
}

func TestSequencerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	sched := scheduler.NewManual()
	var ticks int
	seq := New(score.NewCursor(notation(t, "C4 D4 E4")), sched, Config{Tempo: 60}, func(Tick) { ticks++ })

	seq.Stop()
	require.NoError(t, seq.Start())
	sched.Advance(time.Second)
	seq.Stop()
	seq.Stop()
	sched.Advance(10 * time.Second)

	assert.Equal(t, 1, ticks)
	assert.Equal(t, 0, sched.ActiveTasks())

	require.NoError(t, seq.Start(), "a stopped sequencer can restart from the top")
	assert.Equal(t, 0, seq.Consumed())
}

// emptyCursor reports no notes although it never reaches the end within
// the first positions, as a misbehaving renderer might.
type emptyCursor struct {
	steps, pos int
}

func (c *emptyCursor) Reset()                        { c.pos = 0 }
func (c *emptyCursor) Advance()                      { c.pos++ }
func (c *emptyCursor) Current() []score.ExpectedNote { return nil }
func (c *emptyCursor) EndReached() bool              { return c.pos >= c.steps }

func TestSequencerToleratesEmptyWindows(t *testing.T) {
	t.Parallel()

	sched := scheduler.NewManual()
	var ticks []Tick
	seq := New(&emptyCursor{steps: 2}, sched, Config{Tempo: 120}, func(tk Tick) { ticks = append(ticks, tk) })
	require.NoError(t, seq.Start())

	sched.Advance(2 * time.Second)
	require.Len(t, ticks, 2)
	assert.Empty(t, ticks[0].Window)
	assert.True(t, ticks[1].EndReached)
}

func TestSequencerEmptyCursorEndsOnFirstTick(t *testing.T) {
	t.Parallel()

	sched := scheduler.NewManual()
	var ticks []Tick
	seq := New(&emptyCursor{}, sched, Config{}, func(tk Tick) { ticks = append(ticks, tk) })
	require.NoError(t, seq.Start())

	sched.Advance(time.Second)
	require.Len(t, ticks, 1)
	assert.True(t, ticks[0].EndReached)
	assert.Empty(t, ticks[0].Window)
}
