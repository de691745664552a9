package alignment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/notematch/internal/music"
	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/score"
	"github.com/tphakala/notematch/internal/sequencer"
)

func mustScore(t *testing.T, text string) *score.Score {
	t.Helper()
	s, err := score.FromNotation(text, 120)
	require.NoError(t, err)
	return s
}

func detection(name string, at time.Duration) DetectedEvent {
	n := music.MustParseNote(name)
	return DetectedEvent{Note: n, Frequency: n.Frequency(), Clarity: 0.95, Offset: at}
}

func names(notes []score.ExpectedNote) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Note.String())
	}
	return out
}

// play runs a sequencer over s on a virtual clock, feeding detections at
// their offsets, and returns the finalized result.
func play(t *testing.T, s *score.Score, dets []DetectedEvent, opts ...Option) (Result, *Engine) {
	t.Helper()

	sched := scheduler.NewManual()
	engine := NewEngine(s.ExpectedNotes(), opts...)
	engine.Arm()

	done := false
	seq := sequencer.New(score.NewCursor(s), sched, sequencer.Config{Tempo: s.Tempo}, func(tick sequencer.Tick) {
		engine.EvaluateTick(tick)
		if tick.EndReached {
			done = true
		}
	})
	require.NoError(t, seq.Start())

	for _, d := range dets {
		sched.Advance(d.Offset - sched.Elapsed())
		engine.AddDetection(d)
	}
	for i := 0; !done && i < 1000; i++ {
		sched.Advance(10 * time.Millisecond)
	}
	require.True(t, done, "sequencer never reached the end")
	return engine.Finalize(), engine
}

func TestScenarioOneMissedNote(t *testing.T) {
	t.Parallel()

	res, engine := play(t, mustScore(t, "C4 E4 G4"), []DetectedEvent{
		detection("C4", 100*time.Millisecond),
		detection("G4", 1100*time.Millisecond),
	})

	assert.InDelta(t, 66.67, res.Similarity, 0.01)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"E4"}, names(res.Unmatched))
	assert.Equal(t, StateScored, engine.State())
	assert.Equal(t, score.StatusMatched, engine.Status(0))
	assert.Equal(t, score.StatusUnmatched, engine.Status(1))
	assert.Equal(t, score.StatusMatched, engine.Status(2))
}

func TestDetectionIsConsumedByTheBeatItArrivesIn(t *testing.T) {
	t.Parallel()

	// G4 arrives during E4's beat; the buffer is cleared at that tick so
	// the G4 window finds nothing.
	res, _ := play(t, mustScore(t, "C4 E4 G4"), []DetectedEvent{
		detection("C4", 100*time.Millisecond),
		detection("G4", 550*time.Millisecond),
	})

	assert.InDelta(t, 33.33, res.Similarity, 0.01)
	assert.Equal(t, []string{"E4", "G4"}, names(res.Unmatched))
}

func TestChordAnyMatchPerNote(t *testing.T) {
	t.Parallel()

	res, _ := play(t, mustScore(t, "C4+E4+G4 A4"), []DetectedEvent{
		detection("E4", 200*time.Millisecond),
		detection("A4", 700*time.Millisecond),
	})

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, []string{"C4", "G4"}, names(res.Unmatched))
	assert.InDelta(t, 50.0, res.Similarity, 1e-9)
}

func TestSemitoneTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tolerance int
		detected  string
		matched   int
	}{
		{"exact only", 0, "C#4", 0},
		{"one semitone", 1, "C#4", 1},
		{"one semitone below", 1, "B3", 1},
		{"too far", 1, "D4", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, _ := play(t, mustScore(t, "C4"), []DetectedEvent{detection(tt.detected, 100*time.Millisecond)},
				WithSemitoneTolerance(tt.tolerance))
			assert.Equal(t, tt.matched, res.Matched)
		})
	}
}

func TestEmptyScoreScoresZero(t *testing.T) {
	t.Parallel()

	res, _ := play(t, mustScore(t, "- -"), []DetectedEvent{detection("C4", 100*time.Millisecond)})
	assert.Zero(t, res.Similarity)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Unmatched)

	assert.Zero(t, NewEngine(nil).Finalize().Similarity)
}

func TestFinalizeMarksPendingUnmatchedAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := mustScore(t, "C4 D4 E4 F4")
	engine := NewEngine(s.ExpectedNotes())
	engine.Arm()
	engine.AddDetection(detection("C4", 0))
	updates := engine.EvaluateTick(sequencer.Tick{Seq: 1, Window: s.Positions[0].Notes})
	require.Len(t, updates, 1)
	assert.Equal(t, score.StatusMatched, updates[0].Status)
	require.NotNil(t, updates[0].Detection)
	assert.Equal(t, "C4", updates[0].Detection.Note.String())

	first := engine.Finalize()
	assert.Equal(t, first.Total, first.Matched+len(first.Unmatched))
	assert.InDelta(t, 25.0, first.Similarity, 1e-9)
	for _, st := range first.Statuses {
		assert.True(t, st.Status.Final())
	}

	engine.AddDetection(detection("D4", 0))
	assert.Nil(t, engine.EvaluateTick(sequencer.Tick{Seq: 2, Window: s.Positions[1].Notes}))
	assert.Equal(t, first, engine.Finalize())
}

func TestStatusWrittenOnce(t *testing.T) {
	t.Parallel()

	s := mustScore(t, "C4")
	engine := NewEngine(s.ExpectedNotes())
	engine.Arm()

	engine.EvaluateTick(sequencer.Tick{Seq: 1, Window: s.Positions[0].Notes})
	assert.Equal(t, score.StatusUnmatched, engine.Status(0))

	engine.AddDetection(detection("C4", 0))
	updates := engine.EvaluateTick(sequencer.Tick{Seq: 2, Window: s.Positions[0].Notes})
	assert.Empty(t, updates)
	assert.Equal(t, score.StatusUnmatched, engine.Status(0))
}

func TestDetectionsIgnoredOutsideRun(t *testing.T) {
	t.Parallel()

	engine := NewEngine(mustScore(t, "C4").ExpectedNotes())
	assert.False(t, engine.AddDetection(detection("C4", 0)), "idle engine")

	engine.Arm()
	assert.True(t, engine.AddDetection(detection("C4", 0)))
	assert.Equal(t, 1, engine.Buffered())

	engine.Finalize()
	assert.False(t, engine.AddDetection(detection("C4", 0)), "scored engine")

	engine.Reset()
	assert.Equal(t, StateIdle, engine.State())
	assert.Equal(t, score.StatusPending, engine.Status(0))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		matched, total int
		want           float64
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{7, 5, 100},
		{1, 3, 33.333},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Similarity(tt.matched, tt.total), 0.001)
	}
}
