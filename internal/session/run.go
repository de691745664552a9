package session

import (
	"context"
	"time"

	"github.com/tphakala/notematch/internal/alignment"
	"github.com/tphakala/notematch/internal/audio"
	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
	"github.com/tphakala/notematch/internal/pitch"
	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/score"
	"github.com/tphakala/notematch/internal/sequencer"
)

// run is the per-run state. Its fields are only touched with the session
// lock held, and callbacks do nothing once active is false.
type run struct {
	id      string
	score   *score.Score
	source  audio.Source
	engine  *alignment.Engine
	seq     *sequencer.Sequencer
	filter  *pitch.ModeFilter
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	active  bool
	started time.Time

	acquired bool

	analysis scheduler.Task
	frame    []float32
	result   *alignment.Result
}

// guard adapts the session scheduler so that every callback of a run
// executes under the session lock and only while the run is active.
type guard struct {
	s *Session
	r *run
}

func (g guard) wrap(fn func()) func() {
	return func() {
		g.s.mu.Lock()
		if !g.r.active {
			g.s.mu.Unlock()
			return
		}
		fn()
		g.s.unlockAndDispatch()
	}
}

func (g guard) Every(interval time.Duration, fn func()) scheduler.Task {
	return g.s.sched.Every(interval, g.wrap(fn))
}

func (g guard) Post(fn func()) {
	g.s.sched.Post(g.wrap(fn))
}

func (g guard) Now() time.Time {
	return g.s.sched.Now()
}

func (s *Session) newRunLocked(ctx context.Context, sc *score.Score, src audio.Source) *run {
	r := &run{
		id:     s.newRunID(),
		score:  sc,
		source: src,
		done:   make(chan struct{}),
		active: true,
		engine: alignment.NewEngine(sc.ExpectedNotes(),
			alignment.WithSemitoneTolerance(s.cfg.SemitoneTolerance)),
		filter: pitch.NewModeFilter(s.cfg.SmoothingWindow, s.cfg.SmoothingVotes),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	tempo := sc.Tempo
	if tempo <= 0 {
		tempo = s.cfg.DefaultTempo
	}
	r.seq = sequencer.New(score.NewCursor(sc), guard{s, r},
		sequencer.Config{Tempo: tempo, Speed: s.cfg.Speed},
		func(tick sequencer.Tick) { s.onTickLocked(r, tick) })
	return r
}

// acquire runs off the scheduler; Acquire may block on a permission prompt.
func (s *Session) acquire(r *run) {
	err := r.source.Acquire(r.ctx)

	s.mu.Lock()
	if !r.active {
		reused := s.run != r && s.run != nil && s.run.source == r.source
		s.mu.Unlock()
		if err == nil && !reused {
			_ = r.source.Release()
		}
		return
	}
	r.acquired = err == nil
	s.mu.Unlock()

	guard{s, r}.Post(func() { s.onAcquiredLocked(r, err) })
}

func (s *Session) onAcquiredLocked(r *run, err error) {
	if err != nil {
		cause := CauseDevice
		switch {
		case errors.Is(err, audio.ErrNotAllowed), errors.IsCategory(err, errors.CategoryPermission):
			cause = CausePermission
		case errors.IsCategory(err, errors.CategoryValidation), errors.IsCategory(err, errors.CategoryFileParsing):
			cause = CauseInput
		}
		s.failLocked(r, cause, err)
		return
	}

	r.started = s.sched.Now()
	r.frame = make([]float32, s.cfg.FrameSize)
	r.engine.Arm()

	g := guard{s, r}
	r.analysis = g.Every(s.cfg.AnalysisInterval, func() { s.analyzeLocked(r) })
	if err := r.seq.Start(); err != nil {
		s.failLocked(r, CauseInput, err)
		return
	}
	s.setStateLocked(StateRunning)

	s.log.Info("comparison running",
		logger.String("run_id", r.id),
		logger.Int("sample_rate", r.source.SampleRate()))
}

// analyzeLocked reads one frame and feeds any confident in-range note to
// the alignment engine.
func (s *Session) analyzeLocked(r *run) {
	n, err := r.source.ReadFrame(r.frame)
	if err != nil {
		s.failLocked(r, CauseDevice, err)
		return
	}
	if n < len(r.frame) {
		return
	}

	began := time.Now()
	res := s.estimator.Estimate(r.frame, r.source.SampleRate())
	if s.observer != nil {
		s.observer.ObserveFrame(time.Since(began), res.Pitched())
	}
	if !res.Pitched() || res.Clarity < s.estimator.Config().MinClarity {
		return
	}

	note := music.Quantize(res.Frequency)
	if !s.cfg.Range.Contains(note) {
		return
	}
	note, ok := r.filter.Push(note)
	if !ok {
		return
	}

	det := alignment.DetectedEvent{
		Note:      note,
		Frequency: res.Frequency,
		Clarity:   res.Clarity,
		Offset:    s.sched.Now().Sub(r.started),
	}
	if r.engine.AddDetection(det) {
		s.emitLocked(events.Event{
			Kind:      events.KindDetection,
			RunID:     r.id,
			Detection: detectionDTO(det),
		})
	}
}

func (s *Session) onTickLocked(r *run, tick sequencer.Tick) {
	for _, u := range r.engine.EvaluateTick(tick) {
		s.emitLocked(events.Event{
			Kind:  events.KindNoteStatus,
			RunID: r.id,
			Note:  noteDTO(u.NoteStatus),
		})
	}
	if tick.EndReached {
		s.finishLocked(r)
	}
}

func (s *Session) finishLocked(r *run) {
	s.setStateLocked(StateFinalizing)
	s.stopRunLocked(r)

	res := r.engine.Finalize()
	r.result = &res
	s.emitLocked(events.Event{
		Kind:   events.KindResult,
		RunID:  r.id,
		Result: summaryDTO(r.score.Title, res),
	})
	s.setStateLocked(StateComplete)

	s.log.Info("comparison complete",
		logger.String("run_id", r.id),
		logger.Float64("similarity", res.Similarity),
		logger.Int("matched", res.Matched),
		logger.Int("total", res.Total))
}

func (s *Session) failLocked(r *run, cause Cause, err error) {
	s.stopRunLocked(r)
	s.cause = cause
	s.message = err.Error()
	s.setStateLocked(StateFailed)

	s.log.Error("comparison failed",
		logger.String("run_id", r.id),
		logger.String("cause", string(cause)),
		logger.Error(err))
}

// stopRunLocked deactivates r, stops both timers, aborts a pending
// acquisition and releases the source if it was acquired. An acquisition
// still in flight releases the source itself when it returns.
func (s *Session) stopRunLocked(r *run) {
	if !r.active {
		return
	}
	r.active = false
	r.cancel()
	if r.analysis != nil {
		r.analysis.Stop()
	}
	r.seq.Stop()
	if r.acquired {
		if err := r.source.Release(); err != nil {
			s.log.Warn("releasing audio source failed",
				logger.String("run_id", r.id),
				logger.Error(err))
		}
	}
	close(r.done)
}
