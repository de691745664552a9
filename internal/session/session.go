// Package session orchestrates a comparison run: it acquires the audio
// source, drives pitch analysis and the score sequencer on one scheduler,
// feeds both into the alignment engine and publishes progress.
//
// Every scheduled callback belongs to a run and is wrapped by a guard
// that takes the session lock and checks the run is still active, so no
// callback can change state after Cancel or after the run has ended.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

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

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New(errors.NewStd("comparison already running")).
	Component("session").
	Category(errors.CategoryConflict).
	Build()

// Defaults for Config.
const (
	DefaultFrameSize        = 2048
	DefaultAnalysisInterval = 50 * time.Millisecond
)

// Config tunes a session
type Config struct {
	FrameSize         int           // samples per analysis frame
	AnalysisInterval  time.Duration // period of the analysis task
	Pitch             pitch.Config
	Range             music.Range
	SmoothingWindow   int // mode filter window, <= 1 disables
	SmoothingVotes    int
	DefaultTempo      float64 // BPM used when the score has none
	Speed             float64 // sequencer interval multiplier
	SemitoneTolerance int
}

// DefaultConfig returns the live comparison defaults.
func DefaultConfig() Config {
	return Config{
		FrameSize:        DefaultFrameSize,
		AnalysisInterval: DefaultAnalysisInterval,
		Pitch:            pitch.DefaultConfig(),
		Range:            music.DefaultRange,
		DefaultTempo:     sequencer.DefaultTempo,
		Speed:            sequencer.DefaultSpeed,
	}
}

// FrameObserver is notified after each analyzed frame.
type FrameObserver interface {
	ObserveFrame(elapsed time.Duration, pitched bool)
}

// Option configures a Session.
type Option func(*Session)

// WithFrameObserver reports analysis timings to o.
func WithFrameObserver(o FrameObserver) Option {
	return func(s *Session) { s.observer = o }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(s *Session) { s.newRunID = next }
}

// WithLogger replaces the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// GetLogger returns the session package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("session")
}

type subscriber struct {
	id int
	fn func(events.Event)
}

// Session runs at most one comparison at a time. All methods are safe for
// concurrent use.
type Session struct {
	cfg       Config
	sched     scheduler.Scheduler
	estimator *pitch.Estimator
	observer  FrameObserver
	newRunID  func() string
	log       logger.Logger

	mu      sync.Mutex
	state   State
	cause   Cause
	message string
	run     *run
	pending []events.Event
	subs    []subscriber
	nextSub int
}

// New returns an idle session whose callbacks run on sched.
func New(cfg Config, sched scheduler.Scheduler, opts ...Option) *Session {
	def := DefaultConfig()
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = def.AnalysisInterval
	}
	if cfg.Range == (music.Range{}) {
		cfg.Range = def.Range
	}
	if cfg.DefaultTempo <= 0 {
		cfg.DefaultTempo = def.DefaultTempo
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}

	s := &Session{
		cfg:       cfg,
		sched:     sched,
		estimator: pitch.NewEstimator(cfg.Pitch),
		newRunID:  uuid.NewString,
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Start begins a run of sc against src. Validation failures leave the
// session untouched. Device acquisition continues asynchronously; its
// outcome is reported through state changes.
func (s *Session) Start(ctx context.Context, sc *score.Score, src audio.Source) error {
	s.mu.Lock()

	if s.state.Busy() {
		s.mu.Unlock()
		s.log.Debug("start ignored, run in progress", logger.String("state", s.state.String()))
		return ErrAlreadyRunning
	}
	if err := validateInput(sc, src); err != nil {
		s.mu.Unlock()
		return err
	}

	r := s.newRunLocked(ctx, sc, src)
	s.run = r
	s.cause = CauseNone
	s.message = ""
	s.setStateLocked(StatePreparing)

	s.log.Info("comparison starting",
		logger.String("run_id", r.id),
		logger.String("title", sc.Title),
		logger.Int("positions", sc.Len()),
		logger.Int("notes", sc.NoteCount()),
		logger.Duration("tick_interval", r.seq.Interval()))

	s.unlockAndDispatch()

	go s.acquire(r)
	return nil
}

func validateInput(sc *score.Score, src audio.Source) error {
	if sc == nil {
		return errors.New(score.ErrEmptyScore).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := sc.Validate(); err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	if src == nil {
		return errors.Newf("no audio source").
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Cancel stops the current run, releases the audio source and returns to
// Idle. Partial results are discarded and no completion is published.
// It is safe to call from any state and any goroutine, but not from a
// subscriber.
func (s *Session) Cancel() {
	s.mu.Lock()

	if r := s.run; r != nil && r.active {
		s.stopRunLocked(r)
		r.engine.Reset()
		s.log.Info("comparison cancelled", logger.String("run_id", r.id))
	}
	s.cause = CauseNone
	s.message = ""
	s.setStateLocked(StateIdle)

	s.unlockAndDispatch()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the final result once the session is Complete.
func (s *Session) Result() (alignment.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateComplete || s.run == nil || s.run.result == nil {
		return alignment.Result{}, false
	}
	return *s.run.result, true
}

// Snapshot returns the state, failure cause, live note statuses and, when
// complete, the result.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, Cause: s.cause, Message: s.message}
	if r := s.run; r != nil && s.state != StateIdle {
		snap.RunID = r.id
		snap.Title = r.score.Title
		snap.Notes = r.engine.Statuses()
		if s.state == StateComplete && r.result != nil {
			res := *r.result
			snap.Result = &res
		}
	}
	return snap
}

// Done returns a channel closed when the current run ends by completion,
// failure or cancellation. Without a run the channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.run.done
}

// Subscribe registers fn for every event and returns a function that
// removes it. Events produced on the scheduler are delivered in order,
// outside the session lock.
func (s *Session) Subscribe(fn func(events.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	prev := s.state
	s.state = state

	ev := events.Event{
		Kind:    events.KindStateChanged,
		State:   state.String(),
		Cause:   string(s.cause),
		Message: s.message,
	}
	if s.run != nil {
		ev.RunID = s.run.id
	}
	s.emitLocked(ev)

	s.log.Debug("state changed",
		logger.String("from", prev.String()),
		logger.String("to", state.String()))
}

func (s *Session) emitLocked(ev events.Event) {
	ev.Timestamp = s.sched.Now()
	s.pending = append(s.pending, ev)
}

// unlockAndDispatch releases the session lock and delivers the events
// emitted while it was held.
func (s *Session) unlockAndDispatch() {
	evs := s.pending
	s.pending = nil
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, ev := range evs {
		for _, sub := range subs {
			s.deliver(sub, ev)
		}
	}
}

func (s *Session) deliver(sub subscriber, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked",
				logger.String("kind", string(ev.Kind)),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(ev)
}
