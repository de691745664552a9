// Package sequencer advances a score cursor on a tempo-derived clock.
//
// The sequencer is independent of audio analysis: it only knows the
// cursor and the scheduler. Every tick it reports the window of expected
// notes that was current during the beat that just elapsed, then moves
// the cursor on. Chords expose several notes in one window, rests none.
package sequencer

import (
	"math"
	"time"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/score"
)

// Defaults applied when a score carries no usable tempo or speed.
const (
	DefaultTempo = 120.0
	DefaultSpeed = 1.0
)

// ErrAlreadyStarted is returned by Start on a running sequencer.
var ErrAlreadyStarted = errors.NewStd("sequencer already started")

// Cursor is the read-only playback capability of a score.
type Cursor interface {
	Reset()
	Advance()
	Current() []score.ExpectedNote
	EndReached() bool
}

// Tick is emitted once per beat.
type Tick struct {
	Seq        int                  // 1-based tick number within the run
	Window     []score.ExpectedNote // notes current during the elapsed beat
	EndReached bool                 // the cursor moved past the last position
}

// Config controls the tick rate
type Config struct {
	Tempo float64 // BPM; <= 0 uses DefaultTempo
	Speed float64 // interval multiplier; <= 0 uses DefaultSpeed
}

// Interval returns (60/tempo) seconds scaled by speed, substituting the
// defaults for non-positive or non-finite values.
func Interval(tempo, speed float64) time.Duration {
	if !(tempo > 0) || math.IsInf(tempo, 0) {
		tempo = DefaultTempo
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		speed = DefaultSpeed
	}
	return time.Duration(60 / tempo * speed * float64(time.Second))
}

// GetLogger returns the sequencer package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("sequencer")
}

// Sequencer ticks through a cursor. It is driven entirely from the
// scheduler loop and is not safe for use from other goroutines.
type Sequencer struct {
	cursor   Cursor
	sched    scheduler.Scheduler
	interval time.Duration
	onTick   func(Tick)
	log      logger.Logger

	task     scheduler.Task
	running  bool
	seq      int
	consumed int
}

// New returns a stopped sequencer. onTick is invoked on the scheduler loop.
func New(cursor Cursor, sched scheduler.Scheduler, cfg Config, onTick func(Tick)) *Sequencer {
	return &Sequencer{
		cursor:   cursor,
		sched:    sched,
		interval: Interval(cfg.Tempo, cfg.Speed),
		onTick:   onTick,
		log:      GetLogger(),
	}
}

// Start resets the cursor and begins ticking.
func (s *Sequencer) Start() error {
	if s.running {
		return ErrAlreadyStarted
	}
	s.cursor.Reset()
	s.seq = 0
	s.consumed = 0
	s.running = true
	s.task = s.sched.Every(s.interval, s.tick)
	s.log.Debug("sequencer started", logger.Duration("interval", s.interval))
	return nil
}

// Stop cancels the timer. Safe to call repeatedly or before Start.
func (s *Sequencer) Stop() {
	if !s.running {
		return
	}
	s.running = false
	if s.task != nil {
		s.task.Stop()
		s.task = nil
	}
}

// Running reports whether the sequencer is ticking.
func (s *Sequencer) Running() bool {
	return s.running
}

// Interval returns the tick period.
func (s *Sequencer) Interval() time.Duration {
	return s.interval
}

// Current returns the window currently exposed by the cursor.
func (s *Sequencer) Current() []score.ExpectedNote {
	return s.cursor.Current()
}

// Consumed returns the number of expected notes passed so far.
func (s *Sequencer) Consumed() int {
	return s.consumed
}

func (s *Sequencer) tick() {
	if !s.running {
		return
	}
	s.seq++

	var window []score.ExpectedNote
	if !s.cursor.EndReached() {
		window = s.cursor.Current()
		s.cursor.Advance()
		s.consumed += len(window)
	}
	end := s.cursor.EndReached()

	s.log.Trace("tick",
		logger.Int("seq", s.seq),
		logger.Int("window", len(window)),
		logger.Bool("end", end))

	if end {
		s.Stop()
	}
	if s.onTick != nil {
		s.onTick(Tick{Seq: s.seq, Window: window, EndReached: end})
	}
}
