package analysis

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/notematch/internal/audio"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/session"
)

// acquirePoll is how often FileAnalysis checks for the decoded recording.
const acquirePoll = time.Millisecond

// FileAnalysis compares a recorded WAV or FLAC file against the score.
// The session runs on a virtual clock, so the comparison takes as long as
// the analysis itself rather than the length of the score.
func FileAnalysis(ctx context.Context, settings *conf.Settings, scoreRef, recording string, out io.Writer, format string) error {
	outcome, err := CompareFile(ctx, settings, scoreRef, recording)
	if err != nil {
		return err
	}
	if err := outcome.Err(); err != nil {
		return err
	}
	return WriteResult(out, outcome, format)
}

// CompareFile runs one comparison of recording against the score and
// returns its outcome. Session events still reach the MQTT publisher when
// it is enabled.
func CompareFile(ctx context.Context, settings *conf.Settings, scoreRef, recording string) (Outcome, error) {
	log := GetLogger()

	sc, err := LoadScore(scoreRef, settings.Sequencer.DefaultTempo)
	if err != nil {
		return Outcome{}, err
	}
	cfg, err := SessionConfig(settings)
	if err != nil {
		return Outcome{}, err
	}

	svc, err := NewServices(ctx, settings)
	if err != nil {
		return Outcome{}, err
	}
	defer svc.Close()

	sched := scheduler.NewManual()
	sess := session.New(cfg, sched, session.WithFrameObserver(svc.Metrics.Session))
	svc.Attach(sess)

	src := audio.NewFileSource(recording, cfg.AnalysisInterval)

	started := time.Now()
	if err := sess.Start(ctx, sc, src); err != nil {
		return Outcome{}, err
	}

	drive(ctx, sess, sched, cfg.AnalysisInterval)

	outcome := outcomeOf(sess.Snapshot(), time.Since(started))
	log.Info("file comparison finished",
		logger.String("recording", recording),
		logger.String("state", outcome.State.String()),
		logger.Duration("virtual_time", sched.Elapsed()),
		logger.Duration("duration", outcome.Duration))
	return outcome, nil
}

// drive steps the virtual clock until the run ends. Decoding happens on
// the acquisition goroutine, so the preparing phase is polled in real
// time before the clock starts moving.
func drive(ctx context.Context, sess *session.Session, sched *scheduler.Manual, interval time.Duration) {
	done := sess.Done()

	ticker := time.NewTicker(acquirePoll)
	defer ticker.Stop()
	for sess.State() == session.StatePreparing {
		select {
		case <-ctx.Done():
			sess.Cancel()
			return
		case <-ticker.C:
			sched.RunPending()
		}
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			sess.Cancel()
			return
		default:
			sched.Advance(interval)
		}
	}
}
