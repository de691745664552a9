package analysis

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/notematch/internal/audio"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/scheduler"
	"github.com/tphakala/notematch/internal/session"
)

// RealtimeAnalysis compares the microphone against the score named by
// scoreRef. It runs until the score ends, acquisition fails or ctx is
// cancelled, then prints the outcome to out. The HTTP API, metrics
// endpoint and MQTT publisher run alongside when enabled.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, scoreRef string, out io.Writer, format string) error {
	log := GetLogger()

	sc, err := LoadScore(scoreRef, settings.Sequencer.DefaultTempo)
	if err != nil {
		return err
	}
	cfg, err := SessionConfig(settings)
	if err != nil {
		return err
	}

	svc, err := NewServices(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	loop := scheduler.NewLoop()
	loop.Start()
	defer loop.Close()

	sess := session.New(cfg, loop, session.WithFrameObserver(svc.Metrics.Session))
	svc.Attach(sess)

	src := audio.NewCaptureSource(audio.CaptureConfig{
		Device:      settings.Audio.Source,
		SampleRate:  settings.Audio.SampleRate,
		RingSeconds: settings.Audio.RingSeconds,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	svc.Serve(gctx, g, sess)

	started := time.Now()
	if err := sess.Start(gctx, sc, src); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	var outcome Outcome
	g.Go(func() error {
		select {
		case <-sess.Done():
		case <-gctx.Done():
			log.Info("stopping comparison")
			sess.Cancel()
		}
		outcome = outcomeOf(sess.Snapshot(), time.Since(started))
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("comparison finished",
		logger.String("run_id", outcome.RunID),
		logger.String("state", outcome.State.String()),
		logger.Duration("duration", outcome.Duration))

	if err := outcome.Err(); err != nil {
		return err
	}
	return WriteResult(out, outcome, format)
}
