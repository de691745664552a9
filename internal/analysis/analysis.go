// Package analysis wires configuration, audio sources, the comparison
// session and its consumers together for the live and file commands.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tphakala/notematch/internal/alignment"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
	"github.com/tphakala/notematch/internal/pitch"
	"github.com/tphakala/notematch/internal/score"
	"github.com/tphakala/notematch/internal/session"
)

// Output formats accepted by WriteResult.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// GetLogger returns the analysis package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// SessionConfig maps settings onto a session configuration.
func SessionConfig(settings *conf.Settings) (session.Config, error) {
	rng, err := music.ParseRange(settings.Notes.Min, settings.Notes.Max)
	if err != nil {
		return session.Config{}, errors.New(err).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return session.Config{
		FrameSize:        settings.Audio.FrameSize,
		AnalysisInterval: settings.Audio.AnalysisInterval,
		Pitch: pitch.Config{
			SilenceThreshold: settings.Pitch.SilenceThreshold,
			PeakThreshold:    settings.Pitch.PeakThreshold,
			MinFrequency:     settings.Pitch.MinFrequency,
			MaxFrequency:     settings.Pitch.MaxFrequency,
			MinClarity:       settings.Pitch.MinClarity,
		},
		Range:             rng,
		SmoothingWindow:   settings.Pitch.Smoothing.Window,
		SmoothingVotes:    settings.Pitch.Smoothing.Votes,
		DefaultTempo:      settings.Sequencer.DefaultTempo,
		Speed:             settings.Sequencer.Speed,
		SemitoneTolerance: settings.Alignment.SemitoneTolerance,
	}, nil
}

// LoadScore reads the score file at ref, or parses inline notation when
// ref has the "notation:" prefix.
func LoadScore(ref string, tempo float64) (*score.Score, error) {
	if notation, ok := strings.CutPrefix(ref, "notation:"); ok {
		return score.FromNotation(notation, tempo)
	}
	return score.LoadFile(ref)
}

// Outcome is the end state of one comparison.
type Outcome struct {
	RunID    string            `json:"run_id"`
	Title    string            `json:"title,omitempty"`
	State    session.State     `json:"state"`
	Cause    session.Cause     `json:"cause,omitempty"`
	Message  string            `json:"message,omitempty"`
	Result   *alignment.Result `json:"result,omitempty"`
	Duration time.Duration     `json:"duration_ns"`
}

// Err converts a failed or cancelled outcome into an error.
func (o Outcome) Err() error {
	switch o.State {
	case session.StateComplete:
		return nil
	case session.StateFailed:
		category := errors.CategoryDevice
		switch o.Cause {
		case session.CausePermission:
			category = errors.CategoryPermission
		case session.CauseInput:
			category = errors.CategoryValidation
		}
		return errors.Newf("comparison failed (%s): %s", o.Cause, o.Message).
			Component("analysis").
			Category(category).
			Build()
	default:
		return errors.New(context.Canceled).
			Component("analysis").
			Category(errors.CategoryCancellation).
			Build()
	}
}

func outcomeOf(snap session.Snapshot, elapsed time.Duration) Outcome {
	return Outcome{
		RunID:    snap.RunID,
		Title:    snap.Title,
		State:    snap.State,
		Cause:    snap.Cause,
		Message:  snap.Message,
		Result:   snap.Result,
		Duration: elapsed,
	}
}

// WriteResult prints a completed outcome in the given format.
func WriteResult(w io.Writer, o Outcome, format string) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	}

	if o.Result == nil {
		_, err := fmt.Fprintf(w, "No result: session %s\n", o.State)
		return err
	}
	res := o.Result

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tNote\tStatus\n")
	for _, st := range res.Statuses {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", st.Index, st.Note, st.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	title := o.Title
	if title == "" {
		title = "score"
	}
	_, err := fmt.Fprintf(w, "\n%s: %.2f%% similarity (%d of %d notes matched)\n",
		title, res.Similarity, res.Matched, res.Total)
	return err
}
