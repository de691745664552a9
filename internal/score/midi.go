package score

import (
	"fmt"
	"io"
	"slices"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
)

// percussionChannel is MIDI channel 10, zero-based.
const percussionChannel = 9

// ParseMIDI reads a Standard MIDI File. Note-on events from all tracks
// that share an absolute tick form one position; the percussion channel
// is ignored. Tempo comes from the first tempo change.
func ParseMIDI(r io.Reader) (*Score, error) {
	mf, err := smf.ReadFrom(r)
	if err != nil {
		return nil, errors.New(fmt.Errorf("decode midi: %w", err)).
			Component("score").
			Category(errors.CategoryFileParsing).
			Build()
	}

	onsets := make(map[int64][]music.Note)
	for _, track := range mf.Tracks {
		var absTicks int64
		for _, event := range track {
			absTicks += int64(event.Delta)

			var channel, key, velocity uint8
			if !event.Message.GetNoteOn(&channel, &key, &velocity) {
				continue
			}
			if velocity == 0 || channel == percussionChannel {
				continue
			}
			onsets[absTicks] = append(onsets[absTicks], music.FromSemitone(int(key)))
		}
	}

	ticks := make([]int64, 0, len(onsets))
	for t := range onsets {
		ticks = append(ticks, t)
	}
	slices.Sort(ticks)

	var tempo float64
	if changes := mf.TempoChanges(); len(changes) > 0 {
		tempo = changes[0].BPM
	}

	b := NewBuilder().Tempo(tempo)
	for _, t := range ticks {
		notes := onsets[t]
		slices.SortFunc(notes, music.Note.Compare)
		b.Add(notes...)
	}

	s := b.Build()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	GetLogger().Debug("midi parsed",
		logger.Int("tracks", len(mf.Tracks)),
		logger.Int("positions", s.Len()),
		logger.Float64("tempo", s.Tempo))
	return s, nil
}
