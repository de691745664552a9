package score

import (
	"strings"

	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
)

const (
	restToken      = "-"
	chordSeparator = "+"
	barToken       = "|"
)

// FromNotation builds a score from an inline note list such as
// "C4 E4+G4 - A4 | B4". Whitespace separates positions, "+" joins the
// notes of a chord, "-" is a rest and "|" bar lines are ignored.
// Unparseable notes are dropped with a warning; a chord whose notes are
// all invalid is dropped entirely rather than turned into a rest.
func FromNotation(text string, tempo float64) (*Score, error) {
	b := NewBuilder().Tempo(tempo)
	log := GetLogger()

	for i, token := range strings.Fields(text) {
		switch token {
		case barToken:
			continue
		case restToken, "r", "R":
			b.Add()
			continue
		}

		var notes []music.Note
		for name := range strings.SplitSeq(token, chordSeparator) {
			n, err := music.ParseNote(name)
			if err != nil {
				log.Warn("dropping malformed note",
					logger.String("token", token),
					logger.Int("position", i),
					logger.Error(err))
				continue
			}
			notes = append(notes, n)
		}
		if len(notes) > 0 {
			b.Add(notes...)
		}
	}

	s := b.Build()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
