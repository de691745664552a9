package score

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
)

// yamlScore is the hand-written score format:
//
//	title: Arpeggio
//	tempo: 96
//	positions:
//	  - [C4]
//	  - [E4, G4]
//	  - []        # rest
type yamlScore struct {
	Title     string     `yaml:"title"`
	Tempo     float64    `yaml:"tempo"`
	Positions [][]string `yaml:"positions"`
}

// ParseYAML reads the YAML note-list format.
func ParseYAML(r io.Reader) (*Score, error) {
	var doc yamlScore
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.New(fmt.Errorf("decode yaml score: %w", err)).
			Component("score").
			Category(errors.CategoryFileParsing).
			Build()
	}

	log := GetLogger().With(logger.String("format", "yaml"))
	b := NewBuilder().Title(doc.Title).Tempo(doc.Tempo)
	for i, names := range doc.Positions {
		if len(names) == 0 {
			b.Add()
			continue
		}
		notes := make([]music.Note, 0, len(names))
		for _, name := range names {
			n, err := music.ParseNote(name)
			if err != nil {
				log.Warn("dropping malformed note", logger.Int("position", i), logger.Error(err))
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
