package score

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

// LoadFile reads a score, choosing the parser by file extension.
func LoadFile(path string) (*Score, error) {
	f, err := os.Open(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(fmt.Errorf("open score: %w", err)).
			Component("score").
			Category(category).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	var s *Score
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".musicxml", ".xml":
		s, err = ParseMusicXML(f)
	case ".mxl":
		info, statErr := f.Stat()
		if statErr != nil {
			return nil, errors.New(statErr).Component("score").Category(errors.CategoryFileIO).Build()
		}
		s, err = ParseMXL(f, info.Size())
	case ".mid", ".midi":
		s, err = ParseMIDI(f)
	case ".yaml", ".yml":
		s, err = ParseYAML(f)
	default:
		return nil, errors.Newf("unsupported score format %q", ext).
			Component("score").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if s.Title == "" {
		s.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	GetLogger().Info("score loaded",
		logger.String("title", s.Title),
		logger.Int("positions", s.Len()),
		logger.Int("notes", s.NoteCount()),
		logger.Float64("tempo", s.Tempo))
	return s, nil
}
