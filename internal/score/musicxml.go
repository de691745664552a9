package score

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/music"
)

type xmlScore struct {
	XMLName       xml.Name  `xml:"score-partwise"`
	WorkTitle     string    `xml:"work>work-title"`
	MovementTitle string    `xml:"movement-title"`
	Parts         []xmlPart `xml:"part"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

type xmlMeasure struct {
	Number   string       `xml:"number,attr"`
	Elements []xmlElement `xml:",any"`
}

// xmlElement captures the measure children that matter for timing and
// pitch: note, backup, forward, attributes, direction and sound.
type xmlElement struct {
	XMLName   xml.Name
	Chord     *struct{} `xml:"chord"`
	Rest      *struct{} `xml:"rest"`
	Grace     *struct{} `xml:"grace"`
	Pitch     *xmlPitch `xml:"pitch"`
	Duration  float64   `xml:"duration"`
	Divisions float64   `xml:"divisions"`
	Tempo     string    `xml:"tempo,attr"`
	Sound     *xmlSound `xml:"sound"`
	PerMinute string    `xml:"direction-type>metronome>per-minute"`
}

type xmlPitch struct {
	Step   string `xml:"step"`
	Alter  string `xml:"alter"`
	Octave string `xml:"octave"`
}

type xmlSound struct {
	Tempo string `xml:"tempo,attr"`
}

// onsetKey quantizes an onset in quarter notes so that floating point
// drift from divisions does not split a chord.
type onsetKey int64

const onsetResolution = 1 << 12

func keyFor(quarters float64) onsetKey {
	return onsetKey(math.Round(quarters * onsetResolution))
}

// ParseMusicXML reads an uncompressed score-partwise MusicXML document.
// Notes from all parts and voices that start together form one position.
// Tempo comes from the first <sound tempo>, falling back to the first
// metronome per-minute mark.
func ParseMusicXML(r io.Reader) (*Score, error) {
	var doc xmlScore
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.New(fmt.Errorf("decode musicxml: %w", err)).
			Component("score").
			Category(errors.CategoryFileParsing).
			Build()
	}

	log := GetLogger().With(logger.String("format", "musicxml"))
	onsets := make(map[onsetKey][]music.Note)
	var soundTempo, metronomeTempo float64

	for _, part := range doc.Parts {
		divisions := 1.0
		var t, last float64

		for _, m := range part.Measures {
			for _, el := range m.Elements {
				switch el.XMLName.Local {
				case "attributes":
					if el.Divisions > 0 {
						divisions = el.Divisions
					}
				case "backup":
					t = math.Max(0, t-el.Duration/divisions)
				case "forward":
					t += el.Duration / divisions
				case "sound":
					if soundTempo == 0 {
						soundTempo = parseTempo(el.Tempo)
					}
				case "direction":
					if soundTempo == 0 && el.Sound != nil {
						soundTempo = parseTempo(el.Sound.Tempo)
					}
					if metronomeTempo == 0 {
						metronomeTempo = parseTempo(el.PerMinute)
					}
				case "note":
					if el.Grace != nil {
						continue
					}
					onset := t
					if el.Chord != nil {
						onset = last
					} else {
						last = t
						t += el.Duration / divisions
					}

					k := keyFor(onset)
					if el.Rest != nil || el.Pitch == nil {
						if _, ok := onsets[k]; !ok {
							onsets[k] = nil
						}
						continue
					}

					n, err := el.Pitch.note()
					if err != nil {
						log.Warn("dropping malformed note",
							logger.String("part", part.ID),
							logger.String("measure", m.Number),
							logger.Error(err))
						continue
					}
					onsets[k] = append(onsets[k], n)
				}
			}
		}
	}

	keys := make([]onsetKey, 0, len(onsets))
	for k := range onsets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	tempo := soundTempo
	if tempo == 0 {
		tempo = metronomeTempo
	}
	title := doc.WorkTitle
	if title == "" {
		title = doc.MovementTitle
	}

	b := NewBuilder().Title(strings.TrimSpace(title)).Tempo(tempo)
	for _, k := range keys {
		notes := onsets[k]
		slices.SortFunc(notes, music.Note.Compare)
		b.Add(notes...)
	}

	s := b.Build()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug("musicxml parsed",
		logger.Int("parts", len(doc.Parts)),
		logger.Int("positions", s.Len()),
		logger.Int("notes", s.NoteCount()),
		logger.Float64("tempo", s.Tempo))
	return s, nil
}

// note validates a MusicXML pitch. Step and octave are required; alter
// may be fractional for microtones and is rounded to the nearest semitone.
func (p *xmlPitch) note() (music.Note, error) {
	step := strings.TrimSpace(p.Step)
	octave, err := strconv.Atoi(strings.TrimSpace(p.Octave))
	if err != nil {
		return music.Note{}, fmt.Errorf("invalid octave %q for step %q", p.Octave, step)
	}
	alter := 0
	if a := strings.TrimSpace(p.Alter); a != "" {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return music.Note{}, fmt.Errorf("invalid alter %q", p.Alter)
		}
		alter = int(math.Round(f))
	}
	return music.NewNote(step, alter, octave)
}

func parseTempo(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseMXL reads a compressed MusicXML archive, using the first MusicXML
// document outside META-INF.
func ParseMXL(r io.ReaderAt, size int64) (*Score, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.New(fmt.Errorf("open mxl archive: %w", err)).
			Component("score").
			Category(errors.CategoryFileParsing).
			Build()
	}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xml", ".musicxml":
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.New(fmt.Errorf("open %s in mxl archive: %w", f.Name, err)).
				Component("score").
				Category(errors.CategoryFileParsing).
				Build()
		}
		s, err := ParseMusicXML(rc)
		_ = rc.Close()
		return s, err
	}
	return nil, errors.Newf("mxl archive contains no musicxml document").
		Component("score").
		Category(errors.CategoryFileParsing).
		Build()
}
