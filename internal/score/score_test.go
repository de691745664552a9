package score

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/music"
)

func names(p Position) []string {
	out := make([]string, len(p.Notes))
	for i, n := range p.Notes {
		out[i] = n.Note.String()
	}
	return out
}

func TestBuilderAssignsContiguousIndices(t *testing.T) {
	t.Parallel()

	s := NewBuilder().
		Add(music.MustParseNote("C4")).
		Add().
		Add(music.MustParseNote("E4"), music.MustParseNote("G4"), music.MustParseNote("E4")).
		Build()

	require.Equal(t, 3, s.Len())
	assert.True(t, s.Positions[1].Rest())
	assert.Equal(t, []string{"E4", "G4"}, names(s.Positions[2]), "duplicates collapse")

	notes := s.ExpectedNotes()
	require.Len(t, notes, 3)
	for i, n := range notes {
		assert.Equal(t, i, n.Index)
	}
	assert.Equal(t, "C4 - E4+G4", s.Notation())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	err := NewBuilder().Build().Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyScore)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	assert.NoError(t, NewBuilder().Add().Build().Validate(), "a rest-only score is valid")
}

func TestCursor(t *testing.T) {
	t.Parallel()

	s, err := FromNotation("C4 E4+G4 -", 0)
	require.NoError(t, err)

	c := NewCursor(s)
	assert.False(t, c.EndReached())
	assert.Equal(t, []string{"C4"}, names(Position{Notes: c.Current()}))

	c.Advance()
	assert.Equal(t, []string{"E4", "G4"}, names(Position{Notes: c.Current()}))

	c.Advance()
	assert.Empty(t, c.Current())
	assert.False(t, c.EndReached())

	c.Advance()
	assert.True(t, c.EndReached())
	assert.Nil(t, c.Current())

	c.Advance()
	assert.Equal(t, 3, c.Position(), "advancing past the end is a no-op")

	c.Reset()
	assert.Equal(t, 0, c.Position())
}

func TestFromNotation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    string
		notes   int
		wantErr bool
	}{
		{name: "melody", text: "C4 E4 G4", want: "C4 E4 G4", notes: 3},
		{name: "chord and rest", text: "C4+E4+G4 - r A4", want: "C4+E4+G4 - - A4", notes: 4},
		{name: "bar lines ignored", text: "C4 | D4 |", want: "C4 D4", notes: 2},
		{name: "malformed dropped", text: "C4 X9 E4+Q2", want: "C4 E4", notes: 2},
		{name: "flats normalised", text: "Bb3 Eb4", want: "A#3 D#4", notes: 2},
		{name: "empty", text: "   ", wantErr: true},
		{name: "only malformed", text: "X1 Y2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := FromNotation(tt.text, 100)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrEmptyScore)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Notation())
			assert.Equal(t, tt.notes, s.NoteCount())
			assert.InDelta(t, 100.0, s.Tempo, 0)
		})
	}
}

const sampleMusicXML = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 3.1 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">
<score-partwise version="3.1">
  <work><work-title>Little Study</work-title></work>
  <part-list><score-part id="P1"><part-name>Piano</part-name></score-part></part-list>
  <part id="P1">
    <measure number="1">
      <attributes><divisions>2</divisions></attributes>
      <direction placement="above">
        <direction-type><metronome><beat-unit>quarter</beat-unit><per-minute>72</per-minute></metronome></direction-type>
        <sound tempo="96"/>
      </direction>
      <note><pitch><step>C</step><octave>4</octave></pitch><duration>2</duration><voice>1</voice></note>
      <note><pitch><step>E</step><octave>4</octave></pitch><duration>2</duration><voice>1</voice></note>
      <note><chord/><pitch><step>G</step><octave>4</octave></pitch><duration>2</duration><voice>1</voice></note>
      <note><rest/><duration>2</duration><voice>1</voice></note>
      <note><pitch><step>F</step><alter>1</alter><octave>4</octave></pitch><duration>2</duration><voice>1</voice></note>
      <backup><duration>8</duration></backup>
      <note><pitch><step>C</step><octave>3</octave></pitch><duration>4</duration><voice>2</voice></note>
      <note><pitch><step>Q</step><octave>3</octave></pitch><duration>4</duration><voice>2</voice></note>
    </measure>
    <measure number="2">
      <note><grace/><pitch><step>A</step><octave>4</octave></pitch><voice>1</voice></note>
      <note><pitch><step>B</step><alter>-1</alter><octave>4</octave></pitch><duration>8</duration><voice>1</voice></note>
    </measure>
  </part>
</score-partwise>`

func TestParseMusicXML(t *testing.T) {
	t.Parallel()

	s, err := ParseMusicXML(strings.NewReader(sampleMusicXML))
	require.NoError(t, err)

	assert.Equal(t, "Little Study", s.Title)
	assert.InDelta(t, 96.0, s.Tempo, 0, "sound tempo wins over metronome")

	// onsets in quarters: 0 {C3,C4}, 1 {E4,G4}, 2 rest (Q3 dropped), 3 {F#4}, 4 {A#4}
	require.Equal(t, 5, s.Len())
	assert.Equal(t, []string{"C3", "C4"}, names(s.Positions[0]))
	assert.Equal(t, []string{"E4", "G4"}, names(s.Positions[1]))
	assert.True(t, s.Positions[2].Rest())
	assert.Equal(t, []string{"F#4"}, names(s.Positions[3]))
	assert.Equal(t, []string{"A#4"}, names(s.Positions[4]))
	assert.Equal(t, 6, s.NoteCount())
}

func TestParseMusicXMLMetronomeFallback(t *testing.T) {
	t.Parallel()

	doc := strings.Replace(sampleMusicXML, `<sound tempo="96"/>`, "", 1)
	s, err := ParseMusicXML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.InDelta(t, 72.0, s.Tempo, 0)
}

func TestParseMusicXMLErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseMusicXML(strings.NewReader("<score-partwise><part"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	_, err = ParseMusicXML(strings.NewReader(`<score-partwise><part id="P1"><measure number="1"/></part></score-partwise>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyScore)
}

func TestParseMXL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("META-INF/container.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<container/>`))
	require.NoError(t, err)
	w, err = zw.Create("study.musicxml")
	require.NoError(t, err)
	_, err = w.Write([]byte(sampleMusicXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	s, err := ParseMXL(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	doc := `
title: Arpeggio
tempo: 90
positions:
  - [C4]
  - [E4, G4]
  - []
  - [Z4]
  - [C5]
`
	s, err := ParseYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Arpeggio", s.Title)
	assert.InDelta(t, 90.0, s.Tempo, 0)
	assert.Equal(t, "C4 E4+G4 - C5", s.Notation())
}

func writeMIDI(t *testing.T) []byte {
	t.Helper()

	var melody smf.Track
	melody.Add(0, smf.MetaTempo(84))
	melody.Add(0, midi.NoteOn(0, 60, 100))
	melody.Add(0, midi.NoteOn(0, 64, 100))
	melody.Add(480, midi.NoteOff(0, 60))
	melody.Add(0, midi.NoteOff(0, 64))
	melody.Add(0, midi.NoteOn(0, 67, 90))
	melody.Add(480, midi.NoteOff(0, 67))
	melody.Close(0)

	var drums smf.Track
	drums.Add(0, midi.NoteOn(percussionChannel, 36, 100))
	drums.Add(480, midi.NoteOff(percussionChannel, 36))
	drums.Close(0)

	var bass smf.Track
	bass.Add(960, midi.NoteOn(1, 48, 80))
	bass.Add(480, midi.NoteOff(1, 48))
	bass.Close(0)

	mf := smf.New()
	require.NoError(t, mf.Add(melody))
	require.NoError(t, mf.Add(drums))
	require.NoError(t, mf.Add(bass))

	var buf bytes.Buffer
	_, err := mf.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseMIDI(t *testing.T) {
	t.Parallel()

	s, err := ParseMIDI(bytes.NewReader(writeMIDI(t)))
	require.NoError(t, err)

	assert.InDelta(t, 84.0, s.Tempo, 0.01)
	assert.Equal(t, "C4+E4 G4 C3", s.Notation())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "study.musicxml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(sampleMusicXML), 0o600))
	midPath := filepath.Join(dir, "untitled.mid")
	require.NoError(t, os.WriteFile(midPath, writeMIDI(t), 0o600))

	s, err := LoadFile(xmlPath)
	require.NoError(t, err)
	assert.Equal(t, "Little Study", s.Title)

	s, err = LoadFile(midPath)
	require.NoError(t, err)
	assert.Equal(t, "untitled", s.Title, "title falls back to the file name")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("C4"), 0o600))
	_, err = LoadFile(txt)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
