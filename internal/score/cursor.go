package score

// Cursor steps through the positions of a score. It is the read-only
// playback capability handed to the sequencer.
type Cursor struct {
	score *Score
	pos   int
}

// NewCursor returns a cursor at the first position of s.
func NewCursor(s *Score) *Cursor {
	return &Cursor{score: s}
}

// Reset moves the cursor back to the first position.
func (c *Cursor) Reset() {
	c.pos = 0
}

// Advance moves to the next position. Advancing past the end is a no-op.
func (c *Cursor) Advance() {
	if c.pos < c.score.Len() {
		c.pos++
	}
}

// Current returns the notes at the cursor, nil for a rest or past the end.
func (c *Cursor) Current() []ExpectedNote {
	if c.pos >= c.score.Len() {
		return nil
	}
	return c.score.Positions[c.pos].Notes
}

// EndReached reports whether the cursor has moved past the last position.
func (c *Cursor) EndReached() bool {
	return c.pos >= c.score.Len()
}

// Position returns the zero-based position index.
func (c *Cursor) Position() int {
	return c.pos
}
