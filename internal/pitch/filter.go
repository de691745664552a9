package pitch

import "github.com/tphakala/notematch/internal/music"

// ModeFilter smooths a stream of quantized notes by voting over the most
// recent detections. A note is emitted only once it holds at least
// minVotes of the last window detections, which suppresses single-frame
// octave jumps and transients.
type ModeFilter struct {
	window   int
	minVotes int
	recent   []music.Note
}

// NewModeFilter returns a filter over the last window notes. A window of
// one or less disables smoothing.
func NewModeFilter(window, minVotes int) *ModeFilter {
	if minVotes < 1 {
		minVotes = 1
	}
	if window > 1 && minVotes > window {
		minVotes = window
	}
	return &ModeFilter{window: window, minVotes: minVotes}
}

// Push records n and returns the current mode when it has enough votes.
// Ties go to the most recently pushed note.
func (f *ModeFilter) Push(n music.Note) (music.Note, bool) {
	if f == nil || f.window <= 1 {
		return n, true
	}

	f.recent = append(f.recent, n)
	if len(f.recent) > f.window {
		f.recent = f.recent[len(f.recent)-f.window:]
	}

	counts := make(map[music.Note]int, len(f.recent))
	var mode music.Note
	best := 0
	for _, r := range f.recent {
		counts[r]++
		if counts[r] >= best {
			best = counts[r]
			mode = r
		}
	}
	if best < f.minVotes {
		return music.Note{}, false
	}
	return mode, true
}

// Reset forgets all recorded notes.
func (f *ModeFilter) Reset() {
	if f != nil {
		f.recent = f.recent[:0]
	}
}
