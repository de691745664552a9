package session

import (
	"github.com/tphakala/notematch/internal/alignment"
	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/music"
)

func noteDTO(n alignment.NoteStatus) *events.NoteStatus {
	return &events.NoteStatus{
		Index:  n.Index,
		Note:   n.Note.String(),
		Status: n.Status.String(),
	}
}

func detectionDTO(d alignment.DetectedEvent) *events.Detection {
	return &events.Detection{
		Note:      d.Note.String(),
		Frequency: d.Frequency,
		Cents:     music.Cents(d.Frequency, d.Note),
		Clarity:   d.Clarity,
		OffsetMs:  d.Offset.Milliseconds(),
	}
}

func summaryDTO(title string, res alignment.Result) *events.Summary {
	unmatched := make([]string, len(res.Unmatched))
	for i, n := range res.Unmatched {
		unmatched[i] = n.Note.String()
	}
	return &events.Summary{
		Title:      title,
		Similarity: res.Similarity,
		Matched:    res.Matched,
		Total:      res.Total,
		Unmatched:  unmatched,
	}
}
