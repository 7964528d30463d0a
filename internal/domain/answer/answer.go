// Package answer turns raw extractive candidates into thresholded answer records.
package answer

import (
	"strings"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// NoOffset marks offsets that do not point into the context.
const NoOffset = -1

// Record is the normalized outcome of one extractive question.
type Record struct {
	text     string
	score    float64
	start    int
	end      int
	noAnswer bool
}

// Normalize applies the confidence rule to the best candidate.
// The record is a no-answer iff the trimmed text is empty or score < threshold,
// and a no-answer record never carries the raw candidate text.
func Normalize(c domain.CandidateAnswer, threshold float64) Record {
	noAnswer := strings.TrimSpace(c.Text) == "" || c.Score < threshold
	text := c.Text
	if noAnswer {
		text = ""
	}
	return Record{
		text:     text,
		score:    c.Score,
		start:    c.Start,
		end:      c.End,
		noAnswer: noAnswer,
	}
}

// Best normalizes the first ranked candidate. An empty list yields a no-answer record.
func Best(candidates []domain.CandidateAnswer, threshold float64) Record {
	if len(candidates) == 0 {
		return Empty()
	}
	return Normalize(candidates[0], threshold)
}

// Empty returns the no-answer record with zero score and no offsets.
func Empty() Record {
	return Record{start: NoOffset, end: NoOffset, noAnswer: true}
}

// Answer returns the answer text, empty for a no-answer record.
func (r Record) Answer() string { return r.text }

// Score returns the model confidence.
func (r Record) Score() float64 { return r.score }

// Start returns the start offset in the context.
func (r Record) Start() int { return r.start }

// End returns the end offset in the context.
func (r Record) End() int { return r.end }

// NoAnswer reports whether the answer was suppressed.
func (r Record) NoAnswer() bool { return r.noAnswer }
