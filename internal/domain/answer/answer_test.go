package answer

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		candidate    domain.CandidateAnswer
		threshold    float64
		wantAnswer   string
		wantNoAnswer bool
	}{
		{
			name:       "above threshold",
			candidate:  domain.CandidateAnswer{Text: "Paris", Score: 0.93, Start: 0, End: 5},
			threshold:  0.2,
			wantAnswer: "Paris",
		},
		{
			name:       "exactly at threshold",
			candidate:  domain.CandidateAnswer{Text: "Paris", Score: 0.2, Start: 0, End: 5},
			threshold:  0.2,
			wantAnswer: "Paris",
		},
		{
			name:         "below threshold discards text",
			candidate:    domain.CandidateAnswer{Text: "Lyon", Score: 0.05, Start: 10, End: 14},
			threshold:    0.2,
			wantNoAnswer: true,
		},
		{
			name:         "empty text",
			candidate:    domain.CandidateAnswer{Text: "", Score: 0.99, Start: -1, End: -1},
			threshold:    0.2,
			wantNoAnswer: true,
		},
		{
			name:         "whitespace text above threshold",
			candidate:    domain.CandidateAnswer{Text: "   ", Score: 0.8, Start: 3, End: 6},
			threshold:    0.2,
			wantNoAnswer: true,
		},
		{
			name:       "zero threshold keeps any non-empty text",
			candidate:  domain.CandidateAnswer{Text: "x", Score: 0},
			threshold:  0,
			wantAnswer: "x",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Normalize(tc.candidate, tc.threshold)
			if r.Answer() != tc.wantAnswer {
				t.Errorf("Answer() = %q, want %q", r.Answer(), tc.wantAnswer)
			}
			if r.NoAnswer() != tc.wantNoAnswer {
				t.Errorf("NoAnswer() = %v, want %v", r.NoAnswer(), tc.wantNoAnswer)
			}
			if r.Score() != tc.candidate.Score {
				t.Errorf("Score() = %v, want %v", r.Score(), tc.candidate.Score)
			}
			if r.Start() != tc.candidate.Start || r.End() != tc.candidate.End {
				t.Errorf("offsets = (%d,%d), want (%d,%d)", r.Start(), r.End(), tc.candidate.Start, tc.candidate.End)
			}
		})
	}
}

func TestNormalize_NoAnswerIffRule(t *testing.T) {
	texts := []string{"", " ", "a", "Paris", "\tx\n"}
	scores := []float64{0, 0.1, 0.19999, 0.2, 0.5, 1}
	const threshold = 0.2

	for _, text := range texts {
		for _, score := range scores {
			r := Normalize(domain.CandidateAnswer{Text: text, Score: score}, threshold)
			trimmedEmpty := strings.TrimSpace(text) == ""
			want := trimmedEmpty || score < threshold
			if r.NoAnswer() != want {
				t.Errorf("text=%q score=%v: NoAnswer()=%v, want %v", text, score, r.NoAnswer(), want)
			}
			if r.NoAnswer() && r.Answer() != "" {
				t.Errorf("text=%q score=%v: no-answer record leaked %q", text, score, r.Answer())
			}
		}
	}
}

func TestBest(t *testing.T) {
	candidates := []domain.CandidateAnswer{
		{Text: "first", Score: 0.6, Start: 0, End: 5},
		{Text: "second", Score: 0.6, Start: 6, End: 12},
	}
	r := Best(candidates, 0.2)
	if r.Answer() != "first" {
		t.Errorf("Best() should keep the runtime ranking, got %q", r.Answer())
	}
}

func TestBest_EmptyList(t *testing.T) {
	r := Best(nil, 0.2)
	if !r.NoAnswer() {
		t.Error("expected no-answer for empty candidate list")
	}
	if r.Start() != NoOffset || r.End() != NoOffset {
		t.Errorf("offsets = (%d,%d), want (-1,-1)", r.Start(), r.End())
	}
	if r.Score() != 0 {
		t.Errorf("Score() = %v, want 0", r.Score())
	}
}
