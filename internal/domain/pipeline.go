package domain

import (
	"context"
	"fmt"
	"strings"
)

// ExtractiveInput is a single question/context pair sent to a span-finding model.
type ExtractiveInput struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// ExtractiveOptions are forwarded verbatim to the extractive model runtime.
type ExtractiveOptions struct {
	TopK                   int
	MaxSeqLen              int
	DocStride              int
	HandleImpossibleAnswer bool
}

// CandidateAnswer is one ranked span proposed by the extractive model.
// Start and End are character offsets into the context, -1 for the no-answer candidate.
type CandidateAnswer struct {
	Text  string  `json:"answer"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// ExtractivePipeline is the handle of a loaded span-finding model.
// Candidates are returned best first.
type ExtractivePipeline interface {
	Answer(ctx context.Context, in ExtractiveInput, opts ExtractiveOptions) ([]CandidateAnswer, error)
}

// BatchExtractivePipeline answers several inputs in a single runtime call.
// The outer slice matches the input order one to one.
type BatchExtractivePipeline interface {
	AnswerBatch(ctx context.Context, in []ExtractiveInput, opts ExtractiveOptions) ([][]CandidateAnswer, error)
}

// GenerationParams are the sampling parameters of a generative call.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

// GenerativePipeline is the handle of a loaded text2text model.
// Implementations always sample (no greedy decoding).
type GenerativePipeline interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// GenerativeAnswer is the trimmed generated text plus the parameters actually used.
type GenerativeAnswer struct {
	Answer string
	Params GenerationParams
}

// QueryItem is one context/question pair of a request.
type QueryItem struct {
	Context  string
	Question string
}

// Validate checks that both fields are present.
func (q QueryItem) Validate() error {
	if q.Context == "" || q.Question == "" {
		return fmt.Errorf("both 'context' and 'question' are required: %w", ErrInvalidInput)
	}
	return nil
}

// Input converts the item to the runtime input shape.
func (q QueryItem) Input() ExtractiveInput {
	return ExtractiveInput{Question: q.Question, Context: q.Context}
}

// BatchFallback answers inputs one by one. Safety net for runtimes without native batching.
func BatchFallback(
	ctx context.Context, p ExtractivePipeline, in []ExtractiveInput, opts ExtractiveOptions,
) ([][]CandidateAnswer, error) {
	out := make([][]CandidateAnswer, len(in))
	for i, item := range in {
		res, err := p.Answer(ctx, item, opts)
		if err != nil {
			return nil, fmt.Errorf("fallback answer [%d]: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

// AnswerBatch uses the native batch call when p supports it, BatchFallback otherwise.
func AnswerBatch(
	ctx context.Context, p ExtractivePipeline, in []ExtractiveInput, opts ExtractiveOptions,
) ([][]CandidateAnswer, error) {
	if bp, ok := p.(BatchExtractivePipeline); ok {
		res, err := bp.AnswerBatch(ctx, in, opts)
		if err != nil {
			return nil, fmt.Errorf("batch answer: %w", err)
		}
		return res, nil
	}
	return BatchFallback(ctx, p, in, opts)
}

// LastLine returns the last non-empty line of a multi-line diagnostic.
func LastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
