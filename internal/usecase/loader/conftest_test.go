package loader

import (
	"context"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

type mockExtractive struct {
	answerFn func(ctx context.Context, in domain.ExtractiveInput, opts domain.ExtractiveOptions) ([]domain.CandidateAnswer, error)
}

func (m *mockExtractive) Answer(
	ctx context.Context, in domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([]domain.CandidateAnswer, error) {
	if m.answerFn != nil {
		return m.answerFn(ctx, in, opts)
	}
	return []domain.CandidateAnswer{{Text: "pong", Score: 0.9, Start: 0, End: 4}}, nil
}

type mockGenerative struct {
	generateFn func(ctx context.Context, prompt string, params domain.GenerationParams) (string, error)
}

func (m *mockGenerative) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, params)
	}
	return "pong", nil
}
