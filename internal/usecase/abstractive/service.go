// Package abstractive produces free-form answers with a text2text model.
package abstractive

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Default sampling parameters, applied when a request leaves a field unset or zero.
const (
	DefaultMaxNewTokens = 64
	DefaultTemperature  = 0.7
	DefaultTopP         = 0.9
)

// Service builds the prompt and runs the generative pipeline.
type Service struct {
	slot ModelSlot
}

// New creates an abstractive service.
func New(slot ModelSlot) *Service {
	return &Service{slot: slot}
}

// ModelID returns the configured generative model identifier.
func (s *Service) ModelID() string { return s.slot.ModelID() }

// Prompt renders the fixed question/context template.
func Prompt(item domain.QueryItem) string {
	return fmt.Sprintf("Question: %s\nContext: %s\nAnswer:", item.Question, item.Context)
}

// EffectiveParams fills unset or zero fields with defaults.
func EffectiveParams(p domain.GenerationParams) domain.GenerationParams {
	if p.MaxNewTokens == 0 {
		p.MaxNewTokens = DefaultMaxNewTokens
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.TopP == 0 {
		p.TopP = DefaultTopP
	}
	return p
}

// Generate answers the question with sampling and returns the trimmed text
// together with the parameters actually used.
func (s *Service) Generate(
	ctx context.Context, item domain.QueryItem, params domain.GenerationParams,
) (domain.GenerativeAnswer, error) {
	if err := item.Validate(); err != nil {
		return domain.GenerativeAnswer{}, err
	}

	p, err := s.slot.EnsureLoaded(ctx)
	if err != nil {
		return domain.GenerativeAnswer{}, fmt.Errorf("load generative model: %w", err)
	}

	eff := EffectiveParams(params)
	text, err := p.Generate(ctx, Prompt(item), eff)
	if err != nil {
		return domain.GenerativeAnswer{}, fmt.Errorf("generate: %w", err)
	}

	return domain.GenerativeAnswer{Answer: strings.TrimSpace(text), Params: eff}, nil
}
