// Package extractive answers questions by span extraction with confidence gating.
package extractive

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/qaserve/internal/domain"
	"github.com/kailas-cloud/qaserve/internal/domain/answer"
	"github.com/kailas-cloud/qaserve/internal/metrics"
)

// Settings are the static knobs of the extractive path.
type Settings struct {
	Task            string
	AnswerThreshold float64
	ReturnNBest     int
	MaxSeqLen       int
	DocStride       int
	// MaxBatchSize caps AnswerMany input; 0 means unlimited.
	MaxBatchSize int
}

// Service orchestrates lazy loading, inference and normalization.
type Service struct {
	slot     ModelSlot
	settings Settings
}

// New creates an extractive service.
func New(slot ModelSlot, settings Settings) *Service {
	return &Service{slot: slot, settings: settings}
}

// Task returns the configured task name.
func (s *Service) Task() string { return s.settings.Task }

// ModelID returns the configured extractive model identifier.
func (s *Service) ModelID() string { return s.slot.ModelID() }

// Options returns the runtime options sent with every call.
func (s *Service) Options() domain.ExtractiveOptions {
	return domain.ExtractiveOptions{
		TopK:                   s.settings.ReturnNBest,
		MaxSeqLen:              s.settings.MaxSeqLen,
		DocStride:              s.settings.DocStride,
		HandleImpossibleAnswer: true,
	}
}

// AnswerOne answers a single question against its context.
func (s *Service) AnswerOne(ctx context.Context, item domain.QueryItem) (answer.Record, error) {
	if err := item.Validate(); err != nil {
		return answer.Record{}, err
	}

	p, err := s.slot.EnsureLoaded(ctx)
	if err != nil {
		return answer.Record{}, fmt.Errorf("load extractive model: %w", err)
	}

	candidates, err := p.Answer(ctx, item.Input(), s.Options())
	if err != nil {
		return answer.Record{}, fmt.Errorf("extractive answer: %w", err)
	}

	rec := answer.Best(candidates, s.settings.AnswerThreshold)
	metrics.RecordAnswer(rec.NoAnswer())
	return rec, nil
}

// AnswerMany answers a batch with one runtime call. Results match input order.
// An empty batch returns without touching the model.
func (s *Service) AnswerMany(ctx context.Context, items []domain.QueryItem) ([]answer.Record, error) {
	if len(items) == 0 {
		return []answer.Record{}, nil
	}
	if s.settings.MaxBatchSize > 0 && len(items) > s.settings.MaxBatchSize {
		return nil, fmt.Errorf("%d items, limit %d: %w", len(items), s.settings.MaxBatchSize, domain.ErrBatchTooLarge)
	}

	inputs := make([]domain.ExtractiveInput, len(items))
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		inputs[i] = item.Input()
	}

	p, err := s.slot.EnsureLoaded(ctx)
	if err != nil {
		return nil, fmt.Errorf("load extractive model: %w", err)
	}

	ranked, err := domain.AnswerBatch(ctx, p, inputs, s.Options())
	if err != nil {
		return nil, fmt.Errorf("extractive batch: %w", err)
	}
	if len(ranked) != len(items) {
		return nil, fmt.Errorf("pipeline returned %d results for %d items: %w",
			len(ranked), len(items), domain.ErrInferenceFailed)
	}

	out := make([]answer.Record, len(ranked))
	for i, candidates := range ranked {
		out[i] = answer.Best(candidates, s.settings.AnswerThreshold)
		metrics.RecordAnswer(out[i].NoAnswer())
	}
	return out, nil
}
