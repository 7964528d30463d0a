// Package inference wraps model pipelines with metrics and logging.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
	"github.com/kailas-cloud/qaserve/internal/metrics"
)

// InstrumentedExtractive wraps an extractive pipeline with request metrics and debug logs.
// Batch calls are forwarded as one call when the inner pipeline supports it.
type InstrumentedExtractive struct {
	inner  domain.ExtractivePipeline
	model  string
	logger *zap.Logger
}

// NewInstrumentedExtractive wraps an extractive pipeline.
func NewInstrumentedExtractive(inner domain.ExtractivePipeline, model string, logger *zap.Logger) *InstrumentedExtractive {
	return &InstrumentedExtractive{inner: inner, model: model, logger: logger}
}

// Answer delegates to the inner pipeline and records the outcome.
func (p *InstrumentedExtractive) Answer(
	ctx context.Context, in domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([]domain.CandidateAnswer, error) {
	start := time.Now()
	res, err := p.inner.Answer(ctx, in, opts)
	duration := time.Since(start)

	kind := domain.KindExtractive.String()
	observe(kind, p.model, duration, err)
	if err != nil {
		p.logger.Error("Extractive inference failed",
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("extractive inference: %w", err)
	}

	p.logger.Debug("Extractive inference completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("candidates", len(res)),
	)
	return res, nil
}

// AnswerBatch forwards the whole batch in a single inner call.
func (p *InstrumentedExtractive) AnswerBatch(
	ctx context.Context, in []domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([][]domain.CandidateAnswer, error) {
	if len(in) == 0 {
		return [][]domain.CandidateAnswer{}, nil
	}

	kind := domain.KindExtractive.String()
	metrics.InferenceBatchSize.WithLabelValues(kind).Observe(float64(len(in)))

	start := time.Now()
	res, err := domain.AnswerBatch(ctx, p.inner, in, opts)
	duration := time.Since(start)

	observe(kind, p.model, duration, err)
	if err != nil {
		p.logger.Error("Extractive batch inference failed",
			zap.String("model", p.model),
			zap.Int("batch_size", len(in)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("extractive batch inference: %w", err)
	}

	p.logger.Debug("Extractive batch inference completed",
		zap.String("model", p.model),
		zap.Int("batch_size", len(in)),
		zap.Duration("duration", duration),
	)
	return res, nil
}

// InstrumentedGenerative wraps a generative pipeline with request metrics and debug logs.
type InstrumentedGenerative struct {
	inner  domain.GenerativePipeline
	model  string
	logger *zap.Logger
}

// NewInstrumentedGenerative wraps a generative pipeline.
func NewInstrumentedGenerative(inner domain.GenerativePipeline, model string, logger *zap.Logger) *InstrumentedGenerative {
	return &InstrumentedGenerative{inner: inner, model: model, logger: logger}
}

// Generate delegates to the inner pipeline and records the outcome.
func (p *InstrumentedGenerative) Generate(
	ctx context.Context, prompt string, params domain.GenerationParams,
) (string, error) {
	start := time.Now()
	text, err := p.inner.Generate(ctx, prompt, params)
	duration := time.Since(start)

	observe(domain.KindGenerative.String(), p.model, duration, err)
	if err != nil {
		p.logger.Error("Generative inference failed",
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("generative inference: %w", err)
	}

	p.logger.Debug("Generative inference completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("max_new_tokens", params.MaxNewTokens),
		zap.Int("output_chars", len(text)),
	)
	return text, nil
}

func observe(kind, model string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		metrics.InferenceErrorsTotal.WithLabelValues(kind, model, errorType(err)).Inc()
	}
	metrics.InferenceRequestsTotal.WithLabelValues(kind, model, status).Inc()
	metrics.InferenceRequestDuration.WithLabelValues(kind, model).Observe(d.Seconds())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrInferenceFailed):
		return "runtime"
	default:
		return "other"
	}
}
