package loader

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Warmup inputs used to surface load-time errors before the first real request.
var (
	ExtractiveWarmupInput  = domain.ExtractiveInput{Question: "ping?", Context: "pong."}
	GenerativeWarmupPrompt = "Question: ping? Context: pong. Answer:"
)

// Registry holds one slot per model kind. It is owned by the service instance.
type Registry struct {
	Extractive *Slot[domain.ExtractivePipeline]
	Generative *Slot[domain.GenerativePipeline]
}

// Config wires model identifiers and acquisition functions into a Registry.
type Config struct {
	ExtractiveModelID string
	GenerativeModelID string
	AcquireExtractive AcquireFunc[domain.ExtractivePipeline]
	AcquireGenerative AcquireFunc[domain.GenerativePipeline]
	// DecorateExtractive and DecorateGenerative wrap the handle after warmup. Optional.
	DecorateExtractive DecorateFunc[domain.ExtractivePipeline]
	DecorateGenerative DecorateFunc[domain.GenerativePipeline]
	ExtractiveWarmup   domain.ExtractiveOptions
	GenerativeWarmup   domain.GenerationParams
	LoadTimeout        time.Duration
	Logger             *zap.Logger
}

// NewRegistry creates both slots in the unloaded state.
func NewRegistry(cfg Config) *Registry {
	extractiveOpts := cfg.ExtractiveWarmup
	generativeParams := cfg.GenerativeWarmup

	return &Registry{
		Extractive: NewSlot(Spec[domain.ExtractivePipeline]{
			Kind:     domain.KindExtractive,
			ModelID:  cfg.ExtractiveModelID,
			Acquire:  cfg.AcquireExtractive,
			Decorate: cfg.DecorateExtractive,
			Warmup: func(ctx context.Context, p domain.ExtractivePipeline) error {
				_, err := p.Answer(ctx, ExtractiveWarmupInput, extractiveOpts)
				return err
			},
		}, cfg.LoadTimeout, cfg.Logger),
		Generative: NewSlot(Spec[domain.GenerativePipeline]{
			Kind:     domain.KindGenerative,
			ModelID:  cfg.GenerativeModelID,
			Acquire:  cfg.AcquireGenerative,
			Decorate: cfg.DecorateGenerative,
			Warmup: func(ctx context.Context, p domain.GenerativePipeline) error {
				_, err := p.Generate(ctx, GenerativeWarmupPrompt, generativeParams)
				return err
			},
		}, cfg.LoadTimeout, cfg.Logger),
	}
}

// Preload triggers both loads concurrently and waits for them.
// A failure of one kind never prevents the other from loading.
func (r *Registry) Preload(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := r.Extractive.EnsureLoaded(ctx)
		return err
	})
	g.Go(func() error {
		_, err := r.Generative.EnsureLoaded(ctx)
		return err
	})
	return g.Wait() //nolint:wrapcheck // already a *domain.LoadError
}

// Statuses returns the extractive and generative slot views.
func (r *Registry) Statuses() (Status, Status) {
	return r.Extractive.Status(), r.Generative.Status()
}
