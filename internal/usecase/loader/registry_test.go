package loader

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

func TestRegistry_FailureIsolation(t *testing.T) {
	var gotPrompt string
	r := NewRegistry(Config{
		ExtractiveModelID: "broken/extractive",
		GenerativeModelID: "google/flan-t5-small",
		AcquireExtractive: func(_ context.Context, _ string) (domain.ExtractivePipeline, error) {
			return nil, errors.New("missing weights")
		},
		AcquireGenerative: func(_ context.Context, _ string) (domain.GenerativePipeline, error) {
			return &mockGenerative{generateFn: func(_ context.Context, prompt string, _ domain.GenerationParams) (string, error) {
				gotPrompt = prompt
				return "pong", nil
			}}, nil
		},
		Logger: zap.NewNop(),
	})

	if err := r.Preload(context.Background()); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("Preload error = %v, want ErrModelUnavailable", err)
	}

	ext, gen := r.Statuses()
	if ext.State != StateFailed {
		t.Errorf("extractive state = %q, want failed", ext.State)
	}
	if gen.State != StateLoaded {
		t.Errorf("generative state = %q, want loaded", gen.State)
	}
	if gotPrompt != GenerativeWarmupPrompt {
		t.Errorf("warmup prompt = %q, want %q", gotPrompt, GenerativeWarmupPrompt)
	}

	if _, err := r.Generative.EnsureLoaded(context.Background()); err != nil {
		t.Errorf("generative must keep serving: %v", err)
	}
}

func TestRegistry_StartsUnloaded(t *testing.T) {
	r := NewRegistry(Config{
		ExtractiveModelID: "a",
		GenerativeModelID: "b",
		AcquireExtractive: func(_ context.Context, _ string) (domain.ExtractivePipeline, error) {
			t.Fatal("acquire must not run before first use")
			return nil, nil
		},
		AcquireGenerative: func(_ context.Context, _ string) (domain.GenerativePipeline, error) {
			t.Fatal("acquire must not run before first use")
			return nil, nil
		},
	})

	ext, gen := r.Statuses()
	if ext.State != StateUnloaded || gen.State != StateUnloaded {
		t.Errorf("states = %q/%q, want unloaded/unloaded", ext.State, gen.State)
	}
	if ext.ModelID != "a" || gen.ModelID != "b" {
		t.Errorf("model ids = %q/%q", ext.ModelID, gen.ModelID)
	}
}

type taggedExtractive struct {
	domain.ExtractivePipeline
}

func TestRegistry_WarmupRunsBeforeDecorate(t *testing.T) {
	var warmedRaw bool
	raw := &mockExtractive{}
	raw.answerFn = func(_ context.Context, in domain.ExtractiveInput, _ domain.ExtractiveOptions) ([]domain.CandidateAnswer, error) {
		warmedRaw = in == ExtractiveWarmupInput
		return []domain.CandidateAnswer{{Text: "pong", Score: 0.9, Start: 0, End: 4}}, nil
	}

	decorated := 0
	r := NewRegistry(Config{
		ExtractiveModelID: "deepset/minilm-uncased-squad2",
		GenerativeModelID: "google/flan-t5-small",
		AcquireExtractive: func(_ context.Context, _ string) (domain.ExtractivePipeline, error) {
			return raw, nil
		},
		AcquireGenerative: func(_ context.Context, _ string) (domain.GenerativePipeline, error) {
			return &mockGenerative{}, nil
		},
		DecorateExtractive: func(p domain.ExtractivePipeline) domain.ExtractivePipeline {
			decorated++
			return taggedExtractive{p}
		},
		Logger: zap.NewNop(),
	})

	h, err := r.Extractive.EnsureLoaded(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !warmedRaw {
		t.Error("warmup must reach the undecorated handle")
	}
	if _, ok := h.(taggedExtractive); !ok {
		t.Errorf("published handle should be decorated, got %T", h)
	}
	if decorated != 1 {
		t.Errorf("decorate calls = %d, want 1", decorated)
	}
}

func TestRegistry_DecorateSkippedOnWarmupFailure(t *testing.T) {
	r := NewRegistry(Config{
		ExtractiveModelID: "broken/extractive",
		GenerativeModelID: "google/flan-t5-small",
		AcquireExtractive: func(_ context.Context, _ string) (domain.ExtractivePipeline, error) {
			return &mockExtractive{answerFn: func(context.Context, domain.ExtractiveInput, domain.ExtractiveOptions) ([]domain.CandidateAnswer, error) {
				return nil, errors.New("401 unauthorized")
			}}, nil
		},
		AcquireGenerative: func(_ context.Context, _ string) (domain.GenerativePipeline, error) {
			return &mockGenerative{}, nil
		},
		DecorateExtractive: func(domain.ExtractivePipeline) domain.ExtractivePipeline {
			t.Error("decorate must not run for a failed load")
			return nil
		},
		Logger: zap.NewNop(),
	})

	if _, err := r.Extractive.EnsureLoaded(context.Background()); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}
