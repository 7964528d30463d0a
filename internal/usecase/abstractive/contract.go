package abstractive

import (
	"context"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// ModelSlot hands out the generative pipeline, loading it on first use.
type ModelSlot interface {
	EnsureLoaded(ctx context.Context) (domain.GenerativePipeline, error)
	ModelID() string
}
