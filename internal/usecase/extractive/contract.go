package extractive

import (
	"context"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// ModelSlot hands out the extractive pipeline, loading it on first use.
type ModelSlot interface {
	EnsureLoaded(ctx context.Context) (domain.ExtractivePipeline, error)
	ModelID() string
}
