package health

import (
	"context"

	"github.com/kailas-cloud/qaserve/internal/usecase/loader"
)

// ModelStates exposes the current state of both model slots.
type ModelStates interface {
	Statuses() (extractive, generative loader.Status)
}

// CachePinger checks answer cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker pings a remote inference backend.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}
