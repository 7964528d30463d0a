package qaserve

import (
	"context"
	"net/http"
	"time"
)

// Health fetches the service status. It never triggers a model load.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	defer func(start time.Time) { c.obs.observe("health", start, err) }(time.Now())

	err = c.do(ctx, http.MethodGet, "/healthz", nil, &status)
	return status, err
}

// Ready reports whether the extractive model is loaded.
func (s HealthStatus) Ready() bool { return s.Status == "ready" }
