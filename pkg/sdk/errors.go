package qaserve

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput     = domain.ErrInvalidInput
	ErrBatchTooLarge    = domain.ErrBatchTooLarge
	ErrModelUnavailable = domain.ErrModelUnavailable
	ErrInferenceFailed  = domain.ErrInferenceFailed
)

// ErrUnauthorized is returned when the API key is missing or rejected.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response of the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	sentinel error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qaserve: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap exposes the matching sentinel so errors.Is works on API errors.
func (e *APIError) Unwrap() error { return e.sentinel }

func newAPIError(status int, code, message string) *APIError {
	return &APIError{StatusCode: status, Code: code, Message: message, sentinel: sentinelFor(status, code)}
}

func sentinelFor(status int, code string) error {
	switch code {
	case "bad_request", "validation_failed":
		return ErrInvalidInput
	case "batch_too_large":
		return ErrBatchTooLarge
	case "model_unavailable":
		return ErrModelUnavailable
	case "inference_failed":
		return ErrInferenceFailed
	case "unauthorized":
		return ErrUnauthorized
	}
	switch status {
	case http.StatusBadRequest:
		return ErrInvalidInput
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadGateway:
		return ErrInferenceFailed
	case http.StatusServiceUnavailable:
		return ErrModelUnavailable
	}
	return nil
}
