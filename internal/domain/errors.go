package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a caller error detected before any model call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBatchTooLarge signals a batch above the configured limit.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrModelUnavailable signals a model kind whose load failed for the process lifetime.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInferenceFailed signals a runtime failure of a loaded model.
	ErrInferenceFailed = errors.New("inference failed")
)

// LoadError describes a failed load attempt. It unwraps to ErrModelUnavailable.
type LoadError struct {
	Kind    ModelKind
	ModelID string
	// LastLine is the last line of the captured diagnostic, the only part exposed externally.
	LastLine string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s model %q: %s", ErrModelUnavailable.Error(), e.Kind, e.ModelID, e.LastLine)
}

func (e *LoadError) Unwrap() error { return ErrModelUnavailable }
