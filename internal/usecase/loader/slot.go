// Package loader owns the lazy, load-once lifecycle of model pipelines.
package loader

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/qaserve/internal/domain"
	logpkg "github.com/kailas-cloud/qaserve/internal/logger"
	"github.com/kailas-cloud/qaserve/internal/metrics"
)

// State is the lifecycle position of a model slot.
type State string

const (
	// StateUnloaded means no load attempt has completed yet.
	StateUnloaded State = "unloaded"
	// StateLoaded means the handle is usable for the process lifetime.
	StateLoaded State = "loaded"
	// StateFailed means the single load attempt failed; terminal until restart.
	StateFailed State = "failed"
)

// AcquireFunc obtains a pipeline handle for a model identifier.
type AcquireFunc[H any] func(ctx context.Context, modelID string) (H, error)

// WarmupFunc runs a minimal synthetic call against a freshly acquired handle.
type WarmupFunc[H any] func(ctx context.Context, h H) error

// DecorateFunc wraps a warmed-up handle (cache, metrics) before it is published.
type DecorateFunc[H any] func(h H) H

// Spec describes how one model kind is loaded.
// Warmup always runs on the undecorated handle so it reaches the model itself.
type Spec[H any] struct {
	Kind     domain.ModelKind
	ModelID  string
	Acquire  AcquireFunc[H]
	Warmup   WarmupFunc[H]
	Decorate DecorateFunc[H]
}

// Diagnostic is the captured outcome of a failed load.
type Diagnostic struct {
	Trace    string
	LastLine string
}

// Status is a point-in-time view of a slot.
type Status struct {
	Kind     domain.ModelKind
	ModelID  string
	State    State
	LastLine string
}

type outcome[H any] struct {
	state  State
	handle H
	diag   Diagnostic
}

// Slot memoizes at most one load attempt for a model kind.
// Concurrent first callers block on the single real load.
type Slot[H any] struct {
	spec    Spec[H]
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[outcome[H]]
}

// NewSlot creates an unloaded slot. timeout bounds the load; 0 disables the bound.
func NewSlot[H any](spec Spec[H], timeout time.Duration, logger *zap.Logger) *Slot[H] {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Slot[H]{spec: spec, timeout: timeout, logger: logger}
	metrics.SetModelState(spec.Kind.String(), string(StateUnloaded))
	return s
}

// EnsureLoaded returns the handle, loading it on first use.
// A failed kind returns a *domain.LoadError without another attempt.
func (s *Slot[H]) EnsureLoaded(ctx context.Context) (H, error) {
	if o := s.current.Load(); o != nil {
		return s.result(o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o := s.current.Load(); o != nil {
		return s.result(o)
	}

	o := s.load(ctx)
	s.current.Store(o)
	return s.result(o)
}

// Status reports the slot state without blocking on a load in progress.
func (s *Slot[H]) Status() Status {
	st := Status{Kind: s.spec.Kind, ModelID: s.spec.ModelID, State: StateUnloaded}
	if o := s.current.Load(); o != nil {
		st.State = o.state
		st.LastLine = o.diag.LastLine
	}
	return st
}

// ModelID returns the configured model identifier.
func (s *Slot[H]) ModelID() string { return s.spec.ModelID }

func (s *Slot[H]) result(o *outcome[H]) (H, error) {
	if o.state == StateLoaded {
		return o.handle, nil
	}
	var zero H
	return zero, &domain.LoadError{
		Kind:     s.spec.Kind,
		ModelID:  s.spec.ModelID,
		LastLine: o.diag.LastLine,
	}
}

// load runs detached from the caller's cancellation so a dropped request
// cannot become a permanent failure.
func (s *Slot[H]) load(ctx context.Context) *outcome[H] {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	kind := s.spec.Kind.String()
	s.logger.Info("Loading model pipeline",
		zap.String("kind", kind),
		zap.String("model_id", s.spec.ModelID),
	)

	start := time.Now()
	h, diag, err := s.attempt(ctx)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveModelLoad(kind, "error", duration)
		metrics.SetModelState(kind, string(StateFailed))
		s.logger.Error("Model pipeline load failed",
			zap.String("kind", kind),
			zap.String("model_id", s.spec.ModelID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		logpkg.Lines(s.logger, zapcore.ErrorLevel, diag.Trace, zap.String("kind", kind))
		return &outcome[H]{state: StateFailed, diag: diag}
	}

	metrics.ObserveModelLoad(kind, "success", duration)
	metrics.SetModelState(kind, string(StateLoaded))
	s.logger.Info("Model pipeline loaded",
		zap.String("kind", kind),
		zap.String("model_id", s.spec.ModelID),
		zap.Duration("duration", duration),
	)
	return &outcome[H]{state: StateLoaded, handle: h}
}

// attempt acquires and warms up the handle, converting panics into a diagnostic.
func (s *Slot[H]) attempt(ctx context.Context) (h H, diag Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero H
			h = zero
			err = fmt.Errorf("panic: %v", r)
			diag = newDiagnostic(err, debug.Stack())
		}
	}()

	h, err = s.spec.Acquire(ctx, s.spec.ModelID)
	if err != nil {
		err = fmt.Errorf("acquire %s: %w", s.spec.ModelID, err)
		return h, newDiagnostic(err, debug.Stack()), err
	}

	if s.spec.Warmup != nil {
		if werr := s.spec.Warmup(ctx, h); werr != nil {
			var zero H
			err = fmt.Errorf("warmup %s: %w", s.spec.ModelID, werr)
			return zero, newDiagnostic(err, debug.Stack()), err
		}
	}

	if s.spec.Decorate != nil {
		h = s.spec.Decorate(h)
	}
	return h, Diagnostic{}, nil
}

func newDiagnostic(err error, stack []byte) Diagnostic {
	trace := strings.TrimRight(string(stack), "\n") + "\n" + err.Error()
	return Diagnostic{Trace: trace, LastLine: domain.LastLine(trace)}
}
