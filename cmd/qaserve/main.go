package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/config"
	"github.com/kailas-cloud/qaserve/internal/db"
	dbRedis "github.com/kailas-cloud/qaserve/internal/db/redis"
	"github.com/kailas-cloud/qaserve/internal/domain"
	logpkg "github.com/kailas-cloud/qaserve/internal/logger"
	"github.com/kailas-cloud/qaserve/internal/metrics"
	"github.com/kailas-cloud/qaserve/internal/repository/answercache"
	chiTransport "github.com/kailas-cloud/qaserve/internal/transport/chi"
	"github.com/kailas-cloud/qaserve/internal/transport/hf"
	openaiGen "github.com/kailas-cloud/qaserve/internal/transport/openai"
	abstractiveuc "github.com/kailas-cloud/qaserve/internal/usecase/abstractive"
	extractiveuc "github.com/kailas-cloud/qaserve/internal/usecase/extractive"
	healthuc "github.com/kailas-cloud/qaserve/internal/usecase/health"
	"github.com/kailas-cloud/qaserve/internal/usecase/inference"
	"github.com/kailas-cloud/qaserve/internal/usecase/loader"
	"github.com/kailas-cloud/qaserve/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger("qaserve", env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting qaserve API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("task", cfg.Models.Task),
		zap.String("extractive_model", cfg.Models.ExtractiveModelID),
		zap.String("generative_model", cfg.Models.GenerativeModelID),
		zap.String("generative_backend", cfg.Models.GenerativeBackend),
		zap.Bool("offline", cfg.HF.Offline()),
	)

	ctx := context.Background()

	// Answer cache is optional; without it the extractive chain talks to the endpoint directly.
	var store db.Store
	if cfg.Cache.Enabled {
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer rs.Close()

		if err := rs.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		store = rs
		logger.Info("Connected to answer cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Register inference metrics explicitly (no init())
	metrics.RegisterInferenceMetrics()

	hfClient := hf.NewClient(&hf.Config{
		BaseURL:  cfg.HF.Endpoint,
		Token:    cfg.HF.Token,
		Offline:  cfg.HF.Offline(),
		UseCache: cfg.HF.UseCache,
		Timeout:  time.Duration(cfg.HF.TimeoutSec) * time.Second,
		Logger:   logger,
	})

	var openaiBackend *openaiGen.Backend
	acquireGenerative := hfClient.AcquireGenerative
	if cfg.Models.GenerativeBackend == config.BackendOpenAI {
		openaiBackend = openaiGen.NewBackend(&openaiGen.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			User:    cfg.OpenAI.User,
			Logger:  logger,
		})
		acquireGenerative = openaiBackend.AcquireGenerative
	}
	cacheTTL := time.Duration(cfg.Cache.TTLSec) * time.Second

	registry := loader.NewRegistry(loader.Config{
		ExtractiveModelID:  cfg.Models.ExtractiveModelID,
		GenerativeModelID:  cfg.Models.GenerativeModelID,
		AcquireExtractive:  hfClient.AcquireExtractive,
		AcquireGenerative:  acquireGenerative,
		DecorateExtractive: decorateExtractive(cfg.Models.ExtractiveModelID, store, cacheTTL, logger),
		DecorateGenerative: decorateGenerative(cfg.Models.GenerativeModelID, logger),
		ExtractiveWarmup: domain.ExtractiveOptions{
			TopK:                   1,
			MaxSeqLen:              cfg.QA.MaxSeqLen,
			DocStride:              cfg.QA.DocStride,
			HandleImpossibleAnswer: true,
		},
		GenerativeWarmup: domain.GenerationParams{MaxNewTokens: 1, Temperature: 0.7, TopP: 0.9},
		LoadTimeout:      time.Duration(cfg.Models.LoadTimeoutSec) * time.Second,
		Logger:           logger,
	})

	// Create use case services
	extractiveSvc := extractiveuc.New(registry.Extractive, extractiveuc.Settings{
		Task:            cfg.Models.Task,
		AnswerThreshold: cfg.QA.Threshold(),
		ReturnNBest:     cfg.QA.ReturnNBest,
		MaxSeqLen:       cfg.QA.MaxSeqLen,
		DocStride:       cfg.QA.DocStride,
		MaxBatchSize:    cfg.QA.MaxBatchSize,
	})
	abstractiveSvc := abstractiveuc.New(registry.Generative)

	// Pass nil interface (not typed nil pointer!) when the cache is disabled.
	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(registry, cfg.Models.Task,
		healthuc.Settings{
			MaxSeqLen:       cfg.QA.MaxSeqLen,
			DocStride:       cfg.QA.DocStride,
			AnswerThreshold: cfg.QA.Threshold(),
			ReturnNBest:     cfg.QA.ReturnNBest,
		},
		healthuc.Offline{
			HFHubOffline:        cfg.HF.HubOffline,
			TransformersOffline: cfg.HF.TransformersOffline,
		},
		cachePinger,
	)
	if openaiBackend != nil {
		healthSvc.WithBackendCheck("generative_backend", openaiBackend)
	}

	if cfg.Models.Preload {
		go func() {
			if err := registry.Preload(ctx); err != nil {
				logger.Warn("Model preload finished with failures", zap.Error(err))
				return
			}
			logger.Info("Models preloaded")
		}()
	}

	// Create chi server
	server := chiTransport.NewServer(extractiveSvc, abstractiveSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logBanner(logger, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// decorateExtractive assembles the decorator chain: HF -> Cached -> Instrumented.
// It runs after warmup, so the warmup never hits the cache.
func decorateExtractive(
	modelID string,
	store db.Store,
	ttl time.Duration,
	logger *zap.Logger,
) loader.DecorateFunc[domain.ExtractivePipeline] {
	return func(p domain.ExtractivePipeline) domain.ExtractivePipeline {
		if store != nil {
			p = answercache.New(p, modelID, store, ttl, metrics.AnswerCacheTotal, logger)
		}
		return inference.NewInstrumentedExtractive(p, modelID, logger)
	}
}

// decorateGenerative wraps the generative handle with metrics.
// Sampled generations are never cached.
func decorateGenerative(modelID string, logger *zap.Logger) loader.DecorateFunc[domain.GenerativePipeline] {
	return func(p domain.GenerativePipeline) domain.GenerativePipeline {
		return inference.NewInstrumentedGenerative(p, modelID, logger)
	}
}

func logBanner(logger *zap.Logger, port int) {
	base := fmt.Sprintf("http://localhost:%d", port)
	logger.Info("HTTP server listening",
		zap.String("addr", fmt.Sprintf(":%d", port)),
		zap.Strings("endpoints", []string{
			"GET  " + base + "/healthz",
			"POST " + base + "/predict",
			"POST " + base + "/predict/batch",
			"POST " + base + "/predict_abstractive",
			"GET  " + base + "/ui",
			"GET  " + base + "/metrics",
		}),
	)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ctx, reqLogger := logpkg.ContextWithRequest(r.Context(), logger, requestID)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request. Health and metrics scrapes go to debug.
			log := reqLogger.Info
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				log = reqLogger.Debug
			}
			log("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
