// Command qaprefetch loads and warms up both configured models once and
// records what was cached, so an image can start with offline mode enabled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/config"
	"github.com/kailas-cloud/qaserve/internal/domain"
	logpkg "github.com/kailas-cloud/qaserve/internal/logger"
	"github.com/kailas-cloud/qaserve/internal/transport/hf"
	openaiGen "github.com/kailas-cloud/qaserve/internal/transport/openai"
	"github.com/kailas-cloud/qaserve/internal/usecase/loader"
	"github.com/kailas-cloud/qaserve/internal/version"
)

const exitPrefetchFailed = 10

// ModelMeta is written next to the cached weights.
type ModelMeta struct {
	Task              string    `json:"task"`
	ModelID           string    `json:"model_id"`
	GenerativeModelID string    `json:"generative_model_id"`
	GenerativeBackend string    `json:"generative_backend"`
	Version           string    `json:"version"`
	Build             string    `json:"build"`
	PrefetchedAt      time.Time `json:"prefetched_at"`
}

func main() {
	outDir := flag.String("out", "/models", "directory for MODEL_META.json")
	flag.Parse()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(exitPrefetchFailed)
	}

	logger, err := logpkg.NewLogger("qaprefetch", env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(exitPrefetchFailed)
	}

	os.Exit(run(context.Background(), cfg, *outDir, logger))
}

func run(ctx context.Context, cfg config.Config, outDir string, logger *zap.Logger) int {
	defer func() { _ = logger.Sync() }()

	logger.Info("Prefetch started",
		zap.String("task", cfg.Models.Task),
		zap.String("extractive_model", cfg.Models.ExtractiveModelID),
		zap.String("generative_model", cfg.Models.GenerativeModelID),
		zap.String("out", outDir),
	)

	// Prefetch always pulls from the configured endpoint, whatever the serving offline flags say.
	client := hf.NewClient(&hf.Config{
		BaseURL:  cfg.HF.Endpoint,
		Token:    cfg.HF.Token,
		UseCache: cfg.HF.UseCache,
		Timeout:  time.Duration(cfg.HF.TimeoutSec) * time.Second,
		Logger:   logger,
	})

	acquireGenerative := client.AcquireGenerative
	if cfg.Models.GenerativeBackend == config.BackendOpenAI {
		acquireGenerative = openaiGen.NewBackend(&openaiGen.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			User:    cfg.OpenAI.User,
			Logger:  logger,
		}).AcquireGenerative
	}

	registry := loader.NewRegistry(loader.Config{
		ExtractiveModelID: cfg.Models.ExtractiveModelID,
		GenerativeModelID: cfg.Models.GenerativeModelID,
		AcquireExtractive: client.AcquireExtractive,
		AcquireGenerative: acquireGenerative,
		ExtractiveWarmup: domain.ExtractiveOptions{
			TopK:                   1,
			MaxSeqLen:              cfg.QA.MaxSeqLen,
			DocStride:              cfg.QA.DocStride,
			HandleImpossibleAnswer: true,
		},
		GenerativeWarmup: domain.GenerationParams{MaxNewTokens: 8, Temperature: 0.7, TopP: 0.9},
		LoadTimeout:      time.Duration(cfg.Models.LoadTimeoutSec) * time.Second,
		Logger:           logger,
	})

	if err := registry.Preload(ctx); err != nil {
		logger.Error("Prefetch failed", zap.Error(err))
		return exitPrefetchFailed
	}

	meta := ModelMeta{
		Task:              cfg.Models.Task,
		ModelID:           cfg.Models.ExtractiveModelID,
		GenerativeModelID: cfg.Models.GenerativeModelID,
		GenerativeBackend: cfg.Models.GenerativeBackend,
		Version:           version.Version,
		Build:             version.String(),
		PrefetchedAt:      time.Now().UTC(),
	}
	path, err := writeMeta(outDir, meta)
	if err != nil {
		logger.Error("Failed to write model metadata", zap.Error(err))
		return exitPrefetchFailed
	}

	logger.Info("Prefetch succeeded", zap.String("meta", path))
	return 0
}

func writeMeta(dir string, meta ModelMeta) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	path := filepath.Join(dir, "MODEL_META.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
