package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Generator is a generative pipeline served by an OpenAI-compatible
// completions API (vLLM, TGI, llama.cpp server, Ollama).
type Generator struct {
	client *openai.Client
	model  string
	user   string
	logger *zap.Logger
}

// Config holds the completions backend settings.
type Config struct {
	APIKey  string
	BaseURL string
	User    string
	Logger  *zap.Logger
}

// Backend acquires generators from one completions server.
type Backend struct {
	client *openai.Client
	user   string
	logger *zap.Logger
}

// NewBackend creates an OpenAI-compatible completions backend.
func NewBackend(cfg *Config) *Backend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		client: openai.NewClientWithConfig(clientCfg),
		user:   cfg.User,
		logger: logger,
	}
}

// AcquireGenerative verifies that the server knows modelID and returns its pipeline.
func (b *Backend) AcquireGenerative(ctx context.Context, modelID string) (domain.GenerativePipeline, error) {
	m, err := b.client.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", modelID, parseAPIError(err))
	}
	b.logger.Info("Completions model resolved",
		zap.String("model_id", m.ID),
		zap.String("owned_by", m.OwnedBy),
	)
	return &Generator{client: b.client, model: modelID, user: b.user, logger: b.logger}, nil
}

// HealthCheck verifies API availability via ListModels.
func (b *Backend) HealthCheck(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate implements domain.GenerativePipeline.
func (g *Generator) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	req := openai.CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   params.MaxNewTokens,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
		User:        g.user,
	}

	resp, err := g.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrInferenceFailed)
	}

	g.logger.Debug("Completion finished",
		zap.String("model", g.model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
	)
	return resp.Choices[0].Text, nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrInferenceFailed for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrInferenceFailed

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("completions API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("completions API error %d: %s: %w",
			reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body)), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completions API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("completions request failed: %v: %w", err, wrap)
}

// extractDetail reads the "detail" field some compatible servers use instead of "error".
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
