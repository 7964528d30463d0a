// Package hf serves model pipelines over the Hugging Face inference wire format.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// DefaultBaseURL is the public serverless inference endpoint.
const DefaultBaseURL = "https://api-inference.huggingface.co"

// ErrOfflineRemote is returned by acquisition when offline mode points at a non-local endpoint.
var ErrOfflineRemote = errors.New("offline mode requires a local inference endpoint")

const maxErrorBody = 64 << 10

// Config holds the inference endpoint settings.
type Config struct {
	BaseURL string
	Token   string
	// Offline restricts the endpoint to loopback hosts.
	Offline bool
	// UseCache lets the server return cached results. Sampled generations always bypass it.
	UseCache   bool
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one inference endpoint.
type Client struct {
	rawBase  string
	token    string
	offline  bool
	useCache bool
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates an inference client. The base URL is validated on acquisition.
func NewClient(cfg *Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	return &Client{
		rawBase:  strings.TrimRight(raw, "/"),
		token:    cfg.Token,
		offline:  cfg.Offline,
		useCache: cfg.UseCache,
		http:     hc,
		logger:   logger,
	}
}

// AcquireExtractive resolves a question-answering pipeline for modelID.
func (c *Client) AcquireExtractive(_ context.Context, modelID string) (domain.ExtractivePipeline, error) {
	if err := c.resolve(modelID); err != nil {
		return nil, err
	}
	return &Extractive{client: c, modelID: modelID}, nil
}

// AcquireGenerative resolves a text2text-generation pipeline for modelID.
func (c *Client) AcquireGenerative(_ context.Context, modelID string) (domain.GenerativePipeline, error) {
	if err := c.resolve(modelID); err != nil {
		return nil, err
	}
	return &Generative{client: c, modelID: modelID}, nil
}

func (c *Client) resolve(modelID string) error {
	if strings.TrimSpace(modelID) == "" {
		return errors.New("empty model id")
	}
	u, err := url.Parse(c.rawBase)
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w", c.rawBase, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q: unsupported scheme %q", c.rawBase, u.Scheme)
	}
	if c.offline && !isLocalHost(u.Hostname()) {
		return fmt.Errorf("endpoint %q: %w", c.rawBase, ErrOfflineRemote)
	}
	c.logger.Debug("Resolved inference endpoint",
		zap.String("endpoint", c.rawBase),
		zap.String("model_id", modelID),
		zap.Bool("offline", c.offline),
	)
	return nil
}

func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type request struct {
	Inputs     any            `json:"inputs"`
	Parameters any            `json:"parameters,omitempty"`
	Options    requestOptions `json:"options"`
}

// post sends one inference call and returns the raw JSON body of a 2xx response.
func (c *Client) post(ctx context.Context, modelID string, req request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.rawBase + "/models/" + modelID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, parseAPIError(resp.StatusCode, raw)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// parseAPIError extracts the "error" field of an inference error body.
// All errors are wrapped with domain.ErrInferenceFailed for correct 502 mapping.
func parseAPIError(status int, body []byte) error {
	if detail := extractError(body); detail != "" {
		return fmt.Errorf("inference API error %d: %s: %w", status, detail, domain.ErrInferenceFailed)
	}
	return fmt.Errorf("inference API error %d: %s: %w",
		status, strings.TrimSpace(string(body)), domain.ErrInferenceFailed)
}

// extractError handles both {"error": "..."} and {"error": ["...", ...]}.
func extractError(body []byte) string {
	var parsed struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil || len(parsed.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(parsed.Error, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(parsed.Error, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// jsonKind returns the first significant byte of a JSON document.
func jsonKind(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
