package qaserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 2 * time.Minute
	defaultUserAgent = "qaserve-go"
	maxErrorBody     = 64 << 10
)

// Client is the qaserve SDK entry point. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	obs        *observer
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("qaserve: invalid base URL %q", baseURL)
	}

	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.userAgent == "" {
		cfg.userAgent = defaultUserAgent
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		userAgent:  cfg.userAgent,
		httpClient: cfg.httpClient,
		obs:        obs,
	}, nil
}

// Predict returns the best extractive answer for q.
func (c *Client) Predict(ctx context.Context, q Query) (result Prediction, err error) {
	defer func(start time.Time) {
		c.obs.observe("predict", start, err)
		if err == nil && result.NoAnswer {
			c.obs.noAnswers("predict", 1)
		}
	}(time.Now())

	err = c.do(ctx, http.MethodPost, "/predict", q, &result)
	return result, err
}

// PredictBatch answers all queries in one model call.
// An empty slice returns an empty result without touching the model.
func (c *Client) PredictBatch(ctx context.Context, qs []Query) (result BatchPrediction, err error) {
	defer func(start time.Time) {
		c.obs.observe("predict_batch", start, err)
		if err == nil {
			n := 0
			for _, r := range result.Results {
				if r.NoAnswer {
					n++
				}
			}
			c.obs.noAnswers("predict_batch", n)
		}
	}(time.Now())

	if qs == nil {
		qs = []Query{}
	}
	body := struct {
		Items []Query `json:"items"`
	}{Items: qs}

	if err = c.do(ctx, http.MethodPost, "/predict/batch", body, &result); err != nil {
		return result, err
	}
	if len(result.Results) != len(qs) {
		return result, fmt.Errorf("qaserve: expected %d results, got %d", len(qs), len(result.Results))
	}
	return result, nil
}

// PredictAbstractive generates a free-form answer. Zero params take the server defaults.
func (c *Client) PredictAbstractive(ctx context.Context, q Query, p GenerationParams) (result Generation, err error) {
	defer func(start time.Time) { c.obs.observe("predict_abstractive", start, err) }(time.Now())

	body := struct {
		Query
		GenerationParams
	}{Query: q, GenerationParams: p}

	err = c.do(ctx, http.MethodPost, "/predict_abstractive", body, &result)
	return result, err
}

// do sends a JSON request and decodes a JSON response or an *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("qaserve: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("qaserve: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qaserve: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("qaserve: decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &e); err != nil || (e.Code == "" && e.Message == "") {
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
	}
	return newAPIError(resp.StatusCode, e.Code, e.Message)
}

// IsModelUnavailable reports whether err means a model failed to load.
func IsModelUnavailable(err error) bool { return errors.Is(err, ErrModelUnavailable) }
