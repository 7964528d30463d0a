// Package answercache memoizes extractive candidate lists in a key-value store.
package answercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/db"
	"github.com/kailas-cloud/qaserve/internal/domain"
)

const cacheKeyPrefix = "qaserve:answer:"

// store is the consumer interface for the answer cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedPipeline caches extractive candidates per (model, options, question, context).
// Store failures degrade to misses.
type CachedPipeline struct {
	inner      domain.ExtractivePipeline
	modelID    string
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.ExtractivePipeline,
	modelID string,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedPipeline {
	return &CachedPipeline{
		inner:      inner,
		modelID:    modelID,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Answer returns cached candidates or calls the inner pipeline.
func (c *CachedPipeline) Answer(
	ctx context.Context, in domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([]domain.CandidateAnswer, error) {
	key := c.cacheKey(in, opts)

	if cached, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return cached, nil
	}
	c.incCache("miss")

	res, err := c.inner.Answer(ctx, in, opts)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}

	c.putToCache(ctx, key, res)
	return res, nil
}

// AnswerBatch looks up every input, answers all misses with one inner batch
// call and splices the results back in input order.
func (c *CachedPipeline) AnswerBatch(
	ctx context.Context, in []domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([][]domain.CandidateAnswer, error) {
	if len(in) == 0 {
		return [][]domain.CandidateAnswer{}, nil
	}

	keys := make([]string, len(in))
	for i := range in {
		keys[i] = c.cacheKey(in[i], opts)
	}

	out := make([][]domain.CandidateAnswer, len(in))
	var missIdx []int
	var missIn []domain.ExtractiveInput

	cached := c.getMultiFromCache(ctx, keys)
	for i := range in {
		if cached[i] != nil {
			c.incCache("hit")
			out[i] = cached[i]
			continue
		}
		c.incCache("miss")
		missIdx = append(missIdx, i)
		missIn = append(missIn, in[i])
	}

	if len(missIn) == 0 {
		return out, nil
	}

	fresh, err := domain.AnswerBatch(ctx, c.inner, missIn, opts)
	if err != nil {
		return nil, fmt.Errorf("answer misses: %w", err)
	}
	if len(fresh) != len(missIn) {
		return nil, fmt.Errorf("inner returned %d results for %d misses: %w",
			len(fresh), len(missIn), domain.ErrInferenceFailed)
	}

	for j, idx := range missIdx {
		out[idx] = fresh[j]
		c.putToCache(ctx, keys[idx], fresh[j])
	}
	return out, nil
}

func (c *CachedPipeline) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedPipeline) cacheKey(in domain.ExtractiveInput, opts domain.ExtractiveOptions) string {
	h := sha256.New()
	for _, part := range []string{
		c.modelID,
		strconv.Itoa(opts.TopK),
		strconv.Itoa(opts.MaxSeqLen),
		strconv.Itoa(opts.DocStride),
		strconv.FormatBool(opts.HandleImpossibleAnswer),
		in.Question,
		in.Context,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedPipeline) getFromCache(ctx context.Context, key string) ([]domain.CandidateAnswer, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached answer", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return c.decode(key, data)
}

// getMultiFromCache returns one entry per key; nil means miss.
func (c *CachedPipeline) getMultiFromCache(ctx context.Context, keys []string) [][]domain.CandidateAnswer {
	out := make([][]domain.CandidateAnswer, len(keys))
	values, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		c.logger.Warn("Failed to get cached answers", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i, data := range values {
		if i >= len(out) {
			break
		}
		if res, ok := c.decode(keys[i], data); ok {
			out[i] = res
		}
	}
	return out
}

func (c *CachedPipeline) decode(key string, data []byte) ([]domain.CandidateAnswer, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var res []domain.CandidateAnswer
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("Failed to parse cached answer", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if res == nil {
		res = []domain.CandidateAnswer{}
	}
	return res, true
}

func (c *CachedPipeline) putToCache(ctx context.Context, key string, res []domain.CandidateAnswer) {
	if res == nil {
		res = []domain.CandidateAnswer{}
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("Failed to encode answer for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache answer", zap.String("key", key), zap.Error(err))
	}
}
