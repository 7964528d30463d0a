package answercache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/db"
	"github.com/kailas-cloud/qaserve/internal/domain"
)

type mockPipeline struct {
	answerFn   func(in domain.ExtractiveInput) ([]domain.CandidateAnswer, error)
	calls      int
	batchCalls int
	batchSizes []int
}

func (m *mockPipeline) Answer(
	_ context.Context, in domain.ExtractiveInput, _ domain.ExtractiveOptions,
) ([]domain.CandidateAnswer, error) {
	m.calls++
	return m.answerFn(in)
}

func (m *mockPipeline) AnswerBatch(
	_ context.Context, in []domain.ExtractiveInput, _ domain.ExtractiveOptions,
) ([][]domain.CandidateAnswer, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(in))
	out := make([][]domain.CandidateAnswer, len(in))
	for i, item := range in {
		res, err := m.answerFn(item)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// mockKVStore is an in-memory store that can be told to fail.
type mockKVStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	ttls   []time.Duration
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: map[string][]byte{}}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) GetMulti(_ context.Context, keys []string) ([][]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls = append(m.ttls, ttl)
	return nil
}

// echoPipeline answers with the question text.
func echoPipeline() *mockPipeline {
	return &mockPipeline{answerFn: func(in domain.ExtractiveInput) ([]domain.CandidateAnswer, error) {
		return []domain.CandidateAnswer{{Text: in.Question, Score: 0.9, Start: 0, End: len(in.Question)}}, nil
	}}
}

func newTestCache(t *testing.T, inner *mockPipeline) (*CachedPipeline, *mockKVStore) {
	t.Helper()
	ms := newMockKVStore()
	return New(inner, "deepset/minilm-uncased-squad2", ms, time.Hour, nil, zap.NewNop()), ms
}
