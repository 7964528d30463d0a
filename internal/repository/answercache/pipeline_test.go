package answercache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

var opts = domain.ExtractiveOptions{TopK: 3, MaxSeqLen: 384, DocStride: 128, HandleImpossibleAnswer: true}

func TestAnswer_MissThenHit(t *testing.T) {
	inner := echoPipeline()
	cp, ms := newTestCache(t, inner)
	ctx := context.Background()
	in := domain.ExtractiveInput{Question: "who?", Context: "me"}

	first, err := cp.Answer(ctx, in, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cp.Answer(ctx, in, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if first[0] != second[0] {
		t.Errorf("cached value differs: %+v vs %+v", first[0], second[0])
	}
	if len(ms.ttls) != 1 || ms.ttls[0] != time.Hour {
		t.Errorf("expected one write with 1h TTL, got %v", ms.ttls)
	}
}

func TestAnswer_KeyIncludesOptions(t *testing.T) {
	inner := echoPipeline()
	cp, _ := newTestCache(t, inner)
	ctx := context.Background()
	in := domain.ExtractiveInput{Question: "who?", Context: "me"}

	other := opts
	other.TopK = 1
	_, _ = cp.Answer(ctx, in, opts)
	_, _ = cp.Answer(ctx, in, other)

	if inner.calls != 2 {
		t.Errorf("different options must not share an entry, got %d inner calls", inner.calls)
	}
}

func TestAnswer_EmptyCandidatesAreCached(t *testing.T) {
	inner := &mockPipeline{answerFn: func(domain.ExtractiveInput) ([]domain.CandidateAnswer, error) {
		return nil, nil
	}}
	cp, _ := newTestCache(t, inner)
	ctx := context.Background()
	in := domain.ExtractiveInput{Question: "q", Context: "c"}

	_, _ = cp.Answer(ctx, in, opts)
	res, err := cp.Answer(ctx, in, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 || res == nil || len(res) != 0 {
		t.Errorf("expected cached empty list, calls=%d res=%v", inner.calls, res)
	}
}

func TestAnswer_StoreErrorsDegradeToMiss(t *testing.T) {
	inner := echoPipeline()
	cp, ms := newTestCache(t, inner)
	ms.getErr = errors.New("connection refused")
	ms.setErr = errors.New("connection refused")

	res, err := cp.Answer(context.Background(), domain.ExtractiveInput{Question: "q", Context: "c"}, opts)
	if err != nil {
		t.Fatalf("store errors must not fail the request: %v", err)
	}
	if len(res) != 1 || res[0].Text != "q" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestAnswer_CorruptEntryIsMiss(t *testing.T) {
	inner := echoPipeline()
	cp, ms := newTestCache(t, inner)
	in := domain.ExtractiveInput{Question: "q", Context: "c"}
	ms.data[cp.cacheKey(in, opts)] = []byte("{not json")

	if _, err := cp.Answer(context.Background(), in, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner call on corrupt entry, got %d", inner.calls)
	}
}

func TestAnswer_InnerError(t *testing.T) {
	inner := &mockPipeline{answerFn: func(domain.ExtractiveInput) ([]domain.CandidateAnswer, error) {
		return nil, domain.ErrInferenceFailed
	}}
	cp, ms := newTestCache(t, inner)

	_, err := cp.Answer(context.Background(), domain.ExtractiveInput{Question: "q", Context: "c"}, opts)
	if !errors.Is(err, domain.ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed, got %v", err)
	}
	if len(ms.data) != 0 {
		t.Error("errors must not be cached")
	}
}

func TestAnswerBatch_OnlyMissesReachInner(t *testing.T) {
	inner := echoPipeline()
	cp, _ := newTestCache(t, inner)
	ctx := context.Background()

	warm := domain.ExtractiveInput{Question: "b", Context: "c"}
	if _, err := cp.Answer(ctx, warm, opts); err != nil {
		t.Fatalf("warm: %v", err)
	}

	in := []domain.ExtractiveInput{
		{Question: "a", Context: "c"},
		warm,
		{Question: "c", Context: "c"},
	}
	out, err := cp.AnswerBatch(ctx, in, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if out[i][0].Text != want {
			t.Errorf("result %d = %q, want %q", i, out[i][0].Text, want)
		}
	}
	if inner.batchCalls != 1 || inner.batchSizes[0] != 2 {
		t.Errorf("expected one inner batch of 2 misses, got calls=%d sizes=%v", inner.batchCalls, inner.batchSizes)
	}
}

func TestAnswerBatch_AllHits(t *testing.T) {
	inner := echoPipeline()
	cp, _ := newTestCache(t, inner)
	ctx := context.Background()
	in := []domain.ExtractiveInput{{Question: "a", Context: "c"}, {Question: "b", Context: "c"}}

	if _, err := cp.AnswerBatch(ctx, in, opts); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if _, err := cp.AnswerBatch(ctx, in, opts); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("second batch should be served from cache, got %d inner calls", inner.batchCalls)
	}
}

func TestAnswerBatch_StoreDownAnswersAll(t *testing.T) {
	inner := echoPipeline()
	cp, ms := newTestCache(t, inner)
	ms.getErr = errors.New("timeout")

	out, err := cp.AnswerBatch(context.Background(), []domain.ExtractiveInput{
		{Question: "a", Context: "c"}, {Question: "b", Context: "c"},
	}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || inner.batchSizes[0] != 2 {
		t.Errorf("expected both items answered by inner, got %v", inner.batchSizes)
	}
}

func TestCacheCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_answer_cache_total"}, []string{"result"})
	inner := echoPipeline()
	cp := New(inner, "m", newMockKVStore(), time.Minute, counter, zap.NewNop())
	in := domain.ExtractiveInput{Question: "q", Context: "c"}

	_, _ = cp.Answer(context.Background(), in, opts)
	_, _ = cp.Answer(context.Background(), in, opts)

	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit = %v, want 1", got)
	}
}
