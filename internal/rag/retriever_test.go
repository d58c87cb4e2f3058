package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder embeds text as a bag-of-words vector over a fixed vocabulary.
// Texts containing a word listed in fail return an error.
type wordEmbedder struct {
	vocab []string
	fail  []string
	calls atomic.Int64

	mu      sync.Mutex
	seen    []string
	maxSeen int
	active  int
}

func (e *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.seen = append(e.seen, texts...)
	e.active++
	e.maxSeen = max(e.maxSeen, e.active)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		for _, f := range e.fail {
			if strings.Contains(lower, f) {
				return nil, errors.New("upstream unavailable")
			}
		}
		vec := make([]float32, len(e.vocab)+1)
		vec[len(e.vocab)] = 0.01
		for j, w := range e.vocab {
			vec[j] = float32(strings.Count(lower, w))
		}
		out[i] = vec
	}
	return out, nil
}

func newTestRetriever(t *testing.T, cfg Config) *Retriever {
	t.Helper()
	r, err := NewRetriever(cfg)
	require.NoError(t, err)
	return r
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRetriever(Config{})
	require.Error(t, err)

	_, err = NewRetriever(Config{Embedder: &wordEmbedder{}, FailurePolicy: "retry-forever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown failure policy")

	r, err := NewRetriever(Config{Embedder: &wordEmbedder{}})
	require.NoError(t, err)
	assert.Equal(t, FailFast, r.cfg.FailurePolicy)
	assert.Equal(t, defaultConcurrency, r.cfg.Concurrency)
	assert.Equal(t, DefaultTopK, r.cfg.DefaultTopK)
	assert.Equal(t, 1, r.cfg.BatchSize)
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"sso"}}
	r := newTestRetriever(t, Config{Embedder: emb})

	for _, docs := range [][]Document{nil, {{ID: "1", Name: "Blank", Content: ""}}} {
		got, err := r.Retrieve(context.Background(), "sso", docs, 5)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestRetrieve_RanksMostRelevantFirst(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"pricing", "price", "tier", "sso"}}
	r := newTestRetriever(t, Config{Embedder: emb})

	docs := []Document{
		{ID: "1", Name: "Auth", Content: "The system supports SSO. It requires OAuth2."},
		{ID: "2", Name: "Pricing", Content: "Pricing has three tiers. Each tier has a price."},
	}
	got, err := r.Retrieve(context.Background(), "What pricing tier should I pick?", docs, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Pricing", got[0].DocumentName)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[1].Rank)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, -1.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestRetrieve_TopKLimitsAndDefaults(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"alpha"}}
	r := newTestRetriever(t, Config{Embedder: emb, ChunkSize: 1})

	docs := []Document{{ID: "1", Name: "Many", Content: "a. b. c. d. e. f. g. alpha."}}

	got, err := r.Retrieve(context.Background(), "alpha", docs, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].Text)

	got, err = r.Retrieve(context.Background(), "alpha", docs, 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)
}

func TestRetrieve_TiesKeepInputOrder(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"zzz"}}
	r := newTestRetriever(t, Config{Embedder: emb, ChunkSize: 1})

	docs := []Document{
		{ID: "b", Name: "Second", Content: "one. two."},
		{ID: "a", Name: "First", Content: "three."},
	}
	got, err := r.Retrieve(context.Background(), "query", docs, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestRetrieve_Deterministic(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"sso", "oauth2", "mobile"}}
	r := newTestRetriever(t, Config{Embedder: emb, ChunkSize: 20, Concurrency: 8})

	docs := []Document{
		{ID: "1", Name: "A", Content: "SSO is supported. OAuth2 is required. Mobile is planned. SSO again."},
		{ID: "2", Name: "B", Content: "Mobile apps. Mobile web. SSO for mobile."},
	}
	first, err := r.Retrieve(context.Background(), "mobile sso", docs, 10)
	require.NoError(t, err)
	for range 5 {
		again, err := r.Retrieve(context.Background(), "mobile sso", docs, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_QueryEmbeddingFailure(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"x"}, fail: []string{"boom"}}
	r := newTestRetriever(t, Config{Embedder: emb, FailurePolicy: SkipDocument})

	_, err := r.Retrieve(context.Background(), "boom", []Document{{ID: "1", Name: "A", Content: "x."}}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestRetrieve_FailFast(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"ok"}, fail: []string{"broken"}}
	r := newTestRetriever(t, Config{Embedder: emb})

	docs := []Document{
		{ID: "1", Name: "Good", Content: "ok."},
		{ID: "2", Name: "Bad", Content: "broken chunk."},
	}
	got, err := r.Retrieve(context.Background(), "ok", docs, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Nil(t, got)
}

func TestRetrieve_SkipDocument(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	emb := &wordEmbedder{vocab: []string{"ok"}, fail: []string{"broken"}}
	r := newTestRetriever(t, Config{
		Embedder:      emb,
		ChunkSize:     1,
		FailurePolicy: SkipDocument,
		Metrics:       NewMetrics(reg),
	})

	docs := []Document{
		{ID: "1", Name: "Good", Content: "ok."},
		{ID: "2", Name: "Bad", Content: "fine. broken chunk."},
	}
	got, err := r.Retrieve(context.Background(), "ok", docs, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Good", got[0].DocumentName)

	families, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, f := range families {
		if f.GetName() == "specqa_retrieval_skipped_documents_total" {
			skipped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, skipped)
}

func TestRetrieve_SkipDocument_BatchesStayWithinDocument(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"ok"}, fail: []string{"broken"}}
	r := newTestRetriever(t, Config{
		Embedder:      emb,
		ChunkSize:     1,
		BatchSize:     2,
		FailurePolicy: SkipDocument,
	})

	docs := []Document{
		{ID: "1", Name: "Good", Content: "ok."},
		{ID: "2", Name: "Bad", Content: "broken chunk."},
		{ID: "3", Name: "AlsoGood", Content: "ok. still ok. ok once more."},
	}
	got, err := r.Retrieve(context.Background(), "ok", docs, 10)
	require.NoError(t, err)

	names := make(map[string]int)
	for _, c := range got {
		names[c.DocumentName]++
	}
	assert.Equal(t, map[string]int{"Good": 1, "AlsoGood": 3}, names)
}

func TestRetrieve_SkipDocument_AllDocumentsFail(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"ok"}, fail: []string{"broken"}}
	r := newTestRetriever(t, Config{Embedder: emb, FailurePolicy: SkipDocument})

	docs := []Document{
		{ID: "1", Name: "A", Content: "broken."},
		{ID: "2", Name: "B", Content: "also broken."},
	}
	got, err := r.Retrieve(context.Background(), "ok", docs, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Nil(t, got)
}

// cancellingEmbedder answers the first call, cancels the caller's context and
// then fails every later call with the context error.
type cancellingEmbedder struct {
	cancel context.CancelFunc
	calls  atomic.Int64
}

func (e *cancellingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.calls.Add(1) > 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e.cancel()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRetrieve_SkipDocument_CancelledContextFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newTestRetriever(t, Config{
		Embedder:      &cancellingEmbedder{cancel: cancel},
		FailurePolicy: SkipDocument,
	})

	docs := []Document{
		{ID: "1", Name: "A", Content: "first."},
		{ID: "2", Name: "B", Content: "second."},
	}
	got, err := r.Retrieve(ctx, "q", docs, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestBatches(t *testing.T) {
	t.Parallel()

	item := func(doc int) *pending { return &pending{docIndex: doc} }
	shape := func(bs [][]*pending) [][]int {
		out := make([][]int, len(bs))
		for i, b := range bs {
			for _, it := range b {
				out[i] = append(out[i], it.docIndex)
			}
		}
		return out
	}

	tests := []struct {
		name  string
		items []*pending
		size  int
		want  [][]int
	}{
		{"empty", nil, 2, [][]int{}},
		{"one per call", []*pending{item(0), item(0), item(1)}, 1, [][]int{{0}, {0}, {1}}},
		{"split at document", []*pending{item(0), item(1), item(1), item(1)}, 2, [][]int{{0}, {1, 1}, {1}}},
		{"fits one document", []*pending{item(2), item(2)}, 8, [][]int{{2, 2}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, shape(batches(tc.items, tc.size)))
		})
	}
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.HasPrefix(t, "q:") {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, Config{Embedder: shortEmbedder{}})
	_, err := r.Retrieve(context.Background(), "q: anything", []Document{{ID: "1", Name: "A", Content: "text."}}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

type countMismatchEmbedder struct{}

func (countMismatchEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return [][]float32{}, nil
}

func TestRetrieve_EmptyEmbeddingResult(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, Config{Embedder: countMismatchEmbedder{}})
	_, err := r.Retrieve(context.Background(), "q", nil, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestRetrieve_CacheAvoidsReembedding(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"sso"}}
	cache := NewMemoryCache(0)
	r := newTestRetriever(t, Config{Embedder: emb, Cache: cache, ChunkSize: 1})

	docs := []Document{{ID: "1", Name: "A", Content: "SSO. OAuth2. Mobile."}}

	first, err := r.Retrieve(context.Background(), "sso", docs, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), emb.calls.Load())
	assert.Equal(t, 3, cache.Len())

	second, err := r.Retrieve(context.Background(), "sso", docs, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), emb.calls.Load(), "only the query should be re-embedded")
	assert.Equal(t, first, second)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, CacheKey) ([]float32, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Put(context.Context, CacheKey, []float32) error {
	return errors.New("cache down")
}

func TestRetrieve_CacheErrorsAreMisses(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"sso"}}
	r := newTestRetriever(t, Config{Embedder: emb, Cache: brokenCache{}})

	got, err := r.Retrieve(context.Background(), "sso", []Document{{ID: "1", Name: "A", Content: "SSO."}}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRetrieve_BatchingAndConcurrencyBound(t *testing.T) {
	t.Parallel()

	emb := &wordEmbedder{vocab: []string{"x"}}
	r := newTestRetriever(t, Config{Embedder: emb, ChunkSize: 1, BatchSize: 3, Concurrency: 2})

	docs := []Document{{ID: "1", Name: "A", Content: "a. b. c. d. e. f. g."}}
	got, err := r.Retrieve(context.Background(), "x", docs, 10)
	require.NoError(t, err)
	assert.Len(t, got, 7)

	// One query call plus ceil(7/3) chunk batches.
	assert.Equal(t, int64(4), emb.calls.Load())
	assert.LessOrEqual(t, emb.maxSeen, 2)
}

type slowEmbedder struct{}

func (slowEmbedder) Embed(ctx context.Context, _ []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Second):
		return [][]float32{{1}}, nil
	}
}

func TestRetrieve_EmbedTimeout(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, Config{Embedder: slowEmbedder{}, EmbedTimeout: 20 * time.Millisecond})
	_, err := r.Retrieve(context.Background(), "q", nil, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
