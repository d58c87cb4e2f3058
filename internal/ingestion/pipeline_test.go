package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/specqa-go/internal/chunker"
	"github.com/54b3r/specqa-go/internal/rag"
)

// countingEmbedder returns a vector of [len(text), 1] and counts texts seen.
type countingEmbedder struct {
	mu    sync.Mutex
	texts int
	calls int
	dims  func(i int) int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		n := 2
		if c.dims != nil {
			n = c.dims(c.texts)
		}
		vec := make([]float32, n)
		vec[0] = float32(len(t))
		out[i] = vec
		c.texts++
	}
	c.calls++
	return out, nil
}

var docs = []rag.Document{
	{ID: "auth", Name: "Auth", Content: "SSO is supported. OAuth2 is required. Tokens expire hourly."},
	{ID: "empty", Name: "Empty"},
	{ID: "pricing", Name: "Pricing", Content: "There are three tiers."},
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(nil, rag.NewMemoryCache(0), Config{})
	require.Error(t, err)
	_, err = NewPipeline(&countingEmbedder{}, nil, Config{})
	require.Error(t, err)
}

func TestWarm_PopulatesCacheWithRetrieverKeys(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	cache := rag.NewMemoryCache(0)
	p, err := NewPipeline(emb, cache, Config{ChunkSize: 20, BatchSize: 2})
	require.NoError(t, err)

	var msgs []string
	stats, err := p.Warm(context.Background(), docs, func(m string) { msgs = append(msgs, m) })
	require.NoError(t, err)

	want := len(chunker.Split(docs[0].Content, 20)) + len(chunker.Split(docs[2].Content, 20))
	assert.Equal(t, Stats{Documents: 2, Chunks: want, Embedded: want}, stats)
	assert.Equal(t, want, cache.Len())
	assert.NotEmpty(t, msgs)
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1], "indexed 2 documents"))

	for pos, text := range chunker.Split(docs[0].Content, 20) {
		key := rag.NewCacheKey(rag.Chunk{DocumentID: "auth", Text: text, Position: pos})
		vec, ok, err := cache.Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, ok, "chunk %d not cached", pos)
		assert.Equal(t, float32(len(text)), vec[0])
	}
}

func TestWarm_SkipsCachedUnlessForced(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{}
	cache := rag.NewMemoryCache(0)
	p, err := NewPipeline(emb, cache, Config{ChunkSize: 20})
	require.NoError(t, err)

	first, err := p.Warm(context.Background(), docs, nil)
	require.NoError(t, err)

	second, err := p.Warm(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Embedded)
	assert.Equal(t, first.Chunks, second.Cached)
	assert.Equal(t, first.Embedded, emb.texts)

	forced, err := NewPipeline(emb, cache, Config{ChunkSize: 20, Force: true})
	require.NoError(t, err)
	third, err := forced.Warm(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, third.Embedded)
}

func TestWarm_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&countingEmbedder{err: errors.New("boom")}, rag.NewMemoryCache(0), Config{})
	require.NoError(t, err)

	_, err = p.Warm(context.Background(), docs, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.Contains(t, err.Error(), "Auth")
}

func TestWarm_DimensionMismatch(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{dims: func(i int) int {
		if i == 0 {
			return 2
		}
		return 3
	}}
	p, err := NewPipeline(emb, rag.NewMemoryCache(0), Config{ChunkSize: 20, BatchSize: 1})
	require.NoError(t, err)

	_, err = p.Warm(context.Background(), docs, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbedding)
}
