// Package rag defines the retrieval side of the question-answering engine:
// the document and chunk model, the embedding interface, cosine similarity,
// ranking, and the Retriever that turns a document set into the top-K
// scored chunks for a query.
package rag

import (
	"context"
	"errors"
	"time"
)

// ErrEmbedding is returned (wrapped) whenever the embedding service fails or
// returns an unusable result. It is fatal for the current query only.
var ErrEmbedding = errors.New("embedding failure")

// Document is a snapshot of a user document supplied by a document provider.
// The engine never mutates or fetches documents itself.
type Document struct {
	// ID is the provider-assigned document identifier.
	ID string

	// Name is the human-readable document name used in citations.
	Name string

	// Content is the raw text content. Documents with empty content are skipped.
	Content string

	// ModifiedAt is the last modification time reported by the provider.
	ModifiedAt time.Time
}

// Chunk is a contiguous slice of a document's text, recomputed per query.
type Chunk struct {
	// DocumentID is the ID of the source document.
	DocumentID string

	// DocumentName is the name of the source document.
	DocumentName string

	// Text is the chunk content.
	Text string

	// Position is the zero-based index of the chunk within its document.
	Position int
}

// ScoredChunk is a Chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity to the query embedding, in [-1, 1].
	Score float64

	// Rank is the 1-based position of the chunk in the ranked result.
	Rank int
}

// Citation points from a generated answer back to the document text that
// supports it.
type Citation struct {
	// DocumentName is the name of the cited document.
	DocumentName string `json:"documentName"`
	// DocumentID is the identifier of the cited document.
	DocumentID string `json:"documentId"`
	// Snippet is the first 200 characters of the chunk, with "..." appended when truncated.
	Snippet string `json:"snippet"`
	// Relevance is the similarity score rounded to two decimals.
	Relevance float64 `json:"relevance"`
}

// Response is the result of a query: the answer text and its ordered
// citations. It is immutable once constructed.
type Response struct {
	// Answer is the generated natural-language answer.
	Answer string `json:"answer"`
	// Sources is sorted by descending relevance.
	Sources []Citation `json:"sources"`
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingCache stores chunk embeddings across queries. A cache never
// changes observable results; implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Get returns the cached vector for key. The bool is false on a miss.
	Get(ctx context.Context, key CacheKey) ([]float32, bool, error)

	// Put stores vec under key, replacing any previous value.
	Put(ctx context.Context, key CacheKey, vec []float32) error
}
