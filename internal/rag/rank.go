package rag

import (
	"cmp"
	"slices"
)

// DefaultTopK is the number of chunks returned when the caller passes 0.
const DefaultTopK = 5

// scored is a pool entry carrying the document's input index so ties can be
// broken by input order.
type scored struct {
	chunk    ScoredChunk
	docIndex int
}

// rank sorts the pool by descending score, breaking ties by document input
// order and then chunk position, and returns at most topK entries with their
// Rank fields set. The pool is sorted in place.
func rank(pool []scored, topK int) []ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}

	slices.SortStableFunc(pool, func(a, b scored) int {
		if c := cmp.Compare(b.chunk.Score, a.chunk.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.docIndex, b.docIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.chunk.Position, b.chunk.Position)
	})

	n := min(topK, len(pool))
	out := make([]ScoredChunk, n)
	for i := range n {
		out[i] = pool[i].chunk
		out[i].Rank = i + 1
	}
	return out
}

// Rank orders already-scored chunks by descending score and returns the
// first topK. Chunks are treated as coming from a single ordered input, so
// ties keep their input order.
func Rank(chunks []ScoredChunk, topK int) []ScoredChunk {
	pool := make([]scored, len(chunks))
	for i, c := range chunks {
		pool[i] = scored{chunk: c, docIndex: i}
	}
	return rank(pool, topK)
}
