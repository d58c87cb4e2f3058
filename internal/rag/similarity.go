package rag

import (
	"fmt"
	"math"
)

// Similarity returns the cosine similarity of a and b: their dot product
// divided by the product of their Euclidean norms.
//
// The vectors must have equal length; a mismatch is a programming error and
// panics. If either vector has zero norm the similarity is defined as 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("rag: similarity of vectors with different lengths (%d != %d)", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push parallel vectors slightly outside [-1, 1].
	return math.Max(-1, math.Min(1, s))
}
