// Package chunker splits document text into sentence-aligned chunks of a
// bounded target size. It never truncates content: it only decides where the
// boundaries between chunks fall.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTargetSize is the chunk size in characters used when the caller
// passes a non-positive target.
const DefaultTargetSize = 1000

// Separator joins sentences inside a chunk.
const Separator = ". "

// sentenceEnd matches runs of sentence-ending punctuation.
var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Sentences splits text on sentence-ending punctuation and returns the
// trimmed, non-empty units in text order.
func Sentences(text string) []string {
	parts := sentenceEnd.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Split accumulates sentences into chunks. When appending the next sentence
// would push the buffer past targetSize characters and the buffer is not
// empty, the buffer is emitted and a new one starts with that sentence. The
// final non-empty buffer is always emitted. Sizes are counted in runes.
//
// Whitespace-only input yields an empty slice.
func Split(text string, targetSize int) []string {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)

	for _, s := range Sentences(text) {
		n := utf8.RuneCountInString(s)
		if bufLen > 0 && bufLen+n > targetSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteString(Separator)
			bufLen += len(Separator)
		}
		buf.WriteString(s)
		bufLen += n
	}

	if bufLen > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
