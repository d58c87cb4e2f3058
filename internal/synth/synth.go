// Package synth turns ranked evidence chunks into a cited natural-language
// answer using a chat model.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/specqa-go/internal/budget"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
)

// Fixed answers returned without (or despite) a model call.
const (
	NoResultsAnswer = "I couldn't find any relevant information in your documents to answer this query."
	FallbackAnswer  = "I couldn't generate a proper response based on your documents."
)

const (
	// snippetLength is the number of characters of chunk text kept in a citation.
	snippetLength = 200

	// defaultTemperature keeps answers close to the evidence.
	defaultTemperature float32 = 0.3
)

const systemPrompt = "You are an AI assistant that helps users understand their product specifications. " +
	"Always provide accurate, well-sourced answers based on the provided context. " +
	"When you reference information, mention which product specification it came from."

const userPromptTemplate = `Based on the following document excerpts, please answer the user's question comprehensively. Use specific details from the provided context and cite your sources by referencing the document names.

Context:
%s

Question: %s

Please provide a detailed answer with citations in the following JSON format:
{
  "answer": "Your comprehensive answer here, citing specific documents when referencing information",
  "confidence": 0.95
}`

// Config holds the dependencies for a Synthesizer.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory. Required.
	ChatModel model.BaseChatModel

	// Temperature is the sampling temperature (default 0.3).
	Temperature float32

	// GenerateTimeout bounds the model call. Zero means no per-call timeout.
	GenerateTimeout time.Duration

	// MaxContextTokens is the estimated prompt budget. Exceeding it only logs a
	// warning (default budget.DefaultMaxContextTokens).
	MaxContextTokens int
}

// Synthesizer builds the grounded prompt, calls the model and assembles the
// cited response. It is safe for concurrent use.
type Synthesizer struct {
	// gen runs the chat completion.
	gen *Generator
	// temperature is the sampling temperature for answers.
	temperature float32
	// maxContextTokens is the prompt budget used for the oversize warning.
	maxContextTokens int
}

// New constructs a Synthesizer from cfg, applying defaults.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	gen, err := NewGenerator(ctx, cfg.ChatModel, cfg.GenerateTimeout)
	if err != nil {
		return nil, err
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Synthesizer{gen: gen, temperature: temp, maxContextTokens: maxCtx}, nil
}

// answerReply is the JSON shape the model is asked to produce. Answer is left
// untyped so a non-string value degrades to the fallback instead of failing.
type answerReply struct {
	Answer     any     `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Synthesize answers query from chunks, which must already be in rank order.
// With no chunks it returns NoResultsAnswer without calling the model. When
// the reply carries no usable answer FallbackAnswer is used; the sources are
// populated either way.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []rag.ScoredChunk) (*rag.Response, error) {
	if len(chunks) == 0 {
		return &rag.Response{Answer: NoResultsAnswer, Sources: []rag.Citation{}}, nil
	}

	log := logging.FromContext(ctx)
	msgs := Messages(query, chunks)
	if est, over := budget.Check(msgs, s.maxContextTokens); over {
		log.Warn("budget: synthesis prompt exceeds context budget",
			slog.Int("estimated_tokens", est),
			slog.Int("max_tokens", s.maxContextTokens),
			slog.Int("chunks", len(chunks)),
		)
	}

	raw, err := s.gen.Generate(ctx, msgs, model.WithTemperature(s.temperature))
	if err != nil {
		return nil, fmt.Errorf("synth: answer generation failed: %w", err)
	}

	answer := FallbackAnswer
	var reply answerReply
	if err := DecodeJSON(raw, &reply); err != nil {
		log.Warn("synth: model reply is not valid JSON, using fallback answer", slog.Any("error", err))
	} else if a, ok := reply.Answer.(string); ok && strings.TrimSpace(a) != "" {
		answer = a
	} else {
		log.Warn("synth: model reply has no usable answer field, using fallback answer")
	}

	return &rag.Response{Answer: answer, Sources: Citations(chunks)}, nil
}

// Messages builds the system and user messages for query over chunks.
func Messages(query string, chunks []rag.ScoredChunk) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf(userPromptTemplate, Context(chunks), query)),
	}
}

// Context renders chunks as numbered excerpts separated by blank lines.
func Context(chunks []rag.ScoredChunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] From \"%s\": %s", i+1, c.DocumentName, c.Text)
	}
	return sb.String()
}

// Citations builds one citation per chunk, preserving order.
func Citations(chunks []rag.ScoredChunk) []rag.Citation {
	out := make([]rag.Citation, len(chunks))
	for i, c := range chunks {
		out[i] = rag.Citation{
			DocumentName: c.DocumentName,
			DocumentID:   c.DocumentID,
			Snippet:      Snippet(c.Text),
			Relevance:    Relevance(c.Score),
		}
	}
	return out
}

// Snippet returns the first 200 characters of text, with "..." appended when
// anything was cut.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	n := 0
	for i := range text {
		if n == snippetLength {
			return text[:i] + "..."
		}
		n++
	}
	return text
}

// Relevance rounds score to two decimals, rounding halves up.
func Relevance(score float64) float64 {
	return math.Floor(score*100+0.5) / 100
}
