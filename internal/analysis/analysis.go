// Package analysis runs whole-document LLM passes over a product
// specification: a summary, the implied action items, and suggested
// improvements. Unlike question answering these operate on one document's
// full text rather than on retrieved chunks.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/specqa-go/internal/budget"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/synth"
)

// FallbackSummary is returned when the model replies with an empty summary.
const FallbackSummary = "Unable to generate summary."

const (
	summaryTemperature    float32 = 0.3
	summaryMaxTokens              = 500
	actionsTemperature    float32 = 0.2
	suggestionTemperature float32 = 0.4
)

const (
	summarySystem = "You are an AI assistant that creates concise, informative summaries of product specifications. " +
		"Focus on key requirements, features, dependencies, and technical details."
	summaryUser = "Please provide a comprehensive summary of the following document:\n\n%s"

	actionsSystem = "You are an AI assistant that extracts actionable items from product specifications. " +
		"Identify implementation tasks, technical requirements, dependencies, and milestones. " +
		"Return the result as a JSON array of strings."
	actionsUser = "Extract all action items from the following document:\n\n%s\n\n" +
		`Return as JSON: {"actions": ["action 1", "action 2", ...]}`

	suggestionsSystem = "You are an AI product specialist that provides helpful suggestions to improve product specifications. " +
		"Focus on completeness, technical clarity, consistency, and implementability."
	suggestionsUser = "Please analyze this product specification and suggest improvements:\n\n%s\n\n" +
		`Return as JSON: {"suggestions": ["suggestion 1", "suggestion 2", ...]}`
)

// Config holds the dependencies for an Analyzer.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory. Required.
	ChatModel model.BaseChatModel

	// GenerateTimeout bounds each model call. Zero means no per-call timeout.
	GenerateTimeout time.Duration

	// MaxContentTokens caps the document text sent to the model; longer
	// content is truncated with a warning (default budget.DefaultMaxContextTokens).
	MaxContentTokens int
}

// Analyzer runs the document analysis prompts. It is safe for concurrent use.
type Analyzer struct {
	gen              *synth.Generator
	maxContentTokens int
}

// New constructs an Analyzer from cfg, applying defaults.
func New(ctx context.Context, cfg Config) (*Analyzer, error) {
	gen, err := synth.NewGenerator(ctx, cfg.ChatModel, cfg.GenerateTimeout)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	maxTokens := cfg.MaxContentTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Analyzer{gen: gen, maxContentTokens: maxTokens}, nil
}

// Summarize returns a prose summary of content.
func (a *Analyzer) Summarize(ctx context.Context, content string) (string, error) {
	reply, err := a.gen.Generate(ctx,
		a.messages(ctx, "summarize", summarySystem, summaryUser, content),
		model.WithTemperature(summaryTemperature),
		model.WithMaxTokens(summaryMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("analysis: summarize: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return FallbackSummary, nil
	}
	return reply, nil
}

// ActionItems returns the implementation tasks implied by content.
func (a *Analyzer) ActionItems(ctx context.Context, content string) ([]string, error) {
	var out struct {
		Actions []string `json:"actions"`
	}
	if err := a.list(ctx, "actions", actionsSystem, actionsUser, content, actionsTemperature, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Actions), nil
}

// Suggestions returns suggested improvements to content.
func (a *Analyzer) Suggestions(ctx context.Context, content string) ([]string, error) {
	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := a.list(ctx, "suggestions", suggestionsSystem, suggestionsUser, content, suggestionTemperature, &out); err != nil {
		return nil, err
	}
	return nonNil(out.Suggestions), nil
}

// list runs a prompt whose reply is a JSON object and decodes it into v. An
// undecodable reply is a generation failure.
func (a *Analyzer) list(ctx context.Context, op, system, user, content string, temp float32, v any) error {
	reply, err := a.gen.Generate(ctx,
		a.messages(ctx, op, system, user, content),
		model.WithTemperature(temp),
	)
	if err != nil {
		return fmt.Errorf("analysis: %s: %w", op, err)
	}
	if err := synth.DecodeJSON(reply, v); err != nil {
		return fmt.Errorf("analysis: %s: %w: %w", op, synth.ErrGeneration, err)
	}
	return nil
}

// messages builds the two-message prompt, truncating content to the budget.
func (a *Analyzer) messages(ctx context.Context, op, system, user, content string) []*schema.Message {
	trimmed, truncated := budget.Truncate(content, a.maxContentTokens)
	if truncated {
		logging.FromContext(ctx).Warn("analysis: document truncated to fit context budget",
			slog.String("operation", op),
			slog.Int("estimated_tokens", budget.Estimate(content)),
			slog.Int("max_tokens", a.maxContentTokens),
		)
	}
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(fmt.Sprintf(user, trimmed)),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
