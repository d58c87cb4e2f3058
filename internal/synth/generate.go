package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ErrGeneration is returned (wrapped) whenever the chat model fails. It is
// fatal for the current request only.
var ErrGeneration = errors.New("generation failure")

// Generator runs one chat completion through a compiled eino chain so global
// callback handlers (Langfuse tracing) observe every call.
type Generator struct {
	// runner is the compiled single-node chain wrapping the chat model.
	runner compose.Runnable[[]*schema.Message, *schema.Message]
	// timeout bounds each call; zero means no per-call timeout.
	timeout time.Duration
}

// NewGenerator compiles a chain around cm.
func NewGenerator(ctx context.Context, cm model.BaseChatModel, timeout time.Duration) (*Generator, error) {
	if cm == nil {
		return nil, fmt.Errorf("synth: chat model must not be nil")
	}
	runner, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(cm).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("synth: failed to compile chat chain: %w", err)
	}
	return &Generator{runner: runner, timeout: timeout}, nil
}

// Generate sends msgs to the model and returns the reply content. All
// failures wrap ErrGeneration.
func (g *Generator) Generate(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reply, err := g.runner.Invoke(ctx, msgs, compose.WithChatModelOption(opts...))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if reply == nil {
		return "", fmt.Errorf("%w: model returned no message", ErrGeneration)
	}
	return reply.Content, nil
}

// DecodeJSON unmarshals a model reply into v. Markdown code fences and prose
// around the outermost JSON object are tolerated since not every backend
// honours a JSON response format.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("synth: reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("synth: decode reply: %w", err)
	}
	return nil
}
