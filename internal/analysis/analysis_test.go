package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/specqa-go/internal/synth"
)

type fakeChatModel struct {
	reply string
	err   error

	mu        sync.Mutex
	msgs      []*schema.Message
	temp      *float32
	maxTokens *int
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := model.GetCommonOptions(&model.Options{}, opts...)
	f.msgs, f.temp, f.maxTokens = msgs, o.Temperature, o.MaxTokens
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m, err := f.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{m}), nil
}

func newAnalyzer(t *testing.T, cm *fakeChatModel, maxTokens int) *Analyzer {
	t.Helper()
	a, err := New(context.Background(), Config{ChatModel: cm, MaxContentTokens: maxTokens})
	require.NoError(t, err)
	return a
}

func TestNew_RequiresChatModel(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{reply: "A login spec."}
	a := newAnalyzer(t, cm, 0)

	got, err := a.Summarize(context.Background(), "Users log in with SSO.")
	require.NoError(t, err)
	assert.Equal(t, "A login spec.", got)

	require.Len(t, cm.msgs, 2)
	assert.Equal(t, schema.System, cm.msgs[0].Role)
	assert.Equal(t, summarySystem, cm.msgs[0].Content)
	assert.Equal(t, "Please provide a comprehensive summary of the following document:\n\nUsers log in with SSO.", cm.msgs[1].Content)
	require.NotNil(t, cm.temp)
	assert.InDelta(t, 0.3, *cm.temp, 1e-6)
	require.NotNil(t, cm.maxTokens)
	assert.Equal(t, 500, *cm.maxTokens)
}

func TestSummarize_EmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, &fakeChatModel{reply: "  \n"}, 0)
	got, err := a.Summarize(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, FallbackSummary, got)
}

func TestActionItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"plain", `{"actions":["Build login","Add SSO"]}`, []string{"Build login", "Add SSO"}},
		{"fenced", "```json\n{\"actions\":[\"Ship it\"]}\n```", []string{"Ship it"}},
		{"missing field", `{"other":[]}`, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cm := &fakeChatModel{reply: tc.reply}
			got, err := newAnalyzer(t, cm, 0).ActionItems(context.Background(), "spec")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			require.NotNil(t, cm.temp)
			assert.InDelta(t, 0.2, *cm.temp, 1e-6)
			assert.Contains(t, cm.msgs[1].Content, `Return as JSON: {"actions": [`)
		})
	}
}

func TestSuggestions(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{reply: `Sure! {"suggestions":["Define error codes"]}`}
	got, err := newAnalyzer(t, cm, 0).Suggestions(context.Background(), "spec")
	require.NoError(t, err)
	assert.Equal(t, []string{"Define error codes"}, got)
	require.NotNil(t, cm.temp)
	assert.InDelta(t, 0.4, *cm.temp, 1e-6)
	assert.Equal(t, suggestionsSystem, cm.msgs[0].Content)
}

func TestList_UndecodableReply(t *testing.T) {
	t.Parallel()

	_, err := newAnalyzer(t, &fakeChatModel{reply: "no json here"}, 0).Suggestions(context.Background(), "spec")
	require.Error(t, err)
	assert.ErrorIs(t, err, synth.ErrGeneration)
}

func TestModelFailure(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, &fakeChatModel{err: errors.New("quota exceeded")}, 0)
	_, err := a.Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, synth.ErrGeneration)
	_, err = a.ActionItems(context.Background(), "x")
	assert.ErrorIs(t, err, synth.ErrGeneration)
}

func TestContentTruncatedToBudget(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{reply: "ok"}
	a := newAnalyzer(t, cm, 10)

	_, err := a.Summarize(context.Background(), strings.Repeat("a", 400))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cm.msgs[1].Content, ":\n\n"+strings.Repeat("a", 40)))
}
