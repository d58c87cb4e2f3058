package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/specqa-go/internal/config"
	"github.com/54b3r/specqa-go/internal/docsource"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
	"github.com/54b3r/specqa-go/internal/store"
)

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ask", "index", "history", "summarize", "actions", "suggest", "serve", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	assert.True(t, strings.HasPrefix(out.String(), "specqa "), out.String())
}

func TestPrintResponse(t *testing.T) {
	t.Parallel()

	resp := &rag.Response{
		Answer: "It requires OAuth2.",
		Sources: []rag.Citation{
			{DocumentName: "auth.md", DocumentID: "auth.md", Snippet: "line one\nline two", Relevance: 0.87},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printResponse(&out, resp, false))
	assert.Equal(t, "It requires OAuth2.\n\nSources:\n  [1] auth.md (relevance 0.87)\n      line one line two\n", out.String())

	out.Reset()
	require.NoError(t, printResponse(&out, &rag.Response{Answer: "none", Sources: []rag.Citation{}}, false))
	assert.Equal(t, "none\n", out.String())

	out.Reset()
	require.NoError(t, printResponse(&out, resp, true))
	assert.Contains(t, out.String(), `"documentName": "auth.md"`)
}

func TestPrintHistory(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, printHistory(&out, nil, false))
	assert.Equal(t, "No queries recorded.\n", out.String())

	out.Reset()
	records := []store.QueryRecord{{
		ID: 3, Requester: "alice", Query: "q?", Answer: "a.",
		Sources: []rag.Citation{}, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	require.NoError(t, printHistory(&out, records, false))
	assert.Contains(t, out.String(), "#3")
	assert.Contains(t, out.String(), "Q: q?\nA: a.\n")
}

func TestPrintList(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, printList(&out, []string{"one", "two"}, "empty"))
	assert.Equal(t, "- one\n- two\n", out.String())

	out.Reset()
	require.NoError(t, printList(&out, nil, "empty"))
	assert.Equal(t, "empty\n", out.String())
}

func TestAnalysisContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "payments"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "payments", "refunds.md"), []byte("Refunds within 14 days."), 0o600))
	file := filepath.Join(dir, "standalone.txt")
	require.NoError(t, os.WriteFile(file, []byte("Standalone."), 0o600))

	a := &app{log: logging.Discard(), settings: config.Settings{DocsDir: dir}}
	ctx := context.Background()

	got, err := analysisContent(ctx, a, []string{file}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Standalone.", got)

	got, err = analysisContent(ctx, a, nil, "", "payments/refunds.md")
	require.NoError(t, err)
	assert.Equal(t, "Refunds within 14 days.", got)

	_, err = analysisContent(ctx, a, nil, "", "missing.md")
	require.ErrorContains(t, err, "not found")

	_, err = analysisContent(ctx, a, nil, "", "")
	require.Error(t, err)

	_, err = analysisContent(ctx, a, []string{file}, "", "payments/refunds.md")
	require.Error(t, err)
}

func TestDocumentSource(t *testing.T) {
	t.Parallel()

	a := &app{settings: config.Settings{DocsDir: "/srv/specs", DocsLimit: 7}}

	src, err := a.documentSource("", nil)
	require.NoError(t, err)
	assert.Equal(t, docsource.Dir{Root: "/srv/specs", Limit: 7}, src)

	src, err = a.documentSource("./override", nil)
	require.NoError(t, err)
	assert.Equal(t, docsource.Dir{Root: "./override", Limit: 7}, src)

	src, err = a.documentSource("", []string{"https://example.com/spec.md"})
	require.NoError(t, err)
	assert.IsType(t, &docsource.URL{}, src)
}

func TestWithHistory_Disabled(t *testing.T) {
	t.Parallel()

	a := &app{log: logging.Discard(), settings: config.Settings{HistoryDB: historyDisabled}}
	a.withHistory()
	assert.Nil(t, a.history)
}

func TestWithHistory_Opens(t *testing.T) {
	t.Parallel()

	a := &app{log: logging.Discard(), settings: config.Settings{HistoryDB: filepath.Join(t.TempDir(), "h.db")}}
	a.withHistory()
	require.NotNil(t, a.history)
	assert.Len(t, a.pingers(), 1)
	a.Close()
}
