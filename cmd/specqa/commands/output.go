package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/54b3r/specqa-go/internal/rag"
	"github.com/54b3r/specqa-go/internal/store"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// printResponse writes an answer followed by its numbered sources.
func printResponse(w io.Writer, resp *rag.Response, asJSON bool) error {
	if asJSON {
		return printJSON(w, resp)
	}
	var b strings.Builder
	b.WriteString(resp.Answer)
	b.WriteString("\n")
	writeSources(&b, resp.Sources)
	_, err := io.WriteString(w, b.String())
	return err //nolint:wrapcheck // CLI output
}

// writeSources renders citations as a numbered list. Nothing is written for
// an empty list.
func writeSources(b *strings.Builder, sources []rag.Citation) {
	if len(sources) == 0 {
		return
	}
	b.WriteString("\nSources:\n")
	for i, c := range sources {
		fmt.Fprintf(b, "  [%d] %s (relevance %.2f)\n", i+1, c.DocumentName, c.Relevance)
		fmt.Fprintf(b, "      %s\n", strings.ReplaceAll(c.Snippet, "\n", " "))
	}
}

// printHistory writes history records newest first.
func printHistory(w io.Writer, records []store.QueryRecord, asJSON bool) error {
	if asJSON {
		return printJSON(w, records)
	}
	if len(records) == 0 {
		_, err := io.WriteString(w, "No queries recorded.\n")
		return err //nolint:wrapcheck // CLI output
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "#%d  %s  %s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Requester)
		fmt.Fprintf(&b, "Q: %s\n", r.Query)
		fmt.Fprintf(&b, "A: %s\n", r.Answer)
		writeSources(&b, r.Sources)
	}
	_, err := io.WriteString(w, b.String())
	return err //nolint:wrapcheck // CLI output
}

// printList writes items as a bulleted list.
func printList(w io.Writer, items []string, empty string) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err //nolint:wrapcheck // CLI output
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	_, err := io.WriteString(w, b.String())
	return err //nolint:wrapcheck // CLI output
}
