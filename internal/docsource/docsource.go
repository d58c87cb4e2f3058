// Package docsource supplies document snapshots to the query engine. A Source
// loads a fixed set of documents on demand; the engine never fetches or
// mutates documents itself.
package docsource

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/specqa-go/internal/rag"
)

// DefaultLimit caps the number of documents a Dir loads when Limit is zero.
const DefaultLimit = 100

// Source loads a snapshot of documents.
type Source interface {
	Load(ctx context.Context) ([]rag.Document, error)
}

// Static is a Source over documents already held in memory.
type Static []rag.Document

// Load returns a copy of the documents.
func (s Static) Load(_ context.Context) ([]rag.Document, error) {
	return slices.Clone(s), nil
}

// Dir loads .md, .txt and .pdf files under a directory tree.
type Dir struct {
	// Root is the directory to walk.
	Root string
	// Limit caps the number of documents returned, newest first.
	// Defaults to DefaultLimit when zero; negative means no limit.
	Limit int
}

// supported maps file extensions to their text extractors.
var supported = map[string]func(path string) (string, error){
	".md":       readText,
	".markdown": readText,
	".txt":      readText,
	".pdf":      readPDF,
}

// Load walks Root and returns one document per supported file, sorted by
// modification time descending. IDs are slash-separated paths relative to
// Root so they are stable across platforms.
func (d Dir) Load(ctx context.Context) ([]rag.Document, error) {
	if d.Root == "" {
		return nil, fmt.Errorf("docsource: dir root must not be empty")
	}

	var docs []rag.Document
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			if path != d.Root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		extract, ok := supported[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		text, err := extract(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}

		docs = append(docs, rag.Document{
			ID:         filepath.ToSlash(rel),
			Name:       entry.Name(),
			Content:    text,
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docsource: load %s: %w", d.Root, err)
	}

	slices.SortStableFunc(docs, func(a, b rag.Document) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	limit := d.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if docs == nil {
		docs = []rag.Document{}
	}
	return docs, nil
}

// ReadFile extracts the text of a single supported file.
func ReadFile(path string) (string, error) {
	extract, ok := supported[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("docsource: unsupported file type %q", filepath.Ext(path))
	}
	text, err := extract(path)
	if err != nil {
		return "", fmt.Errorf("docsource: read %s: %w", path, err)
	}
	return text, nil
}

func readText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return sb.String(), nil
}

// maxFetchBytes caps a fetched document body.
const maxFetchBytes = 8 << 20

// URLConfig configures a URL source.
type URLConfig struct {
	// URLs are fetched in order.
	URLs []string
	// Timeout bounds each fetch. Defaults to 30s.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// URL loads documents over HTTP(S). Each URL becomes one document whose ID is
// the URL itself.
type URL struct {
	urls      []string
	userAgent string
	client    *http.Client
}

// NewURL constructs a URL source from cfg.
func NewURL(cfg URLConfig) (*URL, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("docsource: at least one URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "specqa-go/1.0 (document fetch)"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &URL{urls: slices.Clone(cfg.URLs), userAgent: ua, client: client}, nil
}

// Load fetches every URL. The first failure aborts the load.
func (u *URL) Load(ctx context.Context) ([]rag.Document, error) {
	docs := make([]rag.Document, 0, len(u.urls))
	for _, raw := range u.urls {
		text, modified, err := u.fetch(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("docsource: fetch %s: %w", raw, err)
		}
		docs = append(docs, rag.Document{
			ID:         raw,
			Name:       NameFromURL(raw),
			Content:    text,
			ModifiedAt: modified,
		})
	}
	return docs, nil
}

// fetch retrieves the body of url and its Last-Modified time, if reported.
func (u *URL) fetch(ctx context.Context, url string) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", u.userAgent)
	req.Header.Set("Accept", "text/plain, text/markdown, text/html")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxFetchBytes {
		return "", time.Time{}, fmt.Errorf("body exceeds %d bytes", maxFetchBytes)
	}

	var modified time.Time
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			modified = t
		}
	}
	return string(body), modified, nil
}
