package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/specqa-go/internal/engine"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
)

// maxBodyBytes caps request bodies, inline documents included.
const maxBodyBytes = 8 << 20

// requesterHeader carries the history key. It identifies, it does not
// authenticate.
const requesterHeader = "X-Requester"

const (
	defaultQueriesLimit   = 10
	defaultDocumentsLimit = 20
)

// Client-facing failure messages. Internal detail goes to the log only.
const (
	msgInvalidQuery      = "Invalid query format"
	msgQueryFailed       = "Failed to process query"
	msgInvalidPage       = "Invalid pagination parameters"
	msgQueriesFailed     = "Failed to fetch queries"
	msgHistoryDisabled   = "Query history is disabled"
	msgDocumentsFailed   = "Failed to fetch product specifications"
	msgInvalidAnalysis   = "Invalid request format"
	msgDocumentNotFound  = "Product specification not found"
	msgAnalysisDisabled  = "Document analysis is disabled"
	msgSummaryFailed     = "Failed to summarize product specification"
	msgActionsFailed     = "Failed to extract action items from product specification"
	msgSuggestionsFailed = "Failed to generate suggestions for product specification"
)

// errDocumentNotFound is returned by resolveContent for an unknown document ID.
var errDocumentNotFound = errors.New("document not found")

// handleQuery handles POST /api/query. The documents are the inline set when
// the request carries one, the server corpus otherwise.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Query) == "" || req.TopK < 0 {
		s.metrics.observeQuery(outcomeInvalid, time.Since(start))
		writeError(w, r, http.StatusBadRequest, msgInvalidQuery)
		return
	}

	s.metrics.queriesInFlight.Inc()
	defer s.metrics.queriesInFlight.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	docs, err := s.queryDocuments(ctx, req.Documents)
	if err != nil {
		s.metrics.observeQuery(outcomeFor(err), time.Since(start))
		log.Error("query: loading documents failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, msgQueryFailed)
		return
	}

	resp, err := s.querier.Query(ctx, engine.Request{
		Query:     req.Query,
		Requester: requester(r),
		TopK:      req.TopK,
	}, docs)
	if err != nil {
		s.metrics.observeQuery(outcomeFor(err), time.Since(start))
		log.Error("query failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, msgQueryFailed)
		return
	}

	s.metrics.observeQuery(outcomeOK, time.Since(start))
	writeJSON(w, r, http.StatusOK, resp)
}

// queryDocuments converts inline documents or falls back to the server corpus.
func (s *Server) queryDocuments(ctx context.Context, inline []documentInput) ([]rag.Document, error) {
	if len(inline) == 0 {
		return s.documents.Load(ctx) //nolint:wrapcheck // logged by the caller
	}
	docs := make([]rag.Document, 0, len(inline))
	for i, in := range inline {
		d := rag.Document{ID: in.ID, Name: in.Name, Content: in.Content, ModifiedAt: in.ModifiedAt}
		if d.ID == "" {
			d.ID = d.Name
		}
		if d.ID == "" {
			d.ID = "inline-" + strconv.Itoa(i+1)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// handleQueries handles GET /api/queries?page=&limit=, newest first.
func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, msgHistoryDisabled)
		return
	}
	page, limit, err := pagination(r, defaultQueriesLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidPage)
		return
	}

	records, err := s.history.List(r.Context(), requester(r), page, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history: list failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, msgQueriesFailed)
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// handleDocuments handles GET /api/documents?page=&limit=. Content is omitted.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r, defaultDocumentsLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidPage)
		return
	}

	docs, err := s.documents.Load(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("documents: load failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, msgDocumentsFailed)
		return
	}

	out := []documentSummary{}
	from := (page - 1) * limit
	for i := from; i < len(docs) && i < from+limit; i++ {
		d := docs[i]
		out = append(out, documentSummary{ID: d.ID, Name: d.Name, ModifiedAt: d.ModifiedAt, Size: len(d.Content)})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleSummary handles POST /api/documents/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.analyse(w, r, opSummary, msgSummaryFailed, func(ctx context.Context, content string) (any, error) {
		summary, err := s.analyzer.Summarize(ctx, content)
		return map[string]string{"summary": summary}, err
	})
}

// handleActions handles POST /api/documents/actions.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	s.analyse(w, r, opActions, msgActionsFailed, func(ctx context.Context, content string) (any, error) {
		actions, err := s.analyzer.ActionItems(ctx, content)
		return map[string][]string{"actions": actions}, err
	})
}

// handleSuggestions handles POST /api/documents/suggestions.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	s.analyse(w, r, opSuggestions, msgSuggestionsFailed, func(ctx context.Context, content string) (any, error) {
		suggestions, err := s.analyzer.Suggestions(ctx, content)
		return map[string][]string{"suggestions": suggestions}, err
	})
}

// analyse resolves the request content and runs fn over it.
func (s *Server) analyse(w http.ResponseWriter, r *http.Request, op, failMsg string,
	fn func(ctx context.Context, content string) (any, error),
) {
	if s.analyzer == nil {
		writeError(w, r, http.StatusServiceUnavailable, msgAnalysisDisabled)
		return
	}
	log := logging.FromContext(r.Context()).With(slog.String("operation", op))

	var req analysisRequest
	if err := decodeBody(w, r, &req); err != nil ||
		(strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.DocumentID) == "") {
		s.metrics.analysis(op, outcomeInvalid)
		writeError(w, r, http.StatusBadRequest, msgInvalidAnalysis)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	content, err := s.resolveContent(ctx, req)
	switch {
	case errors.Is(err, errDocumentNotFound):
		s.metrics.analysis(op, outcomeNotFound)
		writeError(w, r, http.StatusNotFound, msgDocumentNotFound)
		return
	case err != nil:
		s.metrics.analysis(op, outcomeFor(err))
		log.Error("analysis: loading documents failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, failMsg)
		return
	}

	body, err := fn(ctx, content)
	if err != nil {
		s.metrics.analysis(op, outcomeFor(err))
		log.Error("analysis failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, failMsg)
		return
	}
	s.metrics.analysis(op, outcomeOK)
	writeJSON(w, r, http.StatusOK, body)
}

// resolveContent returns the inline content, or the content of the corpus
// document named by DocumentID.
func (s *Server) resolveContent(ctx context.Context, req analysisRequest) (string, error) {
	if strings.TrimSpace(req.Content) != "" {
		return req.Content, nil
	}
	docs, err := s.documents.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("server: load documents: %w", err)
	}
	for _, d := range docs {
		if d.ID == req.DocumentID {
			return d.Content, nil
		}
	}
	return "", errDocumentNotFound
}

// decodeBody decodes a size-limited JSON body into v, rejecting trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err //nolint:wrapcheck // mapped to 400 by callers
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// pagination parses the 1-based page and limit query parameters. Missing
// values take the defaults; malformed or non-positive values are an error.
func pagination(r *http.Request, defaultLimit int) (page, limit int, err error) {
	page, limit = 1, defaultLimit
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
	}
	return page, limit, nil
}

// requester returns the history key of the request.
func requester(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(requesterHeader)); v != "" {
		return v
	}
	return engine.AnonymousRequester
}

// outcomeFor maps a handler failure to its metrics outcome label.
func outcomeFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return outcomeTimeout
	}
	return outcomeError
}
