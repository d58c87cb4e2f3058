// Package engine composes the Retriever and the Synthesizer into the
// end-to-end question-answering contract: a query and a document snapshot go
// in, an answer with ordered source citations comes out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
)

// ErrQueryFailed wraps every failure returned by Engine.Query. Callers show a
// generic message for it and may use errors.Is on the cause for detail.
var ErrQueryFailed = errors.New("failed to process query")

// ErrEmptyQuery is returned (wrapped in ErrQueryFailed) for a blank query.
var ErrEmptyQuery = errors.New("query must not be empty")

// AnonymousRequester is recorded in history when a request carries no requester.
const AnonymousRequester = "anonymous"

// Retriever returns the top-K chunks of docs for query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, docs []rag.Document, topK int) ([]rag.ScoredChunk, error)
}

// Synthesizer turns ranked chunks into a cited answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []rag.ScoredChunk) (*rag.Response, error)
}

// Recorder persists completed responses. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Append(ctx context.Context, requester, query string, resp *rag.Response) error
}

// Request is one question put to the engine.
type Request struct {
	// Query is the free-text question.
	Query string
	// Requester identifies who asked, for history. Optional.
	Requester string
	// TopK overrides the engine default when positive.
	TopK int
}

// Config holds the dependencies for an Engine.
type Config struct {
	// Retriever is required.
	Retriever Retriever
	// Synthesizer is required.
	Synthesizer Synthesizer
	// Recorder is optional; recording failures are logged, never returned.
	Recorder Recorder
	// TopK is the number of chunks used as evidence (default rag.DefaultTopK).
	TopK int
	// Metrics is optional.
	Metrics *Metrics
}

// Engine answers questions over a document snapshot. It keeps no state
// between queries and is safe for concurrent use.
type Engine struct {
	retriever   Retriever
	synthesizer Synthesizer
	recorder    Recorder
	topK        int
	metrics     *Metrics
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("engine: retriever must not be nil")
	}
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("engine: synthesizer must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	return &Engine{
		retriever:   cfg.Retriever,
		synthesizer: cfg.Synthesizer,
		recorder:    cfg.Recorder,
		topK:        topK,
		metrics:     cfg.Metrics,
	}, nil
}

// Query runs embed → retrieve → rank → synthesize for req over docs. Either a
// complete response is returned or an error wrapping ErrQueryFailed; there is
// no partial result. An empty retrieval is not an error.
func (e *Engine) Query(ctx context.Context, req Request, docs []rag.Document) (*rag.Response, error) {
	start := time.Now()
	queryID := uuid.NewString()
	ctx = logging.With(ctx, slog.String("query_id", queryID))
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.Query) == "" {
		e.metrics.observe(outcomeError, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, ErrEmptyQuery)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}

	log.Info("engine: query received",
		slog.Int("documents", len(docs)),
		slog.Int("top_k", topK),
	)

	stage := time.Now()
	chunks, err := e.retriever.Retrieve(ctx, req.Query, docs, topK)
	e.metrics.stage("retrieve", time.Since(stage))
	if err != nil {
		e.metrics.observe(outcomeError, time.Since(start))
		log.Error("engine: retrieval failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	stage = time.Now()
	resp, err := e.synthesizer.Synthesize(ctx, req.Query, chunks)
	e.metrics.stage("synthesize", time.Since(stage))
	if err != nil {
		e.metrics.observe(outcomeError, time.Since(start))
		log.Error("engine: synthesis failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	outcome := outcomeAnswered
	if len(chunks) == 0 {
		outcome = outcomeNoResults
	}
	e.metrics.observe(outcome, time.Since(start))

	e.record(ctx, req, resp)

	log.Info("engine: query answered",
		slog.String("outcome", outcome),
		slog.Int("sources", len(resp.Sources)),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// record appends resp to the history store. Failures are non-fatal.
func (e *Engine) record(ctx context.Context, req Request, resp *rag.Response) {
	if e.recorder == nil {
		return
	}
	requester := req.Requester
	if requester == "" {
		requester = AnonymousRequester
	}
	if err := e.recorder.Append(ctx, requester, req.Query, resp); err != nil {
		logging.FromContext(ctx).Warn("history: failed to record query", slog.Any("error", err))
	}
}
