package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/specqa-go/internal/docsource"
	"github.com/54b3r/specqa-go/internal/engine"
	"github.com/54b3r/specqa-go/internal/rag"
	"github.com/54b3r/specqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single query or analysis request (default: 2m).
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the model
	// backed endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Querier answers a question over a document snapshot. *engine.Engine
// satisfies it; tests inject a fake.
type Querier interface {
	Query(ctx context.Context, req engine.Request, docs []rag.Document) (*rag.Response, error)
}

// HistoryLister lists one page of a requester's past queries.
// *store.SQLiteStore satisfies it.
type HistoryLister interface {
	List(ctx context.Context, requester string, page, limit int) ([]store.QueryRecord, error)
}

// Analyzer runs the whole-document operations. *analysis.Analyzer satisfies it.
type Analyzer interface {
	Summarize(ctx context.Context, content string) (string, error)
	ActionItems(ctx context.Context, content string) ([]string, error)
	Suggestions(ctx context.Context, content string) ([]string, error)
}

// Deps are the components the handlers delegate to.
type Deps struct {
	// Querier is required.
	Querier Querier
	// Documents is the corpus used when a request does not inline documents.
	// Required.
	Documents docsource.Source
	// History backs GET /api/queries. Optional; the route answers 503 without it.
	History HistoryLister
	// Analyzer backs the /api/documents/* operations. Optional; the routes
	// answer 503 without it.
	Analyzer Analyzer
}

// Server is the HTTP server that exposes the query engine.
type Server struct {
	// querier answers POST /api/query.
	querier Querier
	// documents is the default corpus.
	documents docsource.Source
	// history backs GET /api/queries; nil when disabled.
	history HistoryLister
	// analyzer backs the document analysis routes; nil when disabled.
	analyzer Analyzer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopThrottle ends the throttle's sweeper.
	stopThrottle func()
	// now is the clock used for health timestamps.
	now func() time.Time
}

// documentInput is one inline document in a query request.
type documentInput struct {
	// ID is the stable document identifier. Defaults to Name.
	ID string `json:"id"`
	// Name is the display name used in citations. Defaults to ID.
	Name string `json:"name"`
	// Content is the document text.
	Content string `json:"content"`
	// ModifiedAt is the last modification time. Optional.
	ModifiedAt time.Time `json:"modifiedAt"`
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the free-text question.
	Query string `json:"query"`
	// TopK overrides the engine default when positive.
	TopK int `json:"topK,omitempty"`
	// Documents replaces the server corpus for this request when non-empty.
	Documents []documentInput `json:"documents,omitempty"`
}

// analysisRequest is the JSON body for the /api/documents/* operations. Content
// wins over DocumentID when both are set.
type analysisRequest struct {
	// DocumentID selects a document from the server corpus.
	DocumentID string `json:"documentId,omitempty"`
	// Content is analysed directly when non-blank.
	Content string `json:"content,omitempty"`
}

// documentSummary is one entry of the GET /api/documents response.
type documentSummary struct {
	// ID is the document identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// ModifiedAt is the last modification time.
	ModifiedAt time.Time `json:"modifiedAt"`
	// Size is the content length in bytes.
	Size int `json:"size"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Message is a generic, client-safe description of the failure.
	Message string `json:"message"`
}

// healthResponse is the JSON body for GET /api/health.
type healthResponse struct {
	// Status is always "ok".
	Status string `json:"status"`
	// Timestamp is the server time in RFC 3339 format.
	Timestamp string `json:"timestamp"`
}
