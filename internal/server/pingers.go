package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/provider"
)

// LLMPinger probes the chat model backend. It satisfies the Pinger interface
// and is used by GET /api/ready.
type LLMPinger struct {
	// model is probed with a one-word generate call when healthCheck is nil.
	model model.BaseChatModel
	// healthCheck is the zero-cost probe for the backend, if it has one.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil, in which case m is
// probed with a generate call.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. The zero-cost HealthCheckConfig
// is used when available; otherwise a generate call is made, which consumes
// tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return fmt.Errorf("%s: no health check or model configured", p.name)
	}

	logging.FromContext(ctx).Debug("pinger: probing with a generate call", "backend", p.name)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes anything with a Ping method, such as the query history
// database.
type StorePinger struct {
	// db is the dependency to probe.
	db interface{ Ping(ctx context.Context) error }
	// name identifies the dependency in readiness responses.
	name string
}

// NewStorePinger constructs a StorePinger labelled name.
func NewStorePinger(db interface{ Ping(ctx context.Context) error }, name string) *StorePinger {
	return &StorePinger{db: db, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping delegates to the dependency.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
