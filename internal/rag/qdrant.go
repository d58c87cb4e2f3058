package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace scopes the UUIDv5 point IDs derived from cache keys.
var pointNamespace = uuid.MustParse("6f1c2a8e-94b3-4d6e-9a57-3c0e8b1d2f45")

// QdrantConfig holds connection parameters for a Qdrant instance used as an
// embedding cache.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantCache implements EmbeddingCache on top of a Qdrant collection. It is
// used purely as a keyed store: points are written and read back by ID and
// never searched, so ranking stays brute force.
type QdrantCache struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this cache.
	cfg *QdrantConfig
}

// NewQdrantCache creates a QdrantCache, ensuring the target collection exists
// (creating it if necessary).
func NewQdrantCache(ctx context.Context, cfg *QdrantConfig) (*QdrantCache, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "specqa-embeddings"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	c := &QdrantCache{client: client, cfg: cfg}
	if err := c.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return c, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (c *QdrantCache) ensureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", c.cfg.Collection, err)
	}
	return nil
}

// PointID returns the deterministic Qdrant point UUID for key.
func PointID(key CacheKey) string {
	return uuid.NewSHA1(pointNamespace, []byte(key.String())).String()
}

// Get reads the point for key and returns its vector.
func (c *QdrantCache) Get(ctx context.Context, key CacheKey) ([]float32, bool, error) {
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(key))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("qdrant: get failed: %w", err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}

	vec := points[0].GetVectors().GetVector().GetData()
	if len(vec) == 0 {
		return nil, false, nil
	}
	return vec, true, nil
}

// Put upserts the vector for key along with its identifying payload.
func (c *QdrantCache) Put(ctx context.Context, key CacheKey, vec []float32) error {
	wait := true
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(PointID(key)),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id":  key.DocumentID,
				"content_hash": key.ContentHash,
				"position":     int64(key.Position),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Client exposes the underlying client for readiness probes.
func (c *QdrantCache) Client() *qdrant.Client {
	return c.client
}

// Close closes the underlying Qdrant gRPC connection.
func (c *QdrantCache) Close() error {
	return c.client.Close()
}
