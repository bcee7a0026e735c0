// Package vectorindex writes item vectors with typed metadata into a
// tenant-scoped vector index namespace.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

// NoDescription is stored when an item has no AI-generated image description.
const NoDescription = "No description available"

// Metadata is the payload stored with every vector.
type Metadata struct {
	TenantID         string    `json:"tenant_id"`
	ExternalItemID   string    `json:"external_item_id"`
	Title            string    `json:"title"`
	Handle           string    `json:"handle,omitempty"`
	Price            float64   `json:"price"`
	Category         string    `json:"category,omitempty"`
	Tags             []string  `json:"tags"`
	URL              string    `json:"url,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	ImageDescription string    `json:"image_description"`
	IndexedAt        time.Time `json:"indexed_at"`
}

// NewMetadata builds the vector payload for an item.
func NewMetadata(it *catalog.Item, description string, indexedAt time.Time) Metadata {
	if description == "" {
		description = NoDescription
	}
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return Metadata{
		TenantID:         it.TenantID,
		ExternalItemID:   it.ExternalItemID,
		Title:            it.Title,
		Handle:           it.Handle,
		Price:            it.Price,
		Category:         it.Category,
		Tags:             tags,
		URL:              it.URL,
		ImageURL:         it.ImageURL,
		ImageDescription: description,
		IndexedAt:        indexedAt.UTC(),
	}
}

// Record is one vector upsert.
type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Index accepts vector upserts. Upserting an existing id replaces it.
type Index interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Name() string
}

// Backend names.
const (
	BackendPgvector = "pgvector"
	BackendQdrant   = "qdrant"
)

// Factory opens the configured backend for a tenant.
type Factory struct {
	backend string
	db      *store.DB
	qdrant  *qdrantPool
	logger  *slog.Logger
}

// NewFactory creates a Factory for the named backend. db is required for pgvector.
func NewFactory(backend string, db *store.DB, logger *slog.Logger) (*Factory, error) {
	switch backend {
	case BackendPgvector:
		if db == nil {
			return nil, fmt.Errorf("pgvector backend requires a database")
		}
	case BackendQdrant:
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
	return &Factory{
		backend: backend,
		db:      db,
		qdrant:  newQdrantPool(),
		logger:  logger,
	}, nil
}

// Backend returns the backend name.
func (f *Factory) Backend() string {
	return f.backend
}

// Configured reports whether the tenant has what the backend needs.
func (f *Factory) Configured(cfg *catalog.TenantConfig) bool {
	return f.check(cfg) == nil
}

func (f *Factory) check(cfg *catalog.TenantConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.VectorIndexName) == "" {
		return fmt.Errorf("vector index name: %w", catalog.ErrNotConfigured)
	}
	if f.backend == BackendQdrant && strings.TrimSpace(cfg.VectorEnvironment) == "" {
		return fmt.Errorf("vector environment: %w", catalog.ErrNotConfigured)
	}
	return nil
}

// Open returns the tenant's index or an error wrapping catalog.ErrNotConfigured.
func (f *Factory) Open(ctx context.Context, cfg *catalog.TenantConfig) (Index, error) {
	if err := f.check(cfg); err != nil {
		return nil, err
	}
	switch f.backend {
	case BackendQdrant:
		client, err := f.qdrant.get(cfg.VectorEnvironment, cfg.VectorAPIKey)
		if err != nil {
			return nil, err
		}
		return &QdrantIndex{client: client, collection: cfg.VectorIndexName, logger: f.logger}, nil
	default:
		return NewPgvectorIndex(f.db, cfg.VectorIndexName), nil
	}
}

// Close releases backend connections.
func (f *Factory) Close() error {
	return f.qdrant.close()
}
