package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MikeSquared-Agency/curator/internal/store"
)

// PgvectorIndex stores vectors in the catalog_vectors table.
type PgvectorIndex struct {
	db        *store.DB
	indexName string
}

// NewPgvectorIndex creates an index over the named logical index.
func NewPgvectorIndex(db *store.DB, indexName string) *PgvectorIndex {
	return &PgvectorIndex{db: db, indexName: indexName}
}

// Name returns the backend name.
func (p *PgvectorIndex) Name() string { return BackendPgvector }

// Upsert inserts or replaces the records in one transaction.
func (p *PgvectorIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	return p.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			meta, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling metadata %s: %w", r.ID, err)
			}
			if err := upsertVector(ctx, tx, p.indexName, namespace, r.ID, pgvector.NewVector(r.Values), meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertVector(ctx context.Context, db store.DBTX, indexName, namespace, id string, vec pgvector.Vector, meta []byte) error {
	_, err := db.Exec(ctx, `
		INSERT INTO catalog_vectors (index_name, namespace, vector_id, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (index_name, namespace, vector_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = now()`,
		indexName, namespace, id, vec, meta)
	if err != nil {
		return fmt.Errorf("upserting vector %s: %w", id, err)
	}
	return nil
}
