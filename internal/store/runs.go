package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// SyncRun is one recorded job execution.
type SyncRun struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Kind         catalog.JobKind   `json:"kind"`
	Status       catalog.JobStatus `json:"status"`
	Imported     int               `json:"imported"`
	ImportFailed int               `json:"import_failed"`
	Indexed      int               `json:"indexed"`
	IndexFailed  int               `json:"index_failed"`
	Skipped      int               `json:"skipped"`
	Message      string            `json:"message,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// RunStore records sync job history.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Start inserts a run in its initial state.
func (s *RunStore) Start(ctx context.Context, r *SyncRun) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO sync_runs (id, tenant_id, kind, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.TenantID, r.Kind, r.Status, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("writing sync run: %w", err)
	}
	return nil
}

// Finish stores the run's final status and counts.
func (s *RunStore) Finish(ctx context.Context, r *SyncRun) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE sync_runs SET status = $2, imported = $3, import_failed = $4, indexed = $5,
			index_failed = $6, skipped = $7, message = $8, finished_at = $9
		WHERE id = $1`,
		r.ID, r.Status, r.Imported, r.ImportFailed, r.Indexed, r.IndexFailed, r.Skipped, r.Message, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// List returns a tenant's most recent runs.
func (s *RunStore) List(ctx context.Context, tenantID string, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, tenant_id, kind, status, imported, import_failed, indexed, index_failed, skipped,
			message, started_at, finished_at
		FROM sync_runs WHERE tenant_id = $1
		ORDER BY started_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Kind, &r.Status, &r.Imported, &r.ImportFailed,
			&r.Indexed, &r.IndexFailed, &r.Skipped, &r.Message, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
