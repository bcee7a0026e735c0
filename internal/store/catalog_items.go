package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

const itemColumns = `id, tenant_id, external_item_id, title, handle, url, image_url, price, category, tags,
	description, item_status, inventory_quantity, inventory_tracked,
	import_status, import_last_sync_at, import_attempts,
	index_status, vector_id, index_last_sync_at, index_attempts,
	content_hash, last_error, created_at, updated_at`

// CatalogStore provides catalog item persistence.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func scanItem(row pgx.Row) (*catalog.Item, error) {
	it := &catalog.Item{}
	err := row.Scan(
		&it.ID, &it.TenantID, &it.ExternalItemID, &it.Title, &it.Handle, &it.URL, &it.ImageURL,
		&it.Price, &it.Category, &it.Tags, &it.Description, &it.ItemStatus,
		&it.InventoryQuantity, &it.InventoryTracked,
		&it.ImportStatus, &it.ImportLastSyncAt, &it.ImportAttempts,
		&it.IndexStatus, &it.VectorID, &it.IndexLastSyncAt, &it.IndexAttempts,
		&it.ContentHash, &it.LastError, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func collectItems(rows pgx.Rows) ([]*catalog.Item, error) {
	defer rows.Close()
	var items []*catalog.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning catalog item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// UpsertImported creates or updates the item keyed by (tenant, external id),
// stamping it synced with the given hash and incrementing import attempts.
// New rows start at initialIndex. An indexed row whose content hash changes
// is demoted to pending so the indexer picks it up again. it is refreshed
// from the stored row.
func (s *CatalogStore) UpsertImported(ctx context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, at time.Time) error {
	row := s.db.Pool.QueryRow(ctx, `
		INSERT INTO catalog_items (
			tenant_id, external_item_id, title, handle, url, image_url, price, category, tags,
			description, item_status, inventory_quantity, inventory_tracked,
			import_status, import_last_sync_at, import_attempts, index_status, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'synced', $14, 1, $15, $16)
		ON CONFLICT (tenant_id, external_item_id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			url = EXCLUDED.url,
			image_url = EXCLUDED.image_url,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			description = EXCLUDED.description,
			item_status = EXCLUDED.item_status,
			inventory_quantity = EXCLUDED.inventory_quantity,
			inventory_tracked = EXCLUDED.inventory_tracked,
			import_status = 'synced',
			import_last_sync_at = EXCLUDED.import_last_sync_at,
			import_attempts = catalog_items.import_attempts + 1,
			index_status = CASE
				WHEN catalog_items.index_status = 'indexed'
					AND catalog_items.content_hash <> EXCLUDED.content_hash THEN 'pending'
				WHEN catalog_items.index_status = 'not_configured'
					AND EXCLUDED.index_status = 'pending' THEN 'pending'
				ELSE catalog_items.index_status
			END,
			content_hash = EXCLUDED.content_hash,
			last_error = CASE WHEN catalog_items.import_status = 'failed' THEN '' ELSE catalog_items.last_error END,
			updated_at = now()
		RETURNING `+itemColumns,
		it.TenantID, it.ExternalItemID, it.Title, it.Handle, it.URL, it.ImageURL, it.Price,
		it.Category, nonNil(it.Tags), it.Description, it.ItemStatus, it.InventoryQuantity,
		it.InventoryTracked, at, initialIndex, it.ContentHash,
	)
	stored, err := scanItem(row)
	if err != nil {
		return fmt.Errorf("upserting catalog item %s: %w", it.ExternalItemID, err)
	}
	*it = *stored
	return nil
}

// RecordImportFailure marks the item's import failed with msg, creating a
// placeholder row when the item has never been imported.
func (s *CatalogStore) RecordImportFailure(ctx context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, msg string) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO catalog_items (tenant_id, external_item_id, title, import_status, import_attempts, index_status, last_error)
		VALUES ($1, $2, $3, 'failed', 1, $4, $5)
		ON CONFLICT (tenant_id, external_item_id) DO UPDATE SET
			import_status = 'failed',
			import_attempts = catalog_items.import_attempts + 1,
			last_error = EXCLUDED.last_error,
			updated_at = now()`,
		it.TenantID, it.ExternalItemID, it.Title, initialIndex, msg,
	)
	if err != nil {
		return fmt.Errorf("recording import failure %s: %w", it.ExternalItemID, err)
	}
	return nil
}

// GetItem fetches an item by internal id. Returns nil, nil if not found.
func (s *CatalogStore) GetItem(ctx context.Context, tenantID, id string) (*catalog.Item, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	it, err := scanItem(s.db.Pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE tenant_id = $1 AND id = $2`, tenantID, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting catalog item %s: %w", id, err)
	}
	return it, nil
}

// GetItemByExternalID fetches an item by its source id. Returns nil, nil if not found.
func (s *CatalogStore) GetItemByExternalID(ctx context.Context, tenantID, externalID string) (*catalog.Item, error) {
	it, err := scanItem(s.db.Pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE tenant_id = $1 AND external_item_id = $2`,
		tenantID, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting catalog item %s: %w", externalID, err)
	}
	return it, nil
}

// ListIndexCandidates returns synced items whose index status is one of statuses.
func (s *CatalogStore) ListIndexCandidates(ctx context.Context, tenantID string, statuses []catalog.IndexStatus) ([]*catalog.Item, error) {
	st := make([]string, len(statuses))
	for i, v := range statuses {
		st[i] = string(v)
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM catalog_items
		WHERE tenant_id = $1 AND import_status = 'synced' AND index_status = ANY($2)
		ORDER BY created_at, id`, tenantID, st)
	if err != nil {
		return nil, fmt.Errorf("listing index candidates: %w", err)
	}
	return collectItems(rows)
}

// SetIndexStatus moves the item to an intermediate index status.
func (s *CatalogStore) SetIndexStatus(ctx context.Context, id string, status catalog.IndexStatus) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE catalog_items SET index_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting index status %s: %w", id, err)
	}
	return nil
}

// MarkIndexed records a successful vector upsert.
func (s *CatalogStore) MarkIndexed(ctx context.Context, id, vectorID, contentHash string, at time.Time) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE catalog_items SET
			index_status = 'indexed',
			vector_id = $2,
			content_hash = $3,
			index_last_sync_at = $4,
			index_attempts = index_attempts + 1,
			last_error = '',
			updated_at = now()
		WHERE id = $1`, id, vectorID, contentHash, at)
	if err != nil {
		return fmt.Errorf("marking indexed %s: %w", id, err)
	}
	return nil
}

// MarkIndexFailed records a failed indexing attempt.
func (s *CatalogStore) MarkIndexFailed(ctx context.Context, id, msg string) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE catalog_items SET
			index_status = 'failed',
			last_error = $2,
			index_attempts = index_attempts + 1,
			updated_at = now()
		WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("marking index failed %s: %w", id, err)
	}
	return nil
}

// ResetForReindex sets index status pending on the selected synced items and
// returns them. ids match either internal or external ids; with no ids every
// active, in-stock synced item is selected.
func (s *CatalogStore) ResetForReindex(ctx context.Context, tenantID string, ids []string) ([]*catalog.Item, error) {
	rows, err := s.db.Pool.Query(ctx, `
		UPDATE catalog_items SET index_status = 'pending', updated_at = now()
		WHERE tenant_id = $1 AND import_status = 'synced' AND (
			(cardinality($2::text[]) = 0 AND item_status = 'active'
				AND (NOT inventory_tracked OR inventory_quantity > 0))
			OR id::text = ANY($2)
			OR external_item_id = ANY($2))
		RETURNING `+itemColumns, tenantID, nonNil(ids))
	if err != nil {
		return nil, fmt.Errorf("resetting items for reindex: %w", err)
	}
	return collectItems(rows)
}

// ResetFailed moves failed items back to pending for the given phase and
// clears their last error.
func (s *CatalogStore) ResetFailed(ctx context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error) {
	res := &catalog.RetryResult{}
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if phase.Includes(catalog.PhaseImport) {
			tag, err := tx.Exec(ctx, `
				UPDATE catalog_items SET import_status = 'pending', last_error = '', updated_at = now()
				WHERE tenant_id = $1 AND import_status = 'failed'`, tenantID)
			if err != nil {
				return err
			}
			res.ImportReset = int(tag.RowsAffected())
		}
		if phase.Includes(catalog.PhaseIndex) {
			tag, err := tx.Exec(ctx, `
				UPDATE catalog_items SET index_status = 'pending', last_error = '', updated_at = now()
				WHERE tenant_id = $1 AND index_status = 'failed'`, tenantID)
			if err != nil {
				return err
			}
			res.IndexReset = int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resetting failed items: %w", err)
	}
	return res, nil
}

// ListItems returns a page of a tenant's items.
func (s *CatalogStore) ListItems(ctx context.Context, tenantID string, f catalog.ItemFilter) ([]*catalog.Item, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	query := `SELECT ` + itemColumns + ` FROM catalog_items WHERE tenant_id = $1`
	args := []any{tenantID}
	argN := 2

	if f.ImportStatus != nil {
		query += fmt.Sprintf(" AND import_status = $%d", argN)
		args = append(args, *f.ImportStatus)
		argN++
	}
	if f.IndexStatus != nil {
		query += fmt.Sprintf(" AND index_status = $%d", argN)
		args = append(args, *f.IndexStatus)
		argN++
	}

	query += fmt.Sprintf(" ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing catalog items: %w", err)
	}
	return collectItems(rows)
}

// CountByStatus summarizes a tenant's items by import and index status.
func (s *CatalogStore) CountByStatus(ctx context.Context, tenantID string) (*catalog.StatusCounts, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT import_status, index_status, count(*)
		FROM catalog_items WHERE tenant_id = $1
		GROUP BY import_status, index_status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting catalog items: %w", err)
	}
	defer rows.Close()

	counts := &catalog.StatusCounts{
		Import: map[catalog.ImportStatus]int{},
		Index:  map[catalog.IndexStatus]int{},
	}
	for rows.Next() {
		var (
			imp catalog.ImportStatus
			idx catalog.IndexStatus
			n   int
		)
		if err := rows.Scan(&imp, &idx, &n); err != nil {
			return nil, fmt.Errorf("scanning counts: %w", err)
		}
		counts.Total += n
		counts.Import[imp] += n
		counts.Index[idx] += n
	}
	return counts, rows.Err()
}
