package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/encryption"
)

// TenantStore persists tenant configuration with credentials encrypted at rest.
type TenantStore struct {
	db  *DB
	enc *encryption.Encryptor
}

// NewTenantStore creates a new TenantStore.
func NewTenantStore(db *DB, enc *encryption.Encryptor) *TenantStore {
	return &TenantStore{db: db, enc: enc}
}

// Get returns the tenant's configuration with credentials decrypted.
// Returns nil, nil if the tenant has no configuration.
func (s *TenantStore) Get(ctx context.Context, tenantID string) (*catalog.TenantConfig, error) {
	var (
		cfg            catalog.TenantConfig
		tokenEnc, kEnc string
	)
	err := s.db.Pool.QueryRow(ctx, `
		SELECT tenant_id, commerce_domain, commerce_token_enc, vector_api_key_enc,
			vector_environment, vector_namespace, vector_index_name, auto_sync, created_at, updated_at
		FROM tenant_configs WHERE tenant_id = $1`, tenantID,
	).Scan(&cfg.TenantID, &cfg.CommerceDomain, &tokenEnc, &kEnc,
		&cfg.VectorEnvironment, &cfg.VectorNamespace, &cfg.VectorIndexName, &cfg.AutoSync,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting tenant config %s: %w", tenantID, err)
	}

	if cfg.CommerceToken, err = s.enc.Decrypt(tokenEnc); err != nil {
		return nil, fmt.Errorf("decrypting commerce token for %s: %w", tenantID, err)
	}
	if cfg.VectorAPIKey, err = s.enc.Decrypt(kEnc); err != nil {
		return nil, fmt.Errorf("decrypting vector api key for %s: %w", tenantID, err)
	}
	return &cfg, nil
}

// Put creates or replaces the tenant's configuration.
func (s *TenantStore) Put(ctx context.Context, cfg *catalog.TenantConfig) error {
	tokenEnc, err := s.enc.Encrypt(cfg.CommerceToken)
	if err != nil {
		return fmt.Errorf("encrypting commerce token: %w", err)
	}
	kEnc, err := s.enc.Encrypt(cfg.VectorAPIKey)
	if err != nil {
		return fmt.Errorf("encrypting vector api key: %w", err)
	}

	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO tenant_configs (tenant_id, commerce_domain, commerce_token_enc, vector_api_key_enc,
			vector_environment, vector_namespace, vector_index_name, auto_sync)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			commerce_domain = EXCLUDED.commerce_domain,
			commerce_token_enc = EXCLUDED.commerce_token_enc,
			vector_api_key_enc = EXCLUDED.vector_api_key_enc,
			vector_environment = EXCLUDED.vector_environment,
			vector_namespace = EXCLUDED.vector_namespace,
			vector_index_name = EXCLUDED.vector_index_name,
			auto_sync = EXCLUDED.auto_sync,
			updated_at = now()
		RETURNING created_at, updated_at`,
		cfg.TenantID, cfg.CommerceDomain, tokenEnc, kEnc,
		cfg.VectorEnvironment, cfg.VectorNamespace, cfg.VectorIndexName, cfg.AutoSync,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving tenant config %s: %w", cfg.TenantID, err)
	}
	return nil
}

// ListAutoSync returns the ids of tenants with auto sync enabled.
func (s *TenantStore) ListAutoSync(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT tenant_id FROM tenant_configs WHERE auto_sync ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("listing auto-sync tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
