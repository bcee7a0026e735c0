package catalog

import (
	"fmt"
	"time"
)

// TenantConfig is the per-tenant credential and index configuration. The
// pipeline only reads it.
type TenantConfig struct {
	TenantID string `json:"tenant_id"`

	CommerceDomain string `json:"commerce_domain"`
	CommerceToken  string `json:"commerce_token,omitempty"`

	VectorAPIKey      string `json:"vector_api_key,omitempty"`
	VectorEnvironment string `json:"vector_environment"`
	VectorNamespace   string `json:"vector_namespace"`
	VectorIndexName   string `json:"vector_index_name"`

	AutoSync  bool      `json:"auto_sync"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommerceConfigured reports whether the import phase can run.
func (t *TenantConfig) CommerceConfigured() bool {
	return t != nil && t.CommerceDomain != "" && t.CommerceToken != ""
}

// RequireCommerce returns ErrNotConfigured when commerce credentials are missing.
func (t *TenantConfig) RequireCommerce() error {
	if !t.CommerceConfigured() {
		return fmt.Errorf("tenant commerce credentials: %w", ErrNotConfigured)
	}
	return nil
}

// Namespace is the vector index namespace for the tenant. It defaults to a
// tenant-scoped name when none is configured.
func (t *TenantConfig) Namespace() string {
	if t.VectorNamespace != "" {
		return t.VectorNamespace
	}
	return "tenant-" + t.TenantID
}

// Redacted returns a copy with secrets removed for display.
func (t TenantConfig) Redacted() TenantConfig {
	if t.CommerceToken != "" {
		t.CommerceToken = "********"
	}
	if t.VectorAPIKey != "" {
		t.VectorAPIKey = "********"
	}
	return t
}
