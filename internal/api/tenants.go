package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/commerce"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

// TenantConfigStore reads and writes tenant configuration.
type TenantConfigStore interface {
	Get(ctx context.Context, tenantID string) (*catalog.TenantConfig, error)
	Put(ctx context.Context, cfg *catalog.TenantConfig) error
}

// ItemReader lists catalog items.
type ItemReader interface {
	ListItems(ctx context.Context, tenantID string, f catalog.ItemFilter) ([]*catalog.Item, error)
	CountByStatus(ctx context.Context, tenantID string) (*catalog.StatusCounts, error)
}

// RunReader lists sync run history.
type RunReader interface {
	List(ctx context.Context, tenantID string, limit int) ([]store.SyncRun, error)
}

// TenantHandler serves tenant configuration and catalog views.
type TenantHandler struct {
	tenants TenantConfigStore
	items   ItemReader
	runs    RunReader
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(tenants TenantConfigStore, items ItemReader, runs RunReader) *TenantHandler {
	return &TenantHandler{tenants: tenants, items: items, runs: runs}
}

// GetConfig returns the tenant configuration with secrets redacted.
func (h *TenantHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	cfg, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if cfg == nil {
		writeFailure(w, fmt.Errorf("tenant %s: %w", tenantID, catalog.ErrNotFound))
		return
	}
	writeSuccess(w, http.StatusOK, cfg.Redacted())
}

// PutConfig creates or replaces the tenant configuration. Omitted secrets
// keep their stored values.
func (h *TenantHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var cfg catalog.TenantConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}
	cfg.TenantID = tenantID
	if cfg.CommerceDomain != "" {
		cfg.CommerceDomain = commerce.NormalizeDomain(cfg.CommerceDomain)
	}

	existing, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if existing != nil {
		if cfg.CommerceToken == "" {
			cfg.CommerceToken = existing.CommerceToken
		}
		if cfg.VectorAPIKey == "" {
			cfg.VectorAPIKey = existing.VectorAPIKey
		}
	}

	if err := h.tenants.Put(r.Context(), &cfg); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, cfg.Redacted())
}

// ListItems returns a page of items filtered by import and index status.
func (h *TenantHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	q := r.URL.Query()

	f := catalog.ItemFilter{
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if v := q.Get("import_status"); v != "" {
		s := catalog.ImportStatus(v)
		f.ImportStatus = &s
	}
	if v := q.Get("index_status"); v != "" {
		s := catalog.IndexStatus(v)
		f.IndexStatus = &s
	}

	items, err := h.items.ListItems(r.Context(), tenantID, f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if items == nil {
		items = []*catalog.Item{}
	}
	writeSuccess(w, http.StatusOK, items)
}

// Stats returns item counts per import and index status.
func (h *TenantHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.items.CountByStatus(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, counts)
}

// Runs returns recent sync runs.
func (h *TenantHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context(), chi.URLParam(r, "tenantID"), queryInt(r.URL.Query().Get("limit"), 20))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if runs == nil {
		runs = []store.SyncRun{}
	}
	writeSuccess(w, http.StatusOK, runs)
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
