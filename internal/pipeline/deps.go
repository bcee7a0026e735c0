// Package pipeline imports tenant catalogs from the commerce source and
// indexes changed items into the tenant's vector index, one job per tenant.
package pipeline

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/commerce"
	"github.com/MikeSquared-Agency/curator/internal/semantic"
	"github.com/MikeSquared-Agency/curator/internal/store"
	"github.com/MikeSquared-Agency/curator/internal/vectorindex"
)

// ItemStore abstracts catalog item persistence.
type ItemStore interface {
	UpsertImported(ctx context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, at time.Time) error
	RecordImportFailure(ctx context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, msg string) error
	GetItem(ctx context.Context, tenantID, id string) (*catalog.Item, error)
	ListIndexCandidates(ctx context.Context, tenantID string, statuses []catalog.IndexStatus) ([]*catalog.Item, error)
	SetIndexStatus(ctx context.Context, id string, status catalog.IndexStatus) error
	MarkIndexed(ctx context.Context, id, vectorID, contentHash string, at time.Time) error
	MarkIndexFailed(ctx context.Context, id, msg string) error
	ResetForReindex(ctx context.Context, tenantID string, ids []string) ([]*catalog.Item, error)
	ResetFailed(ctx context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error)
}

// TenantConfigs reads tenant configuration. A missing tenant is nil, nil.
type TenantConfigs interface {
	Get(ctx context.Context, tenantID string) (*catalog.TenantConfig, error)
}

// Source pages through a commerce catalog.
type Source interface {
	ListItems(ctx context.Context, pageSize int, cursor string) (*commerce.Page, error)
	CountItems(ctx context.Context) (int, error)
	Domain() string
}

// SourceFactory builds the commerce source for a configured tenant.
type SourceFactory func(cfg *catalog.TenantConfig) Source

// ShopifySources builds Shopify clients from tenant credentials.
func ShopifySources(cfg *catalog.TenantConfig) Source {
	return commerce.NewClient(cfg.CommerceDomain, cfg.CommerceToken)
}

// ItemEmbedder produces a combined vector for an item.
type ItemEmbedder interface {
	Embed(ctx context.Context, it *catalog.Item) (*semantic.Result, error)
}

// IndexOpener resolves a tenant's vector index.
type IndexOpener interface {
	Configured(cfg *catalog.TenantConfig) bool
	Open(ctx context.Context, cfg *catalog.TenantConfig) (vectorindex.Index, error)
}

// RunRecorder persists job history.
type RunRecorder interface {
	Start(ctx context.Context, r *store.SyncRun) error
	Finish(ctx context.Context, r *store.SyncRun) error
}

// Sink observes job progress and outcomes. Calls are made inline from the
// job and must not block.
type Sink interface {
	Progress(ev catalog.ProgressEvent)
	Completed(s catalog.JobSummary)
	Failed(s catalog.JobSummary)
}

// progressFunc receives phase-local progress in 0..100.
type progressFunc func(stage catalog.JobStatus, pct int, msg string)

func noProgress(catalog.JobStatus, int, string) {}
