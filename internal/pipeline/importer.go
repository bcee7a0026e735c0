package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/commerce"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
)

// ImportPolicy decides what a failed item write does to the rest of the import.
type ImportPolicy string

const (
	// ImportIsolate records the failure on the item and continues.
	ImportIsolate ImportPolicy = "isolate"
	// ImportAbort stops the import at the first failed item.
	ImportAbort ImportPolicy = "abort"
)

// Valid reports whether p is a known policy.
func (p ImportPolicy) Valid() bool {
	return p == ImportIsolate || p == ImportAbort
}

// ImportResult counts what one import did.
type ImportResult struct {
	Total    int
	Imported int
	Failed   int
}

// Importer pages through a commerce source and upserts every item into the
// catalog store.
type Importer struct {
	store    ItemStore
	policy   ImportPolicy
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewImporter creates an Importer. An invalid policy falls back to isolate
// and pageSize is clamped to the source maximum.
func NewImporter(store ItemStore, policy ImportPolicy, pageSize int, logger *slog.Logger) *Importer {
	if !policy.Valid() {
		policy = ImportIsolate
	}
	if pageSize <= 0 || pageSize > commerce.MaxPageSize {
		pageSize = commerce.MaxPageSize
	}
	return &Importer{
		store:    store,
		policy:   policy,
		pageSize: pageSize,
		logger:   logger,
		metrics:  metrics.New(),
		now:      time.Now,
	}
}

// Import fetches the full catalog and upserts each item. initialIndex is the
// index status given to newly created records. Source errors always abort.
func (im *Importer) Import(ctx context.Context, tenantID string, src Source, initialIndex catalog.IndexStatus, progress progressFunc) (*ImportResult, error) {
	if progress == nil {
		progress = noProgress
	}
	res := &ImportResult{}

	progress(catalog.JobDownloading, 0, "Counting catalog items")
	total, err := src.CountItems(ctx)
	if err != nil {
		return res, &catalog.SourceFetchError{Op: "count", Err: err}
	}
	res.Total = total
	im.logger.Info("importing catalog", "tenant", tenantID, "domain", src.Domain(), "total", total, "policy", im.policy)

	cursor := ""
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := src.ListItems(ctx, im.pageSize, cursor)
		if err != nil {
			return res, &catalog.SourceFetchError{Op: "list", Err: err}
		}

		for i := range page.Items {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if err := im.importOne(ctx, tenantID, src.Domain(), &page.Items[i], initialIndex); err != nil {
				if im.policy == ImportAbort {
					return res, err
				}
				res.Failed++
			} else {
				res.Imported++
			}
			processed++
		}

		progress(catalog.JobProcessing, percent(processed, total),
			fmt.Sprintf("Imported %d of %d items", processed, max(total, processed)))

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	progress(catalog.JobProcessing, 100, fmt.Sprintf("Imported %d items, %d failed", res.Imported, res.Failed))
	im.logger.Info("catalog import finished", "tenant", tenantID, "imported", res.Imported, "failed", res.Failed)
	return res, nil
}

func (im *Importer) importOne(ctx context.Context, tenantID, domain string, raw *commerce.RawItem, initialIndex catalog.IndexStatus) error {
	it := raw.ToItem(tenantID, domain)
	it.ContentHash = catalog.ContentHash(it)

	err := im.store.UpsertImported(ctx, it, initialIndex, im.now())
	im.metrics.ItemImported(err)
	if err == nil {
		return nil
	}

	upsertErr := &catalog.ImportUpsertError{ExternalItemID: it.ExternalItemID, Err: err}
	im.logger.Warn("item import failed", "tenant", tenantID, "item", it.ExternalItemID, "error", err)
	if im.policy == ImportIsolate {
		if rerr := im.store.RecordImportFailure(context.WithoutCancel(ctx), it, initialIndex, upsertErr.Error()); rerr != nil {
			im.logger.Error("recording import failure", "tenant", tenantID, "item", it.ExternalItemID, "error", rerr)
		}
	}
	return upsertErr
}

// percent returns done/total in 0..100. An unknown total reports 0 until done.
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return done * 100 / total
}
