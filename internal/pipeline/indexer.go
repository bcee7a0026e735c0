package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/vectorindex"
)

// DefaultBatchSize is the indexer batch size when none is given.
const DefaultBatchSize = 10

// IndexOptions tune one indexing run.
type IndexOptions struct {
	BatchSize int
	// Candidates overrides the store query when non-nil.
	Candidates []*catalog.Item
	Progress   progressFunc
}

// IndexResult counts what one indexing run did.
type IndexResult struct {
	Candidates int
	Indexed    int
	Skipped    int
	Failed     int
}

// Indexer embeds catalog items and writes them to the tenant's vector index.
type Indexer struct {
	store       ItemStore
	embedder    ItemEmbedder
	indexes     IndexOpener
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewIndexer creates an Indexer. callTimeout bounds each vector upsert; zero
// disables it.
func NewIndexer(store ItemStore, embedder ItemEmbedder, indexes IndexOpener, callTimeout time.Duration, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:       store,
		embedder:    embedder,
		indexes:     indexes,
		callTimeout: callTimeout,
		logger:      logger,
		metrics:     metrics.New(),
		now:         time.Now,
	}
}

// IndexPending indexes every candidate in serial batches. Item failures are
// recorded on the item and never abort the run; only setup errors and
// cancellation are returned.
func (ix *Indexer) IndexPending(ctx context.Context, cfg *catalog.TenantConfig, opts IndexOptions) (*IndexResult, error) {
	progress := opts.Progress
	if progress == nil {
		progress = noProgress
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	idx, err := ix.indexes.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	candidates := opts.Candidates
	if candidates == nil {
		candidates, err = ix.store.ListIndexCandidates(ctx, cfg.TenantID, catalog.IndexCandidateStatuses)
		if err != nil {
			return nil, fmt.Errorf("listing index candidates: %w", err)
		}
	}

	res := &IndexResult{Candidates: len(candidates)}
	if len(candidates) == 0 {
		progress(catalog.JobComplete, 100, "No items need indexing")
		return res, nil
	}

	namespace := cfg.Namespace()
	ix.logger.Info("indexing catalog", "tenant", cfg.TenantID, "index", idx.Name(),
		"namespace", namespace, "candidates", len(candidates), "batch_size", batchSize)

	done := 0
	for start := 0; start < len(candidates); start += batchSize {
		end := min(start+batchSize, len(candidates))
		for _, c := range candidates[start:end] {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			switch ix.indexOne(ctx, idx, namespace, c, progress, percent(done, len(candidates))) {
			case "indexed":
				res.Indexed++
			case "skipped":
				res.Skipped++
			default:
				res.Failed++
			}
			done++
		}
		progress(catalog.JobUpserting, percent(done, len(candidates)),
			fmt.Sprintf("Indexed %d of %d items", done, len(candidates)))
	}

	ix.logger.Info("catalog indexing finished", "tenant", cfg.TenantID,
		"indexed", res.Indexed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// indexOne runs one item through the index state machine and returns
// "indexed", "skipped", or "failed".
func (ix *Indexer) indexOne(ctx context.Context, idx vectorindex.Index, namespace string, candidate *catalog.Item, progress progressFunc, pct int) string {
	it, err := ix.store.GetItem(ctx, candidate.TenantID, candidate.ID)
	if err != nil {
		return ix.fail(ctx, candidate, fmt.Errorf("reloading item: %w", err))
	}
	if it == nil {
		ix.logger.Debug("index candidate vanished", "tenant", candidate.TenantID, "item", candidate.ExternalItemID)
		ix.metrics.ItemIndexed("skipped")
		return "skipped"
	}
	if catalog.SkipIndexing(it) {
		ix.logger.Debug("item already indexed", "tenant", it.TenantID, "item", it.ExternalItemID)
		ix.metrics.ItemIndexed("skipped")
		return "skipped"
	}

	progress(catalog.JobVectorizing, pct, "Vectorizing "+it.Title)
	if err := ix.store.SetIndexStatus(ctx, it.ID, catalog.IndexVectorizing); err != nil {
		return ix.fail(ctx, it, err)
	}
	emb, err := ix.embedder.Embed(ctx, it)
	if err != nil {
		return ix.fail(ctx, it, err)
	}

	progress(catalog.JobUpserting, pct, "Upserting "+it.Title)
	if err := ix.store.SetIndexStatus(ctx, it.ID, catalog.IndexUpserting); err != nil {
		return ix.fail(ctx, it, err)
	}

	now := ix.now()
	vectorID := catalog.VectorIDFor(it.ExternalItemID)
	rec := vectorindex.Record{
		ID:       vectorID,
		Values:   emb.Vector,
		Metadata: vectorindex.NewMetadata(it, emb.Description, now),
	}
	if err := ix.upsert(ctx, idx, namespace, rec); err != nil {
		return ix.fail(ctx, it, err)
	}

	if err := ix.store.MarkIndexed(ctx, it.ID, vectorID, catalog.ContentHash(it), now); err != nil {
		return ix.fail(ctx, it, err)
	}
	if emb.TextOnly() {
		ix.logger.Debug("item indexed from text only", "tenant", it.TenantID, "item", it.ExternalItemID)
	}
	ix.metrics.ItemIndexed("indexed")
	return "indexed"
}

func (ix *Indexer) upsert(ctx context.Context, idx vectorindex.Index, namespace string, rec vectorindex.Record) error {
	callCtx := ctx
	if ix.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, ix.callTimeout)
		defer cancel()
	}
	start := time.Now()
	err := idx.Upsert(callCtx, namespace, []vectorindex.Record{rec})
	ix.metrics.ProviderCall("vector_upsert", err, time.Since(start))
	if err != nil {
		return &catalog.VectorUpsertError{Namespace: namespace, VectorID: rec.ID, Err: err}
	}
	return nil
}

// fail records the error on the item. The write ignores cancellation so an
// item is never left in vectorizing or upserting.
func (ix *Indexer) fail(ctx context.Context, it *catalog.Item, err error) string {
	ix.logger.Warn("item indexing failed", "tenant", it.TenantID, "item", it.ExternalItemID, "error", err)
	ix.metrics.ItemIndexed("failed")
	if merr := ix.store.MarkIndexFailed(context.WithoutCancel(ctx), it.ID, err.Error()); merr != nil {
		ix.logger.Error("recording index failure", "tenant", it.TenantID, "item", it.ExternalItemID, "error", merr)
	}
	return "failed"
}
