package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

// Share of overall job progress owned by the import phase of a sync.
const importShare = 70

// DefaultErrorRetention is how long a failed job stays observable.
const DefaultErrorRetention = 10 * time.Second

// Options configure one sync job.
type Options struct {
	AutoIndex  bool
	BatchSize  int
	OnProgress catalog.ProgressFunc
}

// Deps are the collaborators of an Orchestrator. Runs and Sink are optional.
type Deps struct {
	Tenants  TenantConfigs
	Items    ItemStore
	Sources  SourceFactory
	Indexes  IndexOpener
	Importer *Importer
	Indexer  *Indexer
	Registry Registry
	Runs     RunRecorder
	Sink     Sink
	Logger   *slog.Logger
}

// Orchestrator runs at most one job per tenant and kind, sequencing import
// then indexing and keeping job state in the Registry.
type Orchestrator struct {
	tenants   TenantConfigs
	items     ItemStore
	sources   SourceFactory
	indexes   IndexOpener
	importer  *Importer
	indexer   *Indexer
	registry  Registry
	runs      RunRecorder
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	retention time.Duration

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	running map[string]*job
}

// NewOrchestrator creates an Orchestrator. retention is how long a failed
// job's state is kept; zero uses DefaultErrorRetention.
func NewOrchestrator(d Deps, retention time.Duration) *Orchestrator {
	if retention <= 0 {
		retention = DefaultErrorRetention
	}
	if d.Sources == nil {
		d.Sources = ShopifySources
	}
	if d.Registry == nil {
		d.Registry = NewMemoryRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		tenants:    d.Tenants,
		items:      d.Items,
		sources:    d.Sources,
		indexes:    d.Indexes,
		importer:   d.Importer,
		indexer:    d.Indexer,
		registry:   d.Registry,
		runs:       d.Runs,
		sink:       d.Sink,
		logger:     d.Logger,
		metrics:    metrics.New(),
		retention:  retention,
		baseCtx:    ctx,
		cancelBase: cancel,
		running:    map[string]*job{},
	}
}

// StartSync imports the tenant's catalog and, when requested and configured,
// indexes it. It blocks until the job finishes.
func (o *Orchestrator) StartSync(ctx context.Context, tenantID string, opts Options) (*catalog.JobSummary, error) {
	j, cfg, err := o.beginSync(ctx, ctx, tenantID, opts)
	if err != nil {
		return nil, err
	}
	return o.execute(j, func() error { return o.runSync(j, cfg, opts) })
}

// Go performs the same checks as StartSync synchronously, then runs the job
// on a supervised goroutine. The job outlives ctx and is cancelled by
// StopSync or Shutdown.
func (o *Orchestrator) Go(ctx context.Context, tenantID string, opts Options) (*Task, error) {
	j, cfg, err := o.beginSync(ctx, o.baseCtx, tenantID, opts)
	if err != nil {
		return nil, err
	}
	return o.spawn(j, func() error { return o.runSync(j, cfg, opts) }), nil
}

// ManualReindex resets the selected items, or every active in-stock item
// when ids is empty, to pending and indexes them. It runs under its own job
// key so it does not collide with the tenant's sync job.
func (o *Orchestrator) ManualReindex(ctx context.Context, tenantID string, ids []string, batchSize int, onProgress catalog.ProgressFunc) (*catalog.JobSummary, error) {
	j, cfg, err := o.beginReindex(ctx, ctx, tenantID, onProgress)
	if err != nil {
		return nil, err
	}
	return o.execute(j, func() error { return o.runReindex(j, cfg, ids, batchSize) })
}

// GoReindex is ManualReindex on a supervised goroutine.
func (o *Orchestrator) GoReindex(ctx context.Context, tenantID string, ids []string, batchSize int) (*Task, error) {
	j, cfg, err := o.beginReindex(ctx, o.baseCtx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	return o.spawn(j, func() error { return o.runReindex(j, cfg, ids, batchSize) }), nil
}

// RetryFailed resets failed items of the given phase to pending and clears
// their last error. Nothing is run; the next sync picks them up.
func (o *Orchestrator) RetryFailed(ctx context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	res, err := o.items.ResetFailed(ctx, tenantID, phase)
	if err != nil {
		return nil, fmt.Errorf("resetting failed items: %w", err)
	}
	o.logger.Info("failed items reset", "tenant", tenantID, "phase", phase,
		"import_reset", res.ImportReset, "index_reset", res.IndexReset)
	return res, nil
}

// Status returns the tenant's job state for kind, or nil when idle.
func (o *Orchestrator) Status(ctx context.Context, tenantID string, kind catalog.JobKind) (*catalog.JobState, error) {
	return o.registry.Get(ctx, catalog.JobKey(tenantID, kind))
}

// StopSync removes the job entry and cancels the job if it runs in this
// process. The item being processed finishes its current external call.
func (o *Orchestrator) StopSync(ctx context.Context, tenantID string, kind catalog.JobKind) error {
	key := catalog.JobKey(tenantID, kind)

	o.mu.Lock()
	j := o.running[key]
	o.mu.Unlock()

	if j == nil {
		st, err := o.registry.Get(ctx, key)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("no %s job for tenant %s: %w", kind, tenantID, catalog.ErrNotFound)
		}
	} else {
		j.stop()
	}
	if err := o.registry.Delete(ctx, key); err != nil {
		return err
	}
	o.logger.Info("job stopped", "tenant", tenantID, "kind", kind)
	return nil
}

// Wait blocks until every supervised task has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every supervised task and waits for them to return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancelBase()
	return o.Wait(ctx)
}

func (o *Orchestrator) beginSync(ctx, parent context.Context, tenantID string, opts Options) (*job, *catalog.TenantConfig, error) {
	cfg, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading tenant config: %w", err)
	}
	if err := cfg.RequireCommerce(); err != nil {
		return nil, nil, err
	}
	j, err := o.acquire(ctx, parent, tenantID, catalog.JobSync, opts.OnProgress)
	if err != nil {
		return nil, nil, err
	}
	return j, cfg, nil
}

func (o *Orchestrator) beginReindex(ctx, parent context.Context, tenantID string, onProgress catalog.ProgressFunc) (*job, *catalog.TenantConfig, error) {
	cfg, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading tenant config: %w", err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("tenant %s: %w", tenantID, catalog.ErrNotConfigured)
	}
	if !o.indexes.Configured(cfg) {
		return nil, nil, fmt.Errorf("tenant %s vector index: %w", tenantID, catalog.ErrNotConfigured)
	}
	j, err := o.acquire(ctx, parent, tenantID, catalog.JobReindex, onProgress)
	if err != nil {
		return nil, nil, err
	}
	return j, cfg, nil
}

func (o *Orchestrator) acquire(ctx, parent context.Context, tenantID string, kind catalog.JobKind, onProgress catalog.ProgressFunc) (*job, error) {
	now := time.Now()
	state := catalog.JobState{
		JobID:     uuid.New().String(),
		TenantID:  tenantID,
		Kind:      kind,
		Status:    catalog.JobDownloading,
		Message:   "Starting",
		StartedAt: now,
		UpdatedAt: now,
	}
	key := catalog.JobKey(tenantID, kind)
	ok, err := o.registry.Acquire(ctx, key, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tenant %s %s job: %w", tenantID, kind, catalog.ErrAlreadyRunning)
	}

	jctx, cancel := context.WithCancel(parent)
	j := &job{
		o:          o,
		key:        key,
		state:      state,
		onProgress: onProgress,
		ctx:        jctx,
		cancel:     cancel,
		summary: catalog.JobSummary{
			TenantID: tenantID,
			JobID:    state.JobID,
			Kind:     kind,
		},
	}

	o.mu.Lock()
	o.running[key] = j
	o.mu.Unlock()

	o.metrics.JobStarted(string(kind))
	o.logger.Info("job started", "tenant", tenantID, "kind", kind, "job", state.JobID)
	if o.runs != nil {
		run := &store.SyncRun{ID: state.JobID, TenantID: tenantID, Kind: kind, Status: state.Status, StartedAt: now}
		if err := o.runs.Start(ctx, run); err != nil {
			o.logger.Warn("recording run start", "tenant", tenantID, "job", state.JobID, "error", err)
		}
	}
	return j, nil
}

func (o *Orchestrator) runSync(j *job, cfg *catalog.TenantConfig, opts Options) error {
	indexConfigured := o.indexes.Configured(cfg)
	initial := catalog.IndexNotConfigured
	if indexConfigured {
		initial = catalog.IndexPending
	}

	ires, err := o.importer.Import(j.ctx, cfg.TenantID, o.sources(cfg), initial, j.scaled(0, importShare))
	if ires != nil {
		j.summary.Imported = ires.Imported
		j.summary.ImportFailed = ires.Failed
	}
	if err != nil {
		return fmt.Errorf("importing catalog: %w", err)
	}

	switch {
	case !opts.AutoIndex:
	case !indexConfigured:
		o.logger.Info("vector index not configured, skipping indexing", "tenant", cfg.TenantID)
	default:
		xres, err := o.indexer.IndexPending(j.ctx, cfg, IndexOptions{
			BatchSize: opts.BatchSize,
			Progress:  j.scaled(importShare, 100),
		})
		if xres != nil {
			j.summary.Indexed = xres.Indexed
			j.summary.IndexFailed = xres.Failed
			j.summary.Skipped = xres.Skipped
		}
		if err != nil {
			return fmt.Errorf("indexing catalog: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) runReindex(j *job, cfg *catalog.TenantConfig, ids []string, batchSize int) error {
	j.report(catalog.JobProcessing, 0, "Selecting items for reindex")
	items, err := o.items.ResetForReindex(j.ctx, cfg.TenantID, ids)
	if err != nil {
		return fmt.Errorf("resetting items for reindex: %w", err)
	}
	if items == nil {
		items = []*catalog.Item{}
	}
	o.logger.Info("manual reindex", "tenant", cfg.TenantID, "requested", len(ids), "selected", len(items))

	xres, err := o.indexer.IndexPending(j.ctx, cfg, IndexOptions{
		BatchSize:  batchSize,
		Candidates: items,
		Progress:   j.scaled(0, 100),
	})
	if xres != nil {
		j.summary.Indexed = xres.Indexed
		j.summary.IndexFailed = xres.Failed
		j.summary.Skipped = xres.Skipped
	}
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}
	return nil
}

// execute runs fn inline and finishes the job.
func (o *Orchestrator) execute(j *job, fn func() error) (*catalog.JobSummary, error) {
	err := supervise(fn)
	summary := j.finish(err)
	return summary, err
}

// spawn runs fn on a tracked goroutine.
func (o *Orchestrator) spawn(j *job, fn func() error) *Task {
	t := &Task{
		JobID:    j.state.JobID,
		TenantID: j.state.TenantID,
		Kind:     j.state.Kind,
		done:     make(chan struct{}),
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := supervise(fn)
		t.complete(j.finish(err), err)
	}()
	return t
}

// supervise converts a panic in fn into an error.
func supervise(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn()
}

func (o *Orchestrator) forget(j *job) {
	o.mu.Lock()
	if o.running[j.key] == j {
		delete(o.running, j.key)
	}
	o.mu.Unlock()
}

// job is one running job in this process.
type job struct {
	o          *Orchestrator
	key        string
	onProgress catalog.ProgressFunc
	ctx        context.Context
	cancel     context.CancelFunc
	summary    catalog.JobSummary

	mu      sync.Mutex
	state   catalog.JobState
	stopped bool
}

// scaled maps phase-local progress 0..100 onto lo..hi of the job.
func (j *job) scaled(lo, hi int) progressFunc {
	return func(stage catalog.JobStatus, pct int, msg string) {
		j.report(stage, lo+pct*(hi-lo)/100, msg)
	}
}

// report updates job state and notifies observers. Progress never moves
// backwards, and a stopped job no longer writes to the registry.
func (j *job) report(stage catalog.JobStatus, pct int, msg string) {
	j.mu.Lock()
	if pct < j.state.Progress {
		pct = j.state.Progress
	}
	j.state.Status = stage
	j.state.Progress = pct
	j.state.Message = msg
	j.state.UpdatedAt = time.Now()
	state := j.state
	if !j.stopped {
		if err := j.o.registry.Set(context.WithoutCancel(j.ctx), j.key, state); err != nil {
			j.o.logger.Warn("updating job state", "tenant", state.TenantID, "job", state.JobID, "error", err)
		}
	}
	j.mu.Unlock()

	j.emit(state)
}

func (j *job) emit(state catalog.JobState) {
	ev := catalog.ProgressEvent{
		TenantID: state.TenantID,
		JobID:    state.JobID,
		Kind:     state.Kind,
		Stage:    state.Status,
		Message:  state.Message,
		Progress: state.Progress,
	}
	if j.onProgress != nil {
		j.onProgress(ev)
	}
	if j.o.sink != nil {
		j.o.sink.Progress(ev)
	}
}

func (j *job) stop() {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	j.cancel()
}

// finish settles job state: success removes it at once, failure keeps it
// for the retention window so a poll can observe the error.
func (j *job) finish(err error) *catalog.JobSummary {
	o := j.o
	bg := context.WithoutCancel(j.ctx)
	defer j.cancel()
	defer o.forget(j)

	j.mu.Lock()
	j.summary.Duration = time.Since(j.state.StartedAt)
	stopped := j.stopped
	if err == nil {
		j.state.Status = catalog.JobComplete
		j.state.Progress = 100
		j.state.Message = "Sync complete"
		if j.state.Kind == catalog.JobReindex {
			j.state.Message = "Reindex complete"
		}
	} else {
		j.state.Status = catalog.JobError
		j.state.Message = err.Error()
		j.summary.Error = err.Error()
	}
	j.state.UpdatedAt = time.Now()
	j.summary.Status = j.state.Status
	state := j.state
	summary := j.summary
	j.mu.Unlock()

	o.metrics.JobFinished(string(state.Kind), err, summary.Duration)
	o.recordRun(bg, state, summary)

	if err == nil {
		if rerr := o.registry.Release(bg, j.key, state.JobID); rerr != nil {
			o.logger.Warn("releasing job state", "tenant", state.TenantID, "job", state.JobID, "error", rerr)
		}
		j.emit(state)
		o.logger.Info("job finished", "tenant", state.TenantID, "kind", state.Kind, "job", state.JobID,
			"imported", summary.Imported, "indexed", summary.Indexed, "duration", summary.Duration)
		if o.sink != nil {
			o.sink.Completed(summary)
		}
		return &summary
	}

	if !stopped {
		if serr := o.registry.Set(bg, j.key, state); serr != nil {
			o.logger.Warn("storing job error", "tenant", state.TenantID, "job", state.JobID, "error", serr)
		}
		time.AfterFunc(o.retention, func() {
			if rerr := o.registry.Release(context.Background(), j.key, state.JobID); rerr != nil {
				o.logger.Warn("releasing failed job state", "tenant", state.TenantID, "job", state.JobID, "error", rerr)
			}
		})
	}
	j.emit(state)
	if errors.Is(err, context.Canceled) {
		o.logger.Info("job cancelled", "tenant", state.TenantID, "kind", state.Kind, "job", state.JobID)
	} else {
		o.logger.Error("job failed", "tenant", state.TenantID, "kind", state.Kind, "job", state.JobID, "error", err)
	}
	if o.sink != nil {
		o.sink.Failed(summary)
	}
	return &summary
}

func (o *Orchestrator) recordRun(ctx context.Context, state catalog.JobState, s catalog.JobSummary) {
	if o.runs == nil {
		return
	}
	finished := state.UpdatedAt
	run := &store.SyncRun{
		ID:           s.JobID,
		TenantID:     s.TenantID,
		Kind:         s.Kind,
		Status:       s.Status,
		Imported:     s.Imported,
		ImportFailed: s.ImportFailed,
		Indexed:      s.Indexed,
		IndexFailed:  s.IndexFailed,
		Skipped:      s.Skipped,
		Message:      state.Message,
		StartedAt:    state.StartedAt,
		FinishedAt:   &finished,
	}
	if err := o.runs.Finish(ctx, run); err != nil {
		o.logger.Warn("recording run finish", "tenant", s.TenantID, "job", s.JobID, "error", err)
	}
}
