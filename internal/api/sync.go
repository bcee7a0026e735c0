package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/pipeline"
)

// Jobs is the orchestrator surface the API drives.
type Jobs interface {
	Go(ctx context.Context, tenantID string, opts pipeline.Options) (*pipeline.Task, error)
	GoReindex(ctx context.Context, tenantID string, ids []string, batchSize int) (*pipeline.Task, error)
	Status(ctx context.Context, tenantID string, kind catalog.JobKind) (*catalog.JobState, error)
	StopSync(ctx context.Context, tenantID string, kind catalog.JobKind) error
	RetryFailed(ctx context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error)
}

// SyncHandler starts, observes, and stops tenant jobs.
type SyncHandler struct {
	jobs      Jobs
	batchSize int
}

// NewSyncHandler creates a SyncHandler. batchSize applies when a request
// does not set one.
func NewSyncHandler(jobs Jobs, batchSize int) *SyncHandler {
	return &SyncHandler{jobs: jobs, batchSize: batchSize}
}

type syncRequest struct {
	AutoIndex *bool `json:"auto_index"`
	BatchSize int   `json:"batch_size"`
}

type reindexRequest struct {
	ItemIDs   []string `json:"item_ids"`
	BatchSize int      `json:"batch_size"`
}

type retryRequest struct {
	Phase catalog.Phase `json:"phase"`
}

// StartSync submits a sync job. auto_index defaults to true.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}
	opts := pipeline.Options{AutoIndex: true, BatchSize: h.batchSize}
	if req.AutoIndex != nil {
		opts.AutoIndex = *req.AutoIndex
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}

	task, err := h.jobs.Go(r.Context(), tenantID, opts)
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.writeAccepted(w, r, task)
}

// SyncStatus returns the running sync job or an idle state.
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, catalog.JobSync)
}

// StopSync removes the sync job and cancels it.
func (h *SyncHandler) StopSync(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := h.jobs.StopSync(r.Context(), tenantID, catalog.JobSync); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "stopped": true})
}

// StartReindex submits a manual reindex job.
func (h *SyncHandler) StartReindex(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req reindexRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}
	batchSize := h.batchSize
	if req.BatchSize > 0 {
		batchSize = req.BatchSize
	}

	task, err := h.jobs.GoReindex(r.Context(), tenantID, req.ItemIDs, batchSize)
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.writeAccepted(w, r, task)
}

// ReindexStatus returns the running reindex job or an idle state.
func (h *SyncHandler) ReindexStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, catalog.JobReindex)
}

// Retry resets failed items for a phase. phase defaults to all.
func (h *SyncHandler) Retry(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	req := retryRequest{Phase: catalog.PhaseAll}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
		return
	}
	if !req.Phase.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_PHASE", "phase must be one of import, index, all")
		return
	}

	res, err := h.jobs.RetryFailed(r.Context(), tenantID, req.Phase)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *SyncHandler) status(w http.ResponseWriter, r *http.Request, kind catalog.JobKind) {
	tenantID := chi.URLParam(r, "tenantID")
	st, err := h.jobs.Status(r.Context(), tenantID, kind)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if st == nil {
		st = &catalog.JobState{TenantID: tenantID, Kind: kind, Status: catalog.JobIdle}
	}
	writeSuccess(w, http.StatusOK, st)
}

// writeAccepted responds with the job's current state. A job that already
// finished successfully has no state left and is reported complete.
func (h *SyncHandler) writeAccepted(w http.ResponseWriter, r *http.Request, task *pipeline.Task) {
	st, err := h.jobs.Status(r.Context(), task.TenantID, task.Kind)
	if err != nil || st == nil || st.JobID != task.JobID {
		now := time.Now()
		st = &catalog.JobState{
			JobID:     task.JobID,
			TenantID:  task.TenantID,
			Kind:      task.Kind,
			Status:    catalog.JobComplete,
			Progress:  100,
			StartedAt: now,
			UpdatedAt: now,
		}
	}
	writeSuccess(w, http.StatusAccepted, st)
}
