package catalog

import "time"

// JobStatus is the phase of a running sync job.
type JobStatus string

const (
	JobIdle        JobStatus = "idle"
	JobDownloading JobStatus = "downloading"
	JobProcessing  JobStatus = "processing"
	JobVectorizing JobStatus = "vectorizing"
	JobUpserting   JobStatus = "upserting"
	JobComplete    JobStatus = "complete"
	JobError       JobStatus = "error"
)

// JobKind separates the default auto-sync job from manual reindex jobs.
type JobKind string

const (
	JobSync    JobKind = "sync"
	JobReindex JobKind = "reindex"
)

// JobState is the ephemeral state of one tenant job while it runs.
type JobState struct {
	JobID     string    `json:"job_id"`
	TenantID  string    `json:"tenant_id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobKey is the registry key for a tenant job of the given kind.
func JobKey(tenantID string, kind JobKind) string {
	if kind == JobReindex {
		return tenantID + ":reindex"
	}
	return tenantID
}

// ProgressEvent is one progress report from a running job.
type ProgressEvent struct {
	TenantID string    `json:"tenant_id"`
	JobID    string    `json:"job_id"`
	Kind     JobKind   `json:"kind"`
	Stage    JobStatus `json:"stage"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
}

// ProgressFunc receives progress inline from the job's execution path.
// Implementations must return quickly.
type ProgressFunc func(ProgressEvent)

// Phase selects which sub-state machine a retry applies to.
type Phase string

const (
	PhaseImport Phase = "import"
	PhaseIndex  Phase = "index"
	PhaseAll    Phase = "all"
)

// Includes reports whether p covers the given single phase.
func (p Phase) Includes(single Phase) bool {
	return p == PhaseAll || p == single
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseImport, PhaseIndex, PhaseAll:
		return true
	}
	return false
}

// RetryResult counts records reset by a retry.
type RetryResult struct {
	ImportReset int `json:"import_reset"`
	IndexReset  int `json:"index_reset"`
}

// JobSummary is the outcome of a finished job.
type JobSummary struct {
	TenantID     string        `json:"tenant_id"`
	JobID        string        `json:"job_id"`
	Kind         JobKind       `json:"kind"`
	Status       JobStatus     `json:"status"`
	Imported     int           `json:"imported"`
	ImportFailed int           `json:"import_failed"`
	Indexed      int           `json:"indexed"`
	IndexFailed  int           `json:"index_failed"`
	Skipped      int           `json:"skipped"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}
