package main

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

type runsFunc func(ctx context.Context, tenantID string, limit int) ([]store.SyncRun, error)

// lookupAttempts bounds how long waitJob looks for the run record once the
// job has left the registry.
const lookupAttempts = 5

// waitJob polls the job until it finishes and returns its run record. A nil
// run means the job finished but its history was not found.
func waitJob(ctx context.Context, st *catalog.JobState, poll statusFunc, runs runsFunc, interval time.Duration, onProgress func(*catalog.JobState)) (*store.SyncRun, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	onProgress(st)
	done := finished(st)
	lookups := 0
	for {
		if done {
			run, err := findRun(ctx, st.TenantID, st.JobID, runs)
			if err != nil {
				return nil, err
			}
			if run != nil && run.FinishedAt != nil {
				return run, nil
			}
			if lookups++; lookups >= lookupAttempts {
				return run, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if done {
			continue
		}
		cur, err := poll(ctx, st.TenantID)
		if err != nil {
			return nil, err
		}
		if cur.JobID != st.JobID {
			// Successful jobs leave the registry as soon as they finish.
			done = true
			continue
		}
		onProgress(cur)
		done = finished(cur)
	}
}

func finished(st *catalog.JobState) bool {
	return st.Status == catalog.JobComplete || st.Status == catalog.JobError
}

func findRun(ctx context.Context, tenantID, jobID string, runs runsFunc) (*store.SyncRun, error) {
	list, err := runs(ctx, tenantID, 20)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == jobID {
			return &list[i], nil
		}
	}
	return nil, nil
}
