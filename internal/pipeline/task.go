package pipeline

import (
	"context"
	"sync"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// Task is a job submitted with Orchestrator.Go. Callers poll Done or block
// in Wait to observe its result.
type Task struct {
	JobID    string
	TenantID string
	Kind     catalog.JobKind

	done    chan struct{}
	once    sync.Once
	summary *catalog.JobSummary
	err     error
}

// Done is closed when the job has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the job error once Done is closed, and nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Summary returns the job summary once Done is closed, and nil before.
func (t *Task) Summary() *catalog.JobSummary {
	select {
	case <-t.done:
		return t.summary
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*catalog.JobSummary, error) {
	select {
	case <-t.done:
		return t.summary, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) complete(summary *catalog.JobSummary, err error) {
	t.once.Do(func() {
		t.summary = summary
		t.err = err
		close(t.done)
	})
}
