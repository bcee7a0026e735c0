package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	subject string
	event   Event
	data    json.RawMessage
}

type fakeConn struct {
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	var raw struct {
		Event
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.msgs = append(f.msgs, published{subject: subject, event: raw.Event, data: raw.Data})
	return nil
}

func TestPublisherSubjects(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, testLogger())
	p.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	p.Progress(catalog.ProgressEvent{TenantID: "t1", JobID: "j1", Stage: catalog.JobProcessing, Progress: 35})
	p.Completed(catalog.JobSummary{TenantID: "t1", JobID: "j1", Indexed: 4})
	p.Failed(catalog.JobSummary{TenantID: "t1", JobID: "j2", Error: "boom"})

	require.Len(t, c.msgs, 3)
	assert.Equal(t, "catalog.sync.progress.t1", c.msgs[0].subject)
	assert.Equal(t, SubjectCompleted, c.msgs[1].subject)
	assert.Equal(t, SubjectFailed, c.msgs[2].subject)
	assert.Equal(t, "curator", c.msgs[0].event.Source)
	assert.NotEmpty(t, c.msgs[0].event.ID)

	var ev catalog.ProgressEvent
	require.NoError(t, json.Unmarshal(c.msgs[0].data, &ev))
	assert.Equal(t, 35, ev.Progress)

	var s catalog.JobSummary
	require.NoError(t, json.Unmarshal(c.msgs[2].data, &s))
	assert.Equal(t, "boom", s.Error)
}

func TestPublisherSwallowsErrors(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, testLogger())
	assert.NotPanics(t, func() {
		p.Progress(catalog.ProgressEvent{TenantID: "t1"})
	})
}

type fakeJobs struct {
	goFn      func(tenantID string) error
	syncs     []pipeline.Options
	tenants   []string
	reindexed [][]string
}

func (f *fakeJobs) Go(_ context.Context, tenantID string, opts pipeline.Options) (*pipeline.Task, error) {
	if f.goFn != nil {
		if err := f.goFn(tenantID); err != nil {
			return nil, err
		}
	}
	f.tenants = append(f.tenants, tenantID)
	f.syncs = append(f.syncs, opts)
	return &pipeline.Task{JobID: "job-" + tenantID, TenantID: tenantID}, nil
}

func (f *fakeJobs) GoReindex(_ context.Context, tenantID string, ids []string, _ int) (*pipeline.Task, error) {
	f.tenants = append(f.tenants, tenantID)
	f.reindexed = append(f.reindexed, ids)
	return &pipeline.Task{JobID: "reindex-" + tenantID, TenantID: tenantID}, nil
}

func TestHandleSync(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewSubscriber(nil, jobs, testLogger())

	s.handleSync(context.Background(), &nats.Msg{
		Subject: SubjectSyncRequested,
		Data:    []byte(`{"tenant_id":"t1","auto_index":true,"batch_size":5}`),
	})
	require.Len(t, jobs.syncs, 1)
	assert.Equal(t, []string{"t1"}, jobs.tenants)
	assert.True(t, jobs.syncs[0].AutoIndex)
	assert.Equal(t, 5, jobs.syncs[0].BatchSize)

	// Enveloped payloads are unwrapped.
	s.handleSync(context.Background(), &nats.Msg{
		Subject: SubjectSyncRequested,
		Data:    []byte(`{"id":"e1","type":"catalog.sync.requested","data":{"tenant_id":"t2"}}`),
	})
	assert.Equal(t, []string{"t1", "t2"}, jobs.tenants)
}

func TestHandleSyncRejectsBadPayloads(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewSubscriber(nil, jobs, testLogger())

	s.handleSync(context.Background(), &nats.Msg{Data: []byte(`not json`)})
	s.handleSync(context.Background(), &nats.Msg{Data: []byte(`{"auto_index":true}`)})
	assert.Empty(t, jobs.tenants)
}

func TestHandleSyncToleratesRunningJob(t *testing.T) {
	jobs := &fakeJobs{goFn: func(string) error { return catalog.ErrAlreadyRunning }}
	s := NewSubscriber(nil, jobs, testLogger())
	assert.NotPanics(t, func() {
		s.handleSync(context.Background(), &nats.Msg{Data: []byte(`{"tenant_id":"t1"}`)})
	})
}

func TestHandleReindex(t *testing.T) {
	jobs := &fakeJobs{}
	s := NewSubscriber(nil, jobs, testLogger())
	s.handleReindex(context.Background(), &nats.Msg{Data: []byte(`{"tenant_id":"t1","item_ids":["42","43"]}`)})
	require.Len(t, jobs.reindexed, 1)
	assert.Equal(t, []string{"42", "43"}, jobs.reindexed[0])
}

func TestSanitizeSubject(t *testing.T) {
	assert.Equal(t, "catalog-sync-requested", sanitizeSubject("catalog.sync.requested"))
	assert.Equal(t, "a--", sanitizeSubject("a.>"))
}
