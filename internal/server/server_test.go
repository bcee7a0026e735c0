package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/config"
	"github.com/MikeSquared-Agency/curator/internal/pipeline"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

type fakeJobs struct {
	goErr    error
	states   map[catalog.JobKind]*catalog.JobState
	lastOpts pipeline.Options
	lastIDs  []string
	phase    catalog.Phase
	stopErr  error
}

func (f *fakeJobs) Go(_ context.Context, tenantID string, opts pipeline.Options) (*pipeline.Task, error) {
	if f.goErr != nil {
		return nil, f.goErr
	}
	f.lastOpts = opts
	return &pipeline.Task{JobID: "job-1", TenantID: tenantID, Kind: catalog.JobSync}, nil
}

func (f *fakeJobs) GoReindex(_ context.Context, tenantID string, ids []string, _ int) (*pipeline.Task, error) {
	if f.goErr != nil {
		return nil, f.goErr
	}
	f.lastIDs = ids
	return &pipeline.Task{JobID: "job-2", TenantID: tenantID, Kind: catalog.JobReindex}, nil
}

func (f *fakeJobs) Status(_ context.Context, _ string, kind catalog.JobKind) (*catalog.JobState, error) {
	return f.states[kind], nil
}

func (f *fakeJobs) StopSync(context.Context, string, catalog.JobKind) error {
	return f.stopErr
}

func (f *fakeJobs) RetryFailed(_ context.Context, _ string, phase catalog.Phase) (*catalog.RetryResult, error) {
	f.phase = phase
	return &catalog.RetryResult{ImportReset: 1, IndexReset: 2}, nil
}

type fakeTenants struct {
	configs map[string]*catalog.TenantConfig
}

func (f *fakeTenants) Get(_ context.Context, id string) (*catalog.TenantConfig, error) {
	c, ok := f.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeTenants) Put(_ context.Context, cfg *catalog.TenantConfig) error {
	cp := *cfg
	f.configs[cfg.TenantID] = &cp
	return nil
}

type fakeItems struct {
	filter catalog.ItemFilter
}

func (f *fakeItems) ListItems(_ context.Context, tenantID string, filter catalog.ItemFilter) ([]*catalog.Item, error) {
	f.filter = filter
	return []*catalog.Item{{TenantID: tenantID, ExternalItemID: "42", Title: "Mug"}}, nil
}

func (f *fakeItems) CountByStatus(context.Context, string) (*catalog.StatusCounts, error) {
	return &catalog.StatusCounts{
		Total:  3,
		Import: map[catalog.ImportStatus]int{catalog.ImportSynced: 3},
		Index:  map[catalog.IndexStatus]int{catalog.IndexIndexed: 2, catalog.IndexFailed: 1},
	}, nil
}

type fakeRuns struct{}

func (fakeRuns) List(_ context.Context, tenantID string, _ int) ([]store.SyncRun, error) {
	return []store.SyncRun{{ID: "r1", TenantID: tenantID, Kind: catalog.JobSync, Status: catalog.JobComplete}}, nil
}

type testEnv struct {
	jobs    *fakeJobs
	tenants *fakeTenants
	items   *fakeItems
	srv     *Server
}

func newTestEnv() *testEnv {
	cfg := config.Defaults()
	cfg.DatabaseURL = "postgres://test"
	e := &testEnv{
		jobs:    &fakeJobs{states: map[catalog.JobKind]*catalog.JobState{}},
		tenants: &fakeTenants{configs: map[string]*catalog.TenantConfig{}},
		items:   &fakeItems{},
	}
	e.srv = New(&cfg, Deps{
		DB:      fakeDB{},
		Jobs:    e.jobs,
		Tenants: e.tenants,
		Items:   e.items,
		Runs:    fakeRuns{},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(w, httptest.NewRequest(method, path, r))
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestHealth(t *testing.T) {
	e := newTestEnv()
	w := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disconnected", body["hermes"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv()
	w := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartSync(t *testing.T) {
	e := newTestEnv()
	e.jobs.states[catalog.JobSync] = &catalog.JobState{JobID: "job-1", TenantID: "t1", Status: catalog.JobDownloading}

	code, env := e.do(t, http.MethodPost, "/api/v1/tenants/t1/sync", `{"auto_index":false,"batch_size":3}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.False(t, e.jobs.lastOpts.AutoIndex)
	assert.Equal(t, 3, e.jobs.lastOpts.BatchSize)

	var st catalog.JobState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, catalog.JobDownloading, st.Status)
}

func TestStartSyncDefaults(t *testing.T) {
	e := newTestEnv()
	code, env := e.do(t, http.MethodPost, "/api/v1/tenants/t1/sync", "")
	require.Equal(t, http.StatusAccepted, code)
	assert.True(t, e.jobs.lastOpts.AutoIndex)
	assert.Equal(t, 10, e.jobs.lastOpts.BatchSize)

	// The job finished before the status read.
	var st catalog.JobState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, catalog.JobComplete, st.Status)
	assert.Equal(t, "job-1", st.JobID)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{fmt.Errorf("x: %w", catalog.ErrNotConfigured), http.StatusPreconditionFailed, "NOT_CONFIGURED"},
		{fmt.Errorf("x: %w", catalog.ErrAlreadyRunning), http.StatusConflict, "ALREADY_RUNNING"},
		{fmt.Errorf("x: %w", catalog.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{errors.New("db down"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv()
			e.jobs.goErr = tc.err
			code, env := e.do(t, http.MethodPost, "/api/v1/tenants/t1/sync", "")
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.name, env.Error.Code)
		})
	}
}

func TestSyncStatusIdle(t *testing.T) {
	e := newTestEnv()
	code, env := e.do(t, http.MethodGet, "/api/v1/tenants/t1/sync", "")
	require.Equal(t, http.StatusOK, code)
	var st catalog.JobState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, catalog.JobIdle, st.Status)
}

func TestStopSync(t *testing.T) {
	e := newTestEnv()
	code, _ := e.do(t, http.MethodDelete, "/api/v1/tenants/t1/sync", "")
	assert.Equal(t, http.StatusOK, code)

	e.jobs.stopErr = catalog.ErrNotFound
	code, _ = e.do(t, http.MethodDelete, "/api/v1/tenants/t1/sync", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReindex(t *testing.T) {
	e := newTestEnv()
	code, _ := e.do(t, http.MethodPost, "/api/v1/tenants/t1/reindex", `{"item_ids":["42"]}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, []string{"42"}, e.jobs.lastIDs)

	e.jobs.states[catalog.JobReindex] = &catalog.JobState{JobID: "job-2", Kind: catalog.JobReindex, Status: catalog.JobVectorizing}
	code, env := e.do(t, http.MethodGet, "/api/v1/tenants/t1/reindex", "")
	require.Equal(t, http.StatusOK, code)
	var st catalog.JobState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, catalog.JobVectorizing, st.Status)
}

func TestRetry(t *testing.T) {
	e := newTestEnv()
	code, env := e.do(t, http.MethodPost, "/api/v1/tenants/t1/retry", `{"phase":"index"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, catalog.PhaseIndex, e.jobs.phase)
	var res catalog.RetryResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.IndexReset)

	code, _ = e.do(t, http.MethodPost, "/api/v1/tenants/t1/retry", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, catalog.PhaseAll, e.jobs.phase)

	code, env = e.do(t, http.MethodPost, "/api/v1/tenants/t1/retry", `{"phase":"both"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_PHASE", env.Error.Code)
}

func TestTenantConfig(t *testing.T) {
	e := newTestEnv()

	code, _ := e.do(t, http.MethodGet, "/api/v1/tenants/t1/config", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env := e.do(t, http.MethodPut, "/api/v1/tenants/t1/config",
		`{"commerce_domain":"https://My-Shop.myshopify.com/","commerce_token":"shpat_secret","vector_index_name":"products"}`)
	require.Equal(t, http.StatusOK, code)
	var cfg catalog.TenantConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, "********", cfg.CommerceToken)
	assert.Equal(t, "my-shop.myshopify.com", cfg.CommerceDomain)
	assert.Equal(t, "shpat_secret", e.tenants.configs["t1"].CommerceToken)

	// Omitted secrets are kept.
	code, _ = e.do(t, http.MethodPut, "/api/v1/tenants/t1/config", `{"commerce_domain":"my-shop","auto_sync":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "shpat_secret", e.tenants.configs["t1"].CommerceToken)
	assert.True(t, e.tenants.configs["t1"].AutoSync)

	code, env = e.do(t, http.MethodGet, "/api/v1/tenants/t1/config", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, "********", cfg.CommerceToken)
}

func TestListItemsFilters(t *testing.T) {
	e := newTestEnv()
	code, env := e.do(t, http.MethodGet, "/api/v1/tenants/t1/items?index_status=failed&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, e.items.filter.IndexStatus)
	assert.Equal(t, catalog.IndexFailed, *e.items.filter.IndexStatus)
	assert.Nil(t, e.items.filter.ImportStatus)
	assert.Equal(t, 5, e.items.filter.Limit)
	assert.Equal(t, 10, e.items.filter.Offset)

	var items []catalog.Item
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "42", items[0].ExternalItemID)
}

func TestStatsAndRuns(t *testing.T) {
	e := newTestEnv()
	code, env := e.do(t, http.MethodGet, "/api/v1/tenants/t1/stats", "")
	require.Equal(t, http.StatusOK, code)
	var counts catalog.StatusCounts
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, 1, counts.Index[catalog.IndexFailed])

	code, env = e.do(t, http.MethodGet, "/api/v1/tenants/t1/runs", "")
	require.Equal(t, http.StatusOK, code)
	var runs []store.SyncRun
	require.NoError(t, json.Unmarshal(env.Data, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "t1", runs[0].TenantID)
}
