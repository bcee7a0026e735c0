package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/commerce"
	"github.com/MikeSquared-Agency/curator/internal/semantic"
	"github.com/MikeSquared-Agency/curator/internal/store"
	"github.com/MikeSquared-Agency/curator/internal/vectorindex"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory ItemStore that follows the Postgres store's
// upsert and status rules.
type memStore struct {
	mu       sync.Mutex
	items    map[string]*catalog.Item // by internal id
	upsertFn func(it *catalog.Item) error
	statuses map[string][]catalog.IndexStatus // transitions per external id
}

func newMemStore() *memStore {
	return &memStore{items: map[string]*catalog.Item{}, statuses: map[string][]catalog.IndexStatus{}}
}

func (m *memStore) find(tenantID, externalID string) *catalog.Item {
	for _, it := range m.items {
		if it.TenantID == tenantID && it.ExternalItemID == externalID {
			return it
		}
	}
	return nil
}

// put seeds a record and returns its stored copy.
func (m *memStore) put(it catalog.Item) *catalog.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	cp := it
	m.items[cp.ID] = &cp
	return &cp
}

func (m *memStore) byExternal(tenantID, externalID string) *catalog.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.find(tenantID, externalID)
	if it == nil {
		return nil
	}
	cp := *it
	return &cp
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memStore) transitions(externalID string) []catalog.IndexStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.IndexStatus(nil), m.statuses[externalID]...)
}

func (m *memStore) setStatus(it *catalog.Item, st catalog.IndexStatus) {
	it.IndexStatus = st
	m.statuses[it.ExternalItemID] = append(m.statuses[it.ExternalItemID], st)
}

func (m *memStore) UpsertImported(_ context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, at time.Time) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(it); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := at
	existing := m.find(it.TenantID, it.ExternalItemID)
	if existing == nil {
		cp := *it
		cp.ID = uuid.New().String()
		cp.ImportStatus = catalog.ImportSynced
		cp.ImportLastSyncAt = &t
		cp.ImportAttempts = 1
		cp.IndexStatus = initialIndex
		m.items[cp.ID] = &cp
		*it = cp
		return nil
	}
	hashChanged := existing.ContentHash != it.ContentHash
	idx := existing.IndexStatus
	switch {
	case idx == catalog.IndexIndexed && hashChanged:
		idx = catalog.IndexPending
	case idx == catalog.IndexNotConfigured && initialIndex == catalog.IndexPending:
		idx = catalog.IndexPending
	}
	if existing.ImportStatus == catalog.ImportFailed {
		existing.LastError = ""
	}
	id, attempts, vectorID, idxAttempts, idxAt, lastErr := existing.ID, existing.ImportAttempts, existing.VectorID, existing.IndexAttempts, existing.IndexLastSyncAt, existing.LastError
	*existing = *it
	existing.ID = id
	existing.ImportStatus = catalog.ImportSynced
	existing.ImportLastSyncAt = &t
	existing.ImportAttempts = attempts + 1
	existing.IndexStatus = idx
	existing.VectorID = vectorID
	existing.IndexAttempts = idxAttempts
	existing.IndexLastSyncAt = idxAt
	existing.LastError = lastErr
	*it = *existing
	return nil
}

func (m *memStore) RecordImportFailure(_ context.Context, it *catalog.Item, initialIndex catalog.IndexStatus, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.find(it.TenantID, it.ExternalItemID)
	if existing == nil {
		existing = &catalog.Item{
			ID:             uuid.New().String(),
			TenantID:       it.TenantID,
			ExternalItemID: it.ExternalItemID,
			Title:          it.Title,
			IndexStatus:    initialIndex,
		}
		m.items[existing.ID] = existing
	}
	existing.ImportStatus = catalog.ImportFailed
	existing.ImportAttempts++
	existing.LastError = msg
	return nil
}

func (m *memStore) GetItem(_ context.Context, tenantID, id string) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.TenantID != tenantID {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memStore) ListIndexCandidates(_ context.Context, tenantID string, statuses []catalog.IndexStatus) ([]*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*catalog.Item
	for _, it := range m.items {
		if it.TenantID != tenantID || it.ImportStatus != catalog.ImportSynced {
			continue
		}
		for _, s := range statuses {
			if it.IndexStatus == s {
				cp := *it
				out = append(out, &cp)
				break
			}
		}
	}
	sortItems(out)
	return out, nil
}

func (m *memStore) SetIndexStatus(_ context.Context, id string, status catalog.IndexStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	m.setStatus(it, status)
	return nil
}

func (m *memStore) MarkIndexed(_ context.Context, id, vectorID, contentHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	m.setStatus(it, catalog.IndexIndexed)
	it.VectorID = vectorID
	it.ContentHash = contentHash
	it.IndexLastSyncAt = &at
	it.IndexAttempts++
	it.LastError = ""
	return nil
}

func (m *memStore) MarkIndexFailed(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	m.setStatus(it, catalog.IndexFailed)
	it.LastError = msg
	it.IndexAttempts++
	return nil
}

func (m *memStore) ResetForReindex(_ context.Context, tenantID string, ids []string) ([]*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*catalog.Item
	for _, it := range m.items {
		if it.TenantID != tenantID || it.ImportStatus != catalog.ImportSynced {
			continue
		}
		selected := want[it.ID] || want[it.ExternalItemID]
		if len(ids) == 0 {
			selected = it.ItemStatus == catalog.ItemActive && it.InStock()
		}
		if selected {
			it.IndexStatus = catalog.IndexPending
			cp := *it
			out = append(out, &cp)
		}
	}
	sortItems(out)
	return out, nil
}

func (m *memStore) ResetFailed(_ context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &catalog.RetryResult{}
	for _, it := range m.items {
		if it.TenantID != tenantID {
			continue
		}
		if phase.Includes(catalog.PhaseImport) && it.ImportStatus == catalog.ImportFailed {
			it.ImportStatus = catalog.ImportPending
			it.LastError = ""
			res.ImportReset++
		}
		if phase.Includes(catalog.PhaseIndex) && it.IndexStatus == catalog.IndexFailed {
			it.IndexStatus = catalog.IndexPending
			it.LastError = ""
			res.IndexReset++
		}
	}
	return res, nil
}

func sortItems(items []*catalog.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ExternalItemID < items[j].ExternalItemID })
}

// fakeSource serves a fixed catalog in pages.
type fakeSource struct {
	items   []commerce.RawItem
	countFn func() (int, error)
	listFn  func(cursor string) error
	calls   int
}

func (f *fakeSource) Domain() string { return "test-shop.myshopify.com" }

func (f *fakeSource) CountItems(context.Context) (int, error) {
	if f.countFn != nil {
		return f.countFn()
	}
	return len(f.items), nil
}

func (f *fakeSource) ListItems(_ context.Context, pageSize int, cursor string) (*commerce.Page, error) {
	f.calls++
	if f.listFn != nil {
		if err := f.listFn(cursor); err != nil {
			return nil, err
		}
	}
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	end := min(start+pageSize, len(f.items))
	page := &commerce.Page{Items: f.items[start:end]}
	if end < len(f.items) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func rawItem(id int64, title string, price string) commerce.RawItem {
	return commerce.RawItem{
		ID:       id,
		Title:    title,
		Handle:   fmt.Sprintf("item-%d", id),
		BodyHTML: "<p>" + title + " description</p>",
		Status:   "active",
		Tags:     "a, b",
		Variants: []commerce.Variant{{ID: id * 10, Price: price}},
	}
}

// fakeEmbedder returns a fixed vector unless embedFn says otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	embedFn func(it *catalog.Item) (*semantic.Result, error)
	calls   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, it *catalog.Item) (*semantic.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, it.ExternalItemID)
	f.mu.Unlock()
	if f.embedFn != nil {
		return f.embedFn(it)
	}
	return &semantic.Result{Vector: []float32{0.1, 0.2, 0.3}, Description: "a photo of " + it.Title}, nil
}

func (f *fakeEmbedder) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeIndex records upserts per namespace.
type fakeIndex struct {
	mu       sync.Mutex
	records  map[string]vectorindex.Record
	upsertFn func(r vectorindex.Record) error
	upserts  int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]vectorindex.Record{}}
}

func (f *fakeIndex) Name() string { return "fake" }

func (f *fakeIndex) Upsert(_ context.Context, namespace string, records []vectorindex.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		if f.upsertFn != nil {
			if err := f.upsertFn(r); err != nil {
				return err
			}
		}
		f.upserts++
		f.records[namespace+"/"+r.ID] = r
	}
	return nil
}

func (f *fakeIndex) get(key string) (vectorindex.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[key]
	return r, ok
}

// fakeOpener opens idx for tenants with an index name.
type fakeOpener struct {
	idx *fakeIndex
}

func (f *fakeOpener) Configured(cfg *catalog.TenantConfig) bool {
	return cfg != nil && cfg.VectorIndexName != ""
}

func (f *fakeOpener) Open(_ context.Context, cfg *catalog.TenantConfig) (vectorindex.Index, error) {
	if !f.Configured(cfg) {
		return nil, catalog.ErrNotConfigured
	}
	return f.idx, nil
}

type fakeTenants map[string]*catalog.TenantConfig

func (f fakeTenants) Get(_ context.Context, tenantID string) (*catalog.TenantConfig, error) {
	return f[tenantID], nil
}

func fullTenant(id string) *catalog.TenantConfig {
	return &catalog.TenantConfig{
		TenantID:        id,
		CommerceDomain:  "test-shop",
		CommerceToken:   "shpat_x",
		VectorIndexName: "products",
	}
}

// fakeRuns records run history.
type fakeRuns struct {
	mu       sync.Mutex
	started  []store.SyncRun
	finished []store.SyncRun
}

func (f *fakeRuns) Start(_ context.Context, r *store.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, *r)
	return nil
}

func (f *fakeRuns) Finish(_ context.Context, r *store.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *r)
	return nil
}

func (f *fakeRuns) finishedRuns() []store.SyncRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.SyncRun(nil), f.finished...)
}

// fakeSink collects events.
type fakeSink struct {
	mu        sync.Mutex
	progress  []catalog.ProgressEvent
	completed []catalog.JobSummary
	failed    []catalog.JobSummary
}

func (f *fakeSink) Progress(ev catalog.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, ev)
}

func (f *fakeSink) Completed(s catalog.JobSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, s)
}

func (f *fakeSink) Failed(s catalog.JobSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, s)
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed), len(f.failed)
}
