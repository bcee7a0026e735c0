// Package catalog defines the catalog item record, its import and index
// lifecycles, tenant configuration, and change detection.
package catalog

import "time"

// ItemStatus mirrors the commerce source's publication state.
type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemDraft    ItemStatus = "draft"
	ItemArchived ItemStatus = "archived"
)

// ImportStatus is the item's lifecycle with respect to the commerce source.
type ImportStatus string

const (
	ImportPending ImportStatus = "pending"
	ImportSynced  ImportStatus = "synced"
	ImportFailed  ImportStatus = "failed"
)

// IndexStatus is the item's lifecycle with respect to the vector index.
type IndexStatus string

const (
	IndexNotConfigured IndexStatus = "not_configured"
	IndexPending       IndexStatus = "pending"
	IndexVectorizing   IndexStatus = "vectorizing"
	IndexUpserting     IndexStatus = "upserting"
	IndexIndexed       IndexStatus = "indexed"
	IndexFailed        IndexStatus = "failed"
)

// IndexCandidateStatuses are the index states the indexer picks up by default.
var IndexCandidateStatuses = []IndexStatus{IndexNotConfigured, IndexFailed, IndexPending}

// Item is a persisted catalog item record, unique per (TenantID, ExternalItemID).
type Item struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	ExternalItemID string `json:"external_item_id"`

	Title       string   `json:"title"`
	Handle      string   `json:"handle"`
	URL         string   `json:"url"`
	ImageURL    string   `json:"image_url"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`

	ItemStatus        ItemStatus `json:"item_status"`
	InventoryQuantity int        `json:"inventory_quantity"`
	InventoryTracked  bool       `json:"inventory_tracked"`

	ImportStatus     ImportStatus `json:"import_status"`
	ImportLastSyncAt *time.Time   `json:"import_last_sync_at,omitempty"`
	ImportAttempts   int          `json:"import_attempts"`

	IndexStatus     IndexStatus `json:"index_status"`
	VectorID        string      `json:"vector_id,omitempty"`
	IndexLastSyncAt *time.Time  `json:"index_last_sync_at,omitempty"`
	IndexAttempts   int         `json:"index_attempts"`

	ContentHash string `json:"content_hash"`
	LastError   string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InStock reports whether the item can be sold: untracked inventory is
// always in stock.
func (it *Item) InStock() bool {
	return !it.InventoryTracked || it.InventoryQuantity > 0
}

// VectorIDFor returns the vector slot for an external item. It never depends
// on the internal record identity, so re-indexing converges on one slot.
func VectorIDFor(externalItemID string) string {
	return externalItemID
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	ImportStatus *ImportStatus
	IndexStatus  *IndexStatus
	Limit        int
	Offset       int
}

// StatusCounts summarizes a tenant catalog by lifecycle state.
type StatusCounts struct {
	Total  int                  `json:"total"`
	Import map[ImportStatus]int `json:"import"`
	Index  map[IndexStatus]int  `json:"index"`
}
