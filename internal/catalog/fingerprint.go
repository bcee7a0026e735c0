package catalog

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecentIndexWindow is how long after indexing an unchanged item is
// considered fresh enough to skip without further checks.
const RecentIndexWindow = 24 * time.Hour

// ContentHash returns a SHA-256 hex digest over the fields that shape an
// item's embedding. It never reads timestamps, counters, or statuses.
func ContentHash(it *Item) string {
	var b strings.Builder
	field := func(name, value string) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(value))
		b.WriteByte('\n')
	}
	field("title", it.Title)
	field("description", it.Description)
	field("category", it.Category)
	field("tags", strings.Join(it.Tags, ","))
	field("price", strconv.FormatFloat(it.Price, 'f', 2, 64))
	field("image", it.ImageURL)

	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}

// NeedsReindexing reports whether the item must be embedded again: it has
// never reached indexed, or its content differs from what was indexed.
func NeedsReindexing(it *Item) bool {
	if it.IndexStatus != IndexIndexed {
		return true
	}
	return ContentHash(it) != it.ContentHash
}

// RecentlyIndexed reports whether the item was indexed within
// RecentIndexWindow of now. It only short-circuits redundant work and never
// forces a reindex.
func RecentlyIndexed(it *Item, now time.Time) bool {
	if it.IndexStatus != IndexIndexed || it.IndexLastSyncAt == nil {
		return false
	}
	return now.Sub(*it.IndexLastSyncAt) < RecentIndexWindow
}

// SkipIndexing reports whether an indexer can leave the item untouched: it
// already occupies its vector slot and nothing relevant changed.
func SkipIndexing(it *Item) bool {
	return it.IndexStatus == IndexIndexed && it.VectorID != "" && !NeedsReindexing(it)
}
