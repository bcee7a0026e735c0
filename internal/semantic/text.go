package semantic

import (
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// ItemText builds embeddable text from a catalog item's descriptive fields.
func ItemText(it *catalog.Item) string {
	var parts []string
	parts = append(parts, "Title: "+it.Title)
	if it.Description != "" {
		parts = append(parts, "Description: "+it.Description)
	}
	if it.Category != "" {
		parts = append(parts, "Category: "+it.Category)
	}
	if len(it.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(it.Tags, ", "))
	}
	if it.Price > 0 {
		parts = append(parts, "Price: $"+strconv.FormatFloat(it.Price, 'f', 2, 64))
	}
	return strings.Join(parts, "\n")
}
