package commerce

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

// RawItem is a product as the Admin API returns it.
type RawItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	BodyHTML    string    `json:"body_html"`
	ProductType string    `json:"product_type"`
	Status      string    `json:"status"`
	Tags        string    `json:"tags"`
	Images      []Image   `json:"images"`
	Variants    []Variant `json:"variants"`
}

type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

type Variant struct {
	ID                  int64  `json:"id"`
	Price               string `json:"price"`
	SKU                 string `json:"sku"`
	InventoryQuantity   int    `json:"inventory_quantity"`
	InventoryManagement string `json:"inventory_management"`
}

// ExternalID is the product id as a string.
func (r *RawItem) ExternalID() string {
	return strconv.FormatInt(r.ID, 10)
}

// ToItem maps a raw product onto the descriptive, lifecycle, and inventory
// fields of a catalog item. Import and index sub-state are left to the caller.
func (r *RawItem) ToItem(tenantID, domain string) *catalog.Item {
	it := &catalog.Item{
		TenantID:       tenantID,
		ExternalItemID: r.ExternalID(),
		Title:          strings.TrimSpace(r.Title),
		Handle:         r.Handle,
		Category:       strings.TrimSpace(r.ProductType),
		Tags:           SplitTags(r.Tags),
		Description:    StripHTML(r.BodyHTML),
		ItemStatus:     itemStatus(r.Status),
	}
	if r.Handle != "" && domain != "" {
		it.URL = "https://" + domain + "/products/" + r.Handle
	}
	if len(r.Images) > 0 {
		it.ImageURL = r.Images[0].Src
	}
	if len(r.Variants) > 0 {
		v := r.Variants[0]
		if p, err := strconv.ParseFloat(v.Price, 64); err == nil {
			it.Price = p
		}
		it.InventoryQuantity = v.InventoryQuantity
		it.InventoryTracked = v.InventoryManagement != ""
	}
	return it
}

func itemStatus(s string) catalog.ItemStatus {
	switch catalog.ItemStatus(strings.ToLower(s)) {
	case catalog.ItemDraft:
		return catalog.ItemDraft
	case catalog.ItemArchived:
		return catalog.ItemArchived
	default:
		return catalog.ItemActive
	}
}

// SplitTags turns a comma-separated tag string into a trimmed list,
// dropping empties and preserving order.
func SplitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "td": true, "th": true, "table": true,
}

// StripHTML returns the visible text of an HTML fragment with entities
// decoded and whitespace collapsed. Script and style contents are dropped.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			default:
				if blockTags[string(name)] {
					b.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			default:
				if blockTags[string(name)] {
					b.WriteByte(' ')
				}
			}
		}
	}
}
