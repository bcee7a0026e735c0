// Package commerce reads product catalogs from a Shopify store through the
// Admin REST API.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// APIVersion is the Admin REST API version requested.
	APIVersion = "2024-10"

	// MaxPageSize is the largest page the Admin API serves.
	MaxPageSize = 250
)

var pageInfoRe = regexp.MustCompile(`page_info=([^&>]+)`)

// Client lists products from one Shopify store.
type Client struct {
	domain  string
	token   string
	baseURL string
	client  *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the store's API origin, e.g. for a proxy.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a client for the given store domain and Admin API access token.
// A bare shop name is expanded to its myshopify.com domain.
func NewClient(domain, token string, opts ...Option) *Client {
	d := NormalizeDomain(domain)
	c := &Client{
		domain:  d,
		token:   token,
		baseURL: "https://" + d,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Domain returns the normalized store domain.
func (c *Client) Domain() string {
	return c.domain
}

// NormalizeDomain strips scheme and trailing slashes and expands a bare shop name.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimRight(d, "/")
	if d != "" && !strings.Contains(d, ".") {
		d += ".myshopify.com"
	}
	return d
}

// Page is one page of raw products plus the cursor for the next one.
// NextCursor is empty on the last page.
type Page struct {
	Items      []RawItem
	NextCursor string
}

// ListItems fetches one page of products. An empty cursor starts from the
// beginning of the catalog.
func (c *Client) ListItems(ctx context.Context, pageSize int, cursor string) (*Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("page_info", cursor)
	} else {
		q.Set("status", "any")
	}

	resp, err := c.get(ctx, "/products.json", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Products []RawItem `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}

	return &Page{
		Items:      body.Products,
		NextCursor: nextPageInfo(resp.Header.Get("Link")),
	}, nil
}

// CountItems returns the total number of products in the store.
func (c *Client) CountItems(ctx context.Context) (int, error) {
	q := url.Values{}
	q.Set("status", "any")
	resp, err := c.get(ctx, "/products/count.json", q)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding product count: %w", err)
	}
	return body.Count, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + "/admin/api/" + APIVersion + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling shopify: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("shopify returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp, nil
}

// nextPageInfo extracts the page_info cursor of the rel="next" link.
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		if m := pageInfoRe.FindStringSubmatch(part); m != nil {
			if v, err := url.QueryUnescape(m[1]); err == nil {
				return v
			}
			return m[1]
		}
	}
	return ""
}
