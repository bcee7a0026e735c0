// Package client provides an HTTP client for the curator API, used by
// curatorctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/store"
)

// Client is an HTTP client for the curator API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client. baseURL should be like "http://localhost:8600".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// --- Request/Response types ---

// SyncRequest is the input for starting a sync.
type SyncRequest struct {
	AutoIndex *bool `json:"auto_index,omitempty"`
	BatchSize int   `json:"batch_size,omitempty"`
}

// ReindexRequest is the input for starting a manual reindex.
type ReindexRequest struct {
	ItemIDs   []string `json:"item_ids,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
}

// ItemQuery filters an item listing. Empty fields are not sent.
type ItemQuery struct {
	ImportStatus string
	IndexStatus  string
	Limit        int
	Offset       int
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// --- Jobs ---

// StartSync submits a sync job for the tenant.
func (c *Client) StartSync(ctx context.Context, tenantID string, req SyncRequest) (*catalog.JobState, error) {
	var result catalog.JobState
	if err := c.send(ctx, http.MethodPost, tenantPath(tenantID, "sync"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncStatus returns the tenant's sync job state.
func (c *Client) SyncStatus(ctx context.Context, tenantID string) (*catalog.JobState, error) {
	var result catalog.JobState
	if err := c.get(ctx, tenantPath(tenantID, "sync"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopSync cancels the tenant's running sync job.
func (c *Client) StopSync(ctx context.Context, tenantID string) error {
	return c.send(ctx, http.MethodDelete, tenantPath(tenantID, "sync"), nil, nil)
}

// StartReindex submits a manual reindex job.
func (c *Client) StartReindex(ctx context.Context, tenantID string, req ReindexRequest) (*catalog.JobState, error) {
	var result catalog.JobState
	if err := c.send(ctx, http.MethodPost, tenantPath(tenantID, "reindex"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReindexStatus returns the tenant's reindex job state.
func (c *Client) ReindexStatus(ctx context.Context, tenantID string) (*catalog.JobState, error) {
	var result catalog.JobState
	if err := c.get(ctx, tenantPath(tenantID, "reindex"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Retry resets failed items for the phase.
func (c *Client) Retry(ctx context.Context, tenantID string, phase catalog.Phase) (*catalog.RetryResult, error) {
	var result catalog.RetryResult
	body := map[string]catalog.Phase{"phase": phase}
	if err := c.send(ctx, http.MethodPost, tenantPath(tenantID, "retry"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- Catalog views ---

// Items lists tenant items.
func (c *Client) Items(ctx context.Context, tenantID string, q ItemQuery) ([]catalog.Item, error) {
	v := url.Values{}
	if q.ImportStatus != "" {
		v.Set("import_status", q.ImportStatus)
	}
	if q.IndexStatus != "" {
		v.Set("index_status", q.IndexStatus)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	path := tenantPath(tenantID, "items")
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var result []catalog.Item
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns item counts by status.
func (c *Client) Stats(ctx context.Context, tenantID string) (*catalog.StatusCounts, error) {
	var result catalog.StatusCounts
	if err := c.get(ctx, tenantPath(tenantID, "stats"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Runs returns recent sync runs.
func (c *Client) Runs(ctx context.Context, tenantID string, limit int) ([]store.SyncRun, error) {
	path := tenantPath(tenantID, "runs")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var result []store.SyncRun
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// --- Tenant config ---

// GetConfig returns the tenant configuration with secrets redacted.
func (c *Client) GetConfig(ctx context.Context, tenantID string) (*catalog.TenantConfig, error) {
	var result catalog.TenantConfig
	if err := c.get(ctx, tenantPath(tenantID, "config"), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PutConfig creates or replaces the tenant configuration.
func (c *Client) PutConfig(ctx context.Context, cfg *catalog.TenantConfig) (*catalog.TenantConfig, error) {
	var result catalog.TenantConfig
	if err := c.send(ctx, http.MethodPut, tenantPath(cfg.TenantID, "config"), cfg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// --- HTTP helpers ---

func tenantPath(tenantID, rest string) string {
	return "/api/v1/tenants/" + url.PathEscape(tenantID) + "/" + rest
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	envErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Method: req.Method, Path: req.URL.Path, Status: resp.StatusCode, Message: string(body)}
		if envErr == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out != nil {
		// The API wraps responses in {"data": ...}
		if envErr == nil && envelope.Data != nil {
			return json.Unmarshal(envelope.Data, out)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
