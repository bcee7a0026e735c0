package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

// LocalProvider generates embeddings and image captions by calling the local sidecar service.
type LocalProvider struct {
	url    string
	client *http.Client
}

// NewLocalProvider creates a new local embedding provider.
// url should be the base URL of the sidecar, e.g. "http://localhost:8501".
func NewLocalProvider(url string) *LocalProvider {
	return &LocalProvider{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{},
	}
}

// Name returns the provider name.
func (p *LocalProvider) Name() string {
	return "local"
}

type sidecarRequest struct {
	Texts []string `json:"texts"`
}

type sidecarResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding using the local sidecar.
func (p *LocalProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	var result sidecarResponse
	if err := p.post(ctx, "/embed", sidecarRequest{Texts: []string{text}}, &result); err != nil {
		return pgvector.Vector{}, err
	}
	if len(result.Embeddings) == 0 {
		return pgvector.Vector{}, fmt.Errorf("no embeddings returned")
	}
	return pgvector.NewVector(result.Embeddings[0]), nil
}

func (p *LocalProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling sidecar: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

type describeRequest struct {
	URL string `json:"url"`
}

type describeResponse struct {
	Description string `json:"description"`
}

// DescribeImage asks the sidecar's captioning model to describe the image.
func (p *LocalProvider) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	var result describeResponse
	if err := p.post(ctx, "/describe", describeRequest{URL: imageURL}, &result); err != nil {
		return "", err
	}
	if result.Description == "" {
		return "", fmt.Errorf("no description returned")
	}
	return result.Description, nil
}
