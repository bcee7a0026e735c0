// Package embeddings provides swappable text embedding and image description providers.
package embeddings

import (
	"context"
	"errors"

	pgvector "github.com/pgvector/pgvector-go"
)

// Dimensions is the embedding vector size (1536 = text-embedding-3-small).
const Dimensions = 1536

// ErrDescribeUnsupported is returned by providers that cannot describe images.
var ErrDescribeUnsupported = errors.New("image description not supported")

// Provider generates text embeddings.
type Provider interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// Name returns the provider name for logging.
	Name() string
}

// ImageDescriber turns an image into a natural-language description.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, imageURL string) (string, error)
}

// Backend is a configured embedding backend selection.
type Backend struct {
	Kind         string // "openai", "local" or "simple"
	OpenAIAPIKey string
	OpenAIModel  string
	VisionModel  string
	SidecarURL   string
}

// New builds the provider for the backend. The returned provider also
// implements ImageDescriber.
func New(b Backend) (Provider, error) {
	switch b.Kind {
	case "openai":
		if b.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required for openai embedding backend")
		}
		return NewOpenAIProvider(b.OpenAIAPIKey, b.OpenAIModel, b.VisionModel), nil
	case "local":
		if b.SidecarURL == "" {
			return nil, errors.New("sidecar URL required for local embedding backend")
		}
		return NewLocalProvider(b.SidecarURL), nil
	default:
		return NewSimpleProvider(), nil
	}
}
