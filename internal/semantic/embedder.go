// Package semantic turns catalog items into vectors by combining a text
// embedding with an embedding of an AI-generated image description.
package semantic

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
	"github.com/MikeSquared-Agency/curator/internal/embeddings"
	"github.com/MikeSquared-Agency/curator/internal/metrics"
)

var errNoImage = errors.New("no image url")

// Options tunes outbound call behavior.
type Options struct {
	// CallTimeout bounds each provider call. Zero disables the bound.
	CallTimeout time.Duration
	// RatePerSecond paces provider calls across the process. Zero disables pacing.
	RatePerSecond float64
}

// Result is a combined item embedding.
type Result struct {
	Vector []float32
	// Description is the AI-generated image description, empty when the
	// embedding fell back to text only.
	Description string
}

// TextOnly reports whether the image half was dropped.
func (r *Result) TextOnly() bool {
	return r.Description == ""
}

// Embedder produces item vectors from an embedding provider and, when the
// provider supports it, an image describer.
type Embedder struct {
	provider  embeddings.Provider
	describer embeddings.ImageDescriber
	limiter   *rate.Limiter
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEmbedder creates an Embedder. If provider also implements
// embeddings.ImageDescriber it is used for the image half.
func NewEmbedder(provider embeddings.Provider, opts Options, logger *slog.Logger) *Embedder {
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}
	e := &Embedder{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  opts.CallTimeout,
		metrics:  metrics.New(),
		logger:   logger,
	}
	if d, ok := provider.(embeddings.ImageDescriber); ok {
		e.describer = d
	}
	return e
}

// WithDescriber overrides the image describer.
func (e *Embedder) WithDescriber(d embeddings.ImageDescriber) *Embedder {
	e.describer = d
	return e
}

// Name returns the underlying provider name.
func (e *Embedder) Name() string {
	return e.provider.Name()
}

// Embed produces the combined vector for an item.
func (e *Embedder) Embed(ctx context.Context, it *catalog.Item) (*Result, error) {
	return e.EmbedCombined(ctx, ItemText(it), it.ImageURL)
}

// EmbedText embeds text. Provider failures come back as *catalog.EmbeddingProviderError.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.call(ctx, "embed_text", func(ctx context.Context) error {
		v, err := e.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v.Slice()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedImage describes the image with the vision model and embeds the
// description. It returns the vector and the description.
func (e *Embedder) EmbedImage(ctx context.Context, imageURL string) ([]float32, string, error) {
	if imageURL == "" {
		return nil, "", errNoImage
	}
	if e.describer == nil {
		return nil, "", &catalog.EmbeddingProviderError{Provider: e.provider.Name(), Err: embeddings.ErrDescribeUnsupported}
	}

	var desc string
	err := e.call(ctx, "describe_image", func(ctx context.Context) error {
		d, err := e.describer.DescribeImage(ctx, imageURL)
		desc = d
		return err
	})
	if err != nil {
		return nil, "", err
	}

	vec, err := e.EmbedText(ctx, desc)
	if err != nil {
		return nil, "", err
	}
	return vec, desc, nil
}

// EmbedCombined averages the text and image vectors. Any image failure
// degrades to the text vector alone; a text failure is returned.
func (e *Embedder) EmbedCombined(ctx context.Context, text, imageURL string) (*Result, error) {
	var (
		textVec  []float32
		imageVec []float32
		desc     string
		imageErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.EmbedText(gctx, text)
		textVec = v
		return err
	})
	g.Go(func() error {
		imageVec, desc, imageErr = e.EmbedImage(gctx, imageURL)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case imageErr != nil:
		if errors.Is(imageErr, errNoImage) || errors.Is(imageErr, embeddings.ErrDescribeUnsupported) {
			e.logger.Debug("no image embedding, using text only", "image", imageURL, "reason", imageErr)
		} else {
			e.logger.Warn("image embedding failed, using text only", "image", imageURL, "error", imageErr)
		}
		return &Result{Vector: textVec}, nil
	case len(imageVec) != len(textVec):
		e.logger.Warn("image embedding dimension mismatch, using text only",
			"text_dims", len(textVec), "image_dims", len(imageVec))
		return &Result{Vector: textVec}, nil
	}

	return &Result{
		Vector:      averageVectors([][]float32{textVec, imageVec}),
		Description: desc,
	}, nil
}

// call paces, bounds, and instruments one provider call, wrapping failures
// as *catalog.EmbeddingProviderError.
func (e *Embedder) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return &catalog.EmbeddingProviderError{Provider: e.provider.Name(), Err: err}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	e.metrics.ProviderCall(name, err, time.Since(start))
	if err != nil {
		return &catalog.EmbeddingProviderError{Provider: e.provider.Name(), Err: err}
	}
	return nil
}
