package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	pgvector "github.com/pgvector/pgvector-go"
)

const describePrompt = "Describe this product image for a shopping search index. " +
	"Cover the item type, colors, materials, patterns, style, and any visible text or branding. " +
	"Answer in two or three plain sentences."

// OpenAIProvider generates embeddings and image descriptions using OpenAI's API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	visionModel string
}

// NewOpenAIProvider creates a new OpenAI embedding provider. Extra request
// options are appended after the API key.
func NewOpenAIProvider(apiKey, model, visionModel string, opts ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if visionModel == "" {
		visionModel = "gpt-4o-mini"
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		visionModel: visionModel,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Embed generates an embedding using the OpenAI API.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model:          p.model,
		Dimensions:     openai.Int(Dimensions),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("calling OpenAI: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("no embeddings returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return pgvector.NewVector(vec), nil
}

// DescribeImage asks the vision model for a short description of the image.
func (p *OpenAIProvider) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(describePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
		MaxCompletionTokens: openai.Int(300),
	})
	if err != nil {
		return "", fmt.Errorf("calling OpenAI vision: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no description returned")
	}
	desc := strings.TrimSpace(resp.Choices[0].Message.Content)
	if desc == "" {
		return "", fmt.Errorf("empty description returned")
	}
	return desc, nil
}
