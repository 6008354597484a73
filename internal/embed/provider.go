package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
)

// Provider computes embeddings for a batch of texts, one vector per input
// in the same order.
type Provider interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// OpenAIProvider embeds via the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider wraps an OpenAI client.
func NewOpenAIProvider(client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// Embed requests embeddings for all texts in one call.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}
