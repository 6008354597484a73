package embed

import (
	"context"

	"github.com/rs/zerolog"

	"rag-service/internal/retry"
)

// Embedder fronts the provider with the cache. Cache failures degrade to
// provider-only operation and never fail an embed call.
type Embedder struct {
	provider Provider
	cache    Cache
	model    string
	retryer  *retry.Retryer
	log      zerolog.Logger
}

// NewEmbedder builds the cache-fronted embedder. cache may be nil.
func NewEmbedder(provider Provider, cache Cache, model string, retryer *retry.Retryer, log zerolog.Logger) *Embedder {
	return &Embedder{
		provider: provider,
		cache:    cache,
		model:    model,
		retryer:  retryer,
		log:      log.With().Str("component", "embedder").Logger(),
	}
}

// Model returns the embedding model in use.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedOne embeds a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed returns one vector per text, position-aligned with the input.
// Cached texts are served from Redis; the remainder goes to the provider
// in a single call, and the fresh vectors are written back.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))

	if e.cache != nil {
		keys := make([]string, len(texts))
		for i, t := range texts {
			keys[i] = CacheKey(e.model, t)
		}
		cached, err := e.cache.GetMany(ctx, keys)
		if err != nil {
			e.log.Warn().Err(err).Msg("embedding cache unavailable, falling back to provider")
			cached = make([][]float32, len(texts))
		}
		for i, vec := range cached {
			if vec != nil {
				vectors[i] = vec
			} else {
				missIdx = append(missIdx, i)
			}
		}
	} else {
		for i := range texts {
			missIdx = append(missIdx, i)
		}
	}

	if len(missIdx) == 0 {
		return vectors, nil
	}

	missTexts := make([]string, len(missIdx))
	for i, idx := range missIdx {
		missTexts[i] = texts[idx]
	}

	var fresh [][]float32
	err := e.retryer.Do(ctx, "embeddings", func() error {
		var callErr error
		fresh, callErr = e.provider.Embed(ctx, e.model, missTexts)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	for i, idx := range missIdx {
		vectors[idx] = fresh[i]
	}

	if e.cache != nil {
		keys := make([]string, len(missIdx))
		for i, idx := range missIdx {
			keys[i] = CacheKey(e.model, texts[idx])
		}
		if err := e.cache.SetMany(ctx, keys, fresh); err != nil {
			e.log.Warn().Err(err).Msg("embedding cache write failed")
		}
	}
	return vectors, nil
}
