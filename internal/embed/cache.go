package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// cacheTTL bounds how long cached embeddings stay valid.
const cacheTTL = 24 * time.Hour

// Cache stores embeddings keyed by model and text hash. A nil Cache in the
// Embedder disables caching entirely.
type Cache interface {
	// GetMany returns one entry per key; a nil slice marks a miss.
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	// SetMany writes key/vector pairs with the cache TTL.
	SetMany(ctx context.Context, keys []string, vectors [][]float32) error
}

// CacheKey derives the cache key for one text under a model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embed:%s:%s", model, hex.EncodeToString(sum[:]))
}

// RedisCache backs the embedding cache with Redis. Vectors are stored as
// JSON arrays under SETEX.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(client *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, log: log.With().Str("component", "embed_cache").Logger()}
}

// GetMany fetches all keys in one MGET. Unparseable entries count as misses.
func (c *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache mget: %w", err)
	}

	out := make([][]float32, len(keys))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			c.log.Warn().Str("key", keys[i]).Msg("dropping unparseable cache entry")
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// SetMany writes all pairs through one pipeline.
func (c *RedisCache) SetMany(ctx context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("cache set: %d keys for %d vectors", len(keys), len(vectors))
	}
	pipe := c.client.Pipeline()
	for i, key := range keys {
		data, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("cache marshal: %w", err)
		}
		pipe.SetEx(ctx, key, data, cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache setex pipeline: %w", err)
	}
	return nil
}
