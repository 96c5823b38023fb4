package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tinoosan/walletledger/internal/metrics"
)

// CachedEmbedder memoizes embeddings by a hash of the text.
type CachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func NewCachedEmbedder(next Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = 1024
	}
	return &CachedEmbedder{next: next, cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		metrics.EmbeddingCache.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.EmbeddingCache.WithLabelValues("miss").Inc()
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}
