package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedEmbedder wraps an Embedder with an in-memory vector cache keyed by
// content hash. Technique anchor texts repeat for every document in a run,
// so caching them turns O(docs * techniques) embedding calls into
// O(techniques).
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCachedEmbedder wraps an embedder with a cache holding vectors for the
// given TTL.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// EmbedBatch serves cached vectors where possible and embeds only the
// misses, preserving input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := cacheKey(text)
		if v, found := c.cache.Get(key); found {
			vectors[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, v := range fresh {
		vectors[missIdx[j]] = v
		c.cache.Set(cacheKey(missTexts[j]), v, gocache.DefaultExpiration)
	}

	return vectors, nil
}

// cacheKey hashes text into a stable cache key.
func cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return "veridex:v1:" + hex.EncodeToString(hash[:])
}
