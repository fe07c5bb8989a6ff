package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
)

// CachedEmbedder wraps another embedder with an in-memory LRU over query
// embeddings. Users ask the same questions repeatedly, and every question
// costs an embedding round trip before retrieval can start. Document
// embeddings are not cached: ingestion runs once per document.
type CachedEmbedder struct {
	next  lcembeddings.Embedder
	model string
	cache *expirable.LRU[string, []float32]
}

var _ lcembeddings.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder decorates next with a query-embedding cache of the given
// size and entry TTL. With a non-positive size or TTL it returns next
// unchanged.
func NewCachedEmbedder(next lcembeddings.Embedder, model string, size int, ttl time.Duration) lcembeddings.Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &CachedEmbedder{
		next:  next,
		model: model,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return cloneEmbedding(vec), nil
	}

	vec, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, cloneEmbedding(vec))
	return vec, nil
}

func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.EmbedDocuments(ctx, texts)
}

// cacheKey includes the model name so a model change never serves stale
// vectors from a previous configuration.
func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
