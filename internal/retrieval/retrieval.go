// Package retrieval turns query text into ranked evidence hits against the
// in-memory corpus index.
package retrieval

import (
	"context"
	"fmt"
	"sync"

	"clinsight/internal/index"
	"clinsight/models"
)

// Embedder is the slice of the LLM provider retrieval needs.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine answers evidence queries. Safe for concurrent use; the only mutable
// state is the query-embedding cache.
type Engine struct {
	index    *index.Index
	embedder Embedder

	mu    sync.RWMutex
	cache map[string][]float32
}

func NewEngine(ix *index.Index, embedder Embedder) *Engine {
	return &Engine{index: ix, embedder: embedder, cache: make(map[string][]float32)}
}

// Search embeds the query and returns exactly k hits ranked by cosine
// similarity descending, ties in corpus order. Identical inputs always
// produce identical hit lists. Fewer than k hits means the corpus shrank
// below its load-time contract and is reported as an error, not padded.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]models.EvidenceHit, error) {
	vec, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := e.index.Search(vec, k)
	if len(hits) < k {
		return nil, &ShortResultError{Got: len(hits), Want: k}
	}
	return hits, nil
}

// ShortResultError means the index produced fewer hits than the fixed
// evidence-set size. The corpus size is validated at load, so this only
// happens when configuration and corpus disagree.
type ShortResultError struct {
	Got, Want int
}

func (e *ShortResultError) Error() string {
	return fmt.Sprintf("index returned %d hits, want %d", e.Got, e.Want)
}

func (e *Engine) embed(ctx context.Context, query string) ([]float32, error) {
	e.mu.RLock()
	vec, ok := e.cache[query]
	e.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vecs, err := e.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding backend returned %d vectors for one text", len(vecs))
	}

	e.mu.Lock()
	e.cache[query] = vecs[0]
	e.mu.Unlock()
	return vecs[0], nil
}
