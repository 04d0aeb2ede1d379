// Package index holds the evidence corpus in memory. The index is built
// offline, loaded once at process start, and never mutated afterwards, so any
// number of requests can search it concurrently without coordination.
package index

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"clinsight/models"
)

// Index is the immutable in-memory corpus: document metadata and embeddings in
// parallel, plus a keyword index over titles and snippets.
type Index struct {
	docs    []models.EvidenceDocument
	keyword *Keyword
	dim     int
}

// Load reads a corpus JSON file and validates it. Documents with zero-norm
// embeddings are dropped; if fewer than minDocs usable documents remain, or
// dimensions disagree, Load fails — a corpus too small to answer a top-k query
// is a configuration error, not something to paper over at request time.
func Load(path string, dim, minDocs int) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var docs []models.EvidenceDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	return New(docs, dim, minDocs)
}

// New builds an index from already-parsed documents. Shared by Load and tests.
func New(docs []models.EvidenceDocument, dim, minDocs int) (*Index, error) {
	usable := make([]models.EvidenceDocument, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != dim {
			return nil, fmt.Errorf("corpus document %q: embedding has %d dimensions, want %d", doc.ID, len(doc.Embedding), dim)
		}
		if norm(doc.Embedding) == 0 {
			continue
		}
		usable = append(usable, doc)
	}
	if len(usable) < minDocs {
		return nil, fmt.Errorf("corpus has %d usable documents, need at least %d", len(usable), minDocs)
	}
	kw, err := newKeyword(usable)
	if err != nil {
		return nil, fmt.Errorf("keyword index: %w", err)
	}
	return &Index{docs: usable, keyword: kw, dim: dim}, nil
}

// Len returns the number of usable documents.
func (ix *Index) Len() int { return len(ix.docs) }

// Dimensions returns the embedding width the index was loaded with.
func (ix *Index) Dimensions() int { return ix.dim }

// KeywordSearch exposes the full-text side of the index.
func (ix *Index) KeywordSearch(q string, k int) ([]KeywordHit, error) {
	return ix.keyword.Search(q, k)
}

// Search returns the top-k documents by cosine similarity to the query
// vector: similarity descending, ties broken by corpus insertion order so the
// same query always yields the same hit list. If the corpus holds fewer than
// k documents (only possible when minDocs was set below k) all are returned.
func (ix *Index) Search(query []float32, k int) []models.EvidenceHit {
	type scored struct {
		pos int
		sim float64
	}
	scoreds := make([]scored, len(ix.docs))
	for i, doc := range ix.docs {
		scoreds[i] = scored{pos: i, sim: Cosine(query, doc.Embedding)}
	}
	sort.SliceStable(scoreds, func(i, j int) bool { return scoreds[i].sim > scoreds[j].sim })

	if k > len(scoreds) {
		k = len(scoreds)
	}
	hits := make([]models.EvidenceHit, 0, k)
	for _, sc := range scoreds[:k] {
		doc := ix.docs[sc.pos]
		hits = append(hits, models.EvidenceHit{
			DocID:            doc.ID,
			Title:            doc.Title,
			Ref:              doc.Ref,
			Snippet:          doc.Snippet,
			CosineSimilarity: sc.sim,
		})
	}
	return hits
}

// Cosine is the normalized dot product of a and b, clamped to [0,1]. Zero-norm
// inputs score 0. Negative similarities are clamped because downstream scoring
// treats similarity as a [0,1] grounding signal.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
