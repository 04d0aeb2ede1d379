package index

import (
	"github.com/blevesearch/bleve"

	"clinsight/models"
)

// Keyword is a mem-only full-text index over corpus titles and snippets. It
// backs the corpus inspection endpoint and CLI, not the retrieval pipeline —
// evidence scoring is cosine-only.
type Keyword struct {
	idx  bleve.Index
	meta map[string]models.EvidenceDocument
}

// KeywordHit is a full-text match. Score is bleve relevance, unrelated to the
// cosine similarities used by the guardrails.
type KeywordHit struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Ref     string  `json:"ref"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type keywordDoc struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

func newKeyword(docs []models.EvidenceDocument) (*Keyword, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	meta := make(map[string]models.EvidenceDocument, len(docs))
	for _, doc := range docs {
		meta[doc.ID] = doc
		if err := idx.Index(doc.ID, keywordDoc{Title: doc.Title, Snippet: doc.Snippet}); err != nil {
			return nil, err
		}
	}
	return &Keyword{idx: idx, meta: meta}, nil
}

// Search runs a query-string search and returns up to k hits.
func (kw *Keyword) Search(q string, k int) ([]KeywordHit, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := kw.idx.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]KeywordHit, 0, k)
	for _, hit := range res.Hits {
		doc := kw.meta[hit.ID]
		out = append(out, KeywordHit{
			DocID:   doc.ID,
			Title:   doc.Title,
			Ref:     doc.Ref,
			Snippet: doc.Snippet,
			Score:   hit.Score,
		})
	}
	return out, nil
}
