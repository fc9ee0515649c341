// Package rank scores content items against a query embedding by cosine
// similarity. Ranking is a deterministic full scan: results come back in
// descending score order and equal scores keep the candidate slice's
// original order, so callers can rely on snapshot insertion order as the
// tie-break.
package rank

import (
	"math"
	"sort"

	"github.com/curbside-labs/contenthub/engine/domain"
)

// Cosine returns the cosine similarity of a and b in [-1, 1]. A zero-norm
// vector carries no directional information, so either norm being zero
// yields 0 rather than an error. Mismatched lengths also yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every candidate against the query embedding and returns a
// fresh slice sorted descending by score. The sort is stable; candidates
// are never mutated.
func Rank(query []float32, items []domain.ContentItem) []domain.RankedResult {
	results := make([]domain.RankedResult, len(items))
	for i, item := range items {
		results[i] = domain.RankedResult{Item: item, Score: Cosine(query, item.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// TopK ranks the candidates and clips to the k best. k <= 0 returns nil.
func TopK(query []float32, items []domain.ContentItem, k int) []domain.RankedResult {
	if k <= 0 {
		return nil
	}
	results := Rank(query, items)
	if len(results) > k {
		results = results[:k]
	}
	return results
}
