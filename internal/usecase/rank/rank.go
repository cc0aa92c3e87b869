// Package rank scores and re-orders marketplace listings by visual
// similarity against the query image embedding.
package rank

import (
	"sort"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// RerankBySimilarity attaches a best-multicrop similarity score and a
// threshold match flag to every listing that carries embeddings, then sorts
// the slice in place: scored listings first, highest similarity first.
// Listings without embeddings get a nil score, match=false, and are counted
// as missing.
//
// The in-place mutation is part of the contract: callers keep their listing
// references and read the attached fields after the pass. The returned
// summary carries the threshold-passing subset; keepTopK > 0 truncates that
// subset (not the full sorted slice).
func RerankBySimilarity(
	items []*domain.Listing, queryVecs [][]float32, threshold float64, keepTopK int,
) domain.RankedResult {
	var missing, scored int

	for _, it := range items {
		if len(it.Embedding) == 0 {
			it.Similarity = nil
			it.ImageMatch = false
			missing++
			continue
		}
		sim := domain.BestMulticropSimilarity(queryVecs, it.Embedding)
		it.Similarity = &sim
		it.ImageMatch = sim >= threshold
		scored++
	}

	sort.SliceStable(items, func(i, j int) bool {
		si, sj := items[i].Similarity, items[j].Similarity
		if (si != nil) != (sj != nil) {
			return si != nil
		}
		if si == nil {
			return false
		}
		return *si > *sj
	})

	filtered := make([]*domain.Listing, 0, len(items))
	for _, it := range items {
		if it.ImageMatch {
			filtered = append(filtered, it)
		}
	}
	if keepTopK > 0 && len(filtered) > keepTopK {
		filtered = filtered[:keepTopK]
	}

	return domain.RankedResult{
		Threshold:        threshold,
		Kept:             len(filtered),
		TotalScored:      scored,
		MissingEmbedding: missing,
		Filtered:         filtered,
	}
}
