package domain

// CosineSimilarity computes cosine similarity for already L2-normalized
// vectors, where cosine reduces to the dot product. Returns -1.0 (an
// impossible similarity for normalized inputs) when either vector is empty
// or the lengths differ. Never panics.
func CosineSimilarity(u, v []float32) float64 {
	if len(u) == 0 || len(v) == 0 || len(u) != len(v) {
		return -1.0
	}
	var dot float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
	}
	return dot
}

// BestMulticropSimilarity returns the maximum cosine similarity across all
// (query crop, item crop) vector pairs. A match counts if ANY crop pair
// aligns: query photos and marketplace thumbnails frame the object
// differently, so the best pair is the meaningful signal.
func BestMulticropSimilarity(queryVecs, itemVecs [][]float32) float64 {
	best := -1.0
	for _, qv := range queryVecs {
		for _, iv := range itemVecs {
			if s := CosineSimilarity(qv, iv); s > best {
				best = s
			}
		}
	}
	return best
}
