package domain

// RankedResult summarizes one re-rank pass over a listing collection. The
// pass also mutates the listings' Similarity and ImageMatch fields in place;
// Filtered holds the threshold-passing subset in descending similarity order.
type RankedResult struct {
	Threshold        float64    `json:"threshold"`
	Kept             int        `json:"kept"`
	TotalScored      int        `json:"total_scored"`
	MissingEmbedding int        `json:"n_missing_embedding"`
	Filtered         []*Listing `json:"-"`
}
