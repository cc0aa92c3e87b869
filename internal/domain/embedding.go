package domain

import "context"

// ImageEmbedder is the shared image vectorization contract between layers.
// Implementations return one L2-normalized vector per crop fraction,
// order-preserving.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte, crops CropSet) ([][]float32, error)
	// EmbedImageBatch vectorizes multiple images in one call. The result has
	// exactly one entry per input in input order regardless of individual
	// failures; a failed entry carries Err and no vectors.
	EmbedImageBatch(ctx context.Context, images [][]byte, crops CropSet) ([]BatchEmbedding, error)
}

// BatchEmbedding is the per-image outcome of a batch embedding call.
type BatchEmbedding struct {
	Vectors [][]float32
	Err     error
}
