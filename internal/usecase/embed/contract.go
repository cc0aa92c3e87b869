package embed

import (
	"context"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// Downloader fetches thumbnail bytes. Implementations must reject bodies
// too small to be a real image.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Cache stores embedding vector sequences per (listing key, crop set).
type Cache interface {
	Get(ctx context.Context, key string, crops domain.CropSet) ([][]float32, bool)
	Put(ctx context.Context, key string, crops domain.CropSet, vectors [][]float32)
}
