package pipeline

import (
	"context"

	"github.com/snapvalue/snapvalue/internal/domain"
	embeduc "github.com/snapvalue/snapvalue/internal/usecase/embed"
)

// Searcher is the marketplace search backend contract.
type Searcher interface {
	Search(ctx context.Context, query string, sold bool) ([]*domain.Listing, error)
}

// QueryGenerator is the vision/text query-generation collaborator contract.
type QueryGenerator interface {
	Generate(ctx context.Context, images [][]byte, userText string) (domain.GeneratedQuery, error)
}

// Thumbnailer embeds listing thumbnails in failure-isolated batches.
type Thumbnailer interface {
	EmbedItems(ctx context.Context, items []*domain.Listing, maxItems int, crops domain.CropSet) (embeduc.Summary, error)
	EnrichTopWithFullCrops(ctx context.Context, items []*domain.Listing, topN int, crops domain.CropSet) error
}
