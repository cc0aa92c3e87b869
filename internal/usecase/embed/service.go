// Package embed downloads listing thumbnails and runs them through the
// image embedding backend in bounded, failure-isolated batches.
package embed

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snapvalue/snapvalue/internal/domain"
	"github.com/snapvalue/snapvalue/internal/metrics"
)

// Service embeds listing thumbnails. Per-listing download and embedding
// failures are recorded on the listing and never abort a batch; only a
// batch-level backend failure is returned as an error.
type Service struct {
	downloader  Downloader
	embedder    domain.ImageEmbedder
	cache       Cache
	concurrency int
	batchSize   int
	logger      *zap.Logger
}

// New creates a thumbnail embedding service. concurrency bounds parallel
// thumbnail downloads; batchSize bounds images per backend call.
func New(
	downloader Downloader, embedder domain.ImageEmbedder, cache Cache,
	concurrency, batchSize int, logger *zap.Logger,
) *Service {
	return &Service{
		downloader:  downloader,
		embedder:    embedder,
		cache:       cache,
		concurrency: concurrency,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Summary aggregates one embedding pass for observability.
type Summary struct {
	Processed    int
	StatusCounts map[domain.EmbedStatus]int
}

// EmbedItems embeds thumbnails for at most maxItems listings from the head
// of the slice (upstream search is relevance-ranked, so earlier listings
// matter more). Cached listings are marked ok_cached without a download.
func (s *Service) EmbedItems(
	ctx context.Context, items []*domain.Listing, maxItems int, crops domain.CropSet,
) (Summary, error) {
	target := items
	if maxItems > 0 && len(target) > maxItems {
		target = target[:maxItems]
	}

	if err := s.embedListings(ctx, target, crops); err != nil {
		return Summary{}, err
	}

	summary := Summary{Processed: len(target), StatusCounts: make(map[domain.EmbedStatus]int)}
	for _, it := range target {
		summary.StatusCounts[it.EmbedStatus]++
	}
	return summary, nil
}

// EnrichTopWithFullCrops re-embeds the current top-N listings by similarity
// score with the richer crop set. Cheap single-crop embeddings triage the
// whole result page; the short-list gets the accurate multi-crop score.
func (s *Service) EnrichTopWithFullCrops(
	ctx context.Context, items []*domain.Listing, topN int, crops domain.CropSet,
) error {
	scored := make([]*domain.Listing, 0, len(items))
	for _, it := range items {
		if it.Similarity != nil {
			scored = append(scored, it)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Similarity > *scored[j].Similarity
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}
	if len(scored) == 0 {
		return nil
	}
	return s.embedListings(ctx, scored, crops)
}

// embedListings is the shared two-phase flow: concurrent bounded downloads,
// then chunked batch embedding with per-item isolation.
func (s *Service) embedListings(ctx context.Context, target []*domain.Listing, crops domain.CropSet) error {
	downloaded := make([][]byte, len(target))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, it := range target {
		i, it := i, it
		g.Go(func() error {
			key := it.CacheKey()
			if key == "" {
				it.EmbedStatus = domain.EmbedStatusNoThumbnail
				return nil
			}

			if vecs, ok := s.cache.Get(gctx, key, crops); ok {
				it.Embedding = vecs
				it.EmbedStatus = domain.EmbedStatusOKCached
				return nil
			}

			body, err := s.downloader.Fetch(gctx, it.Thumbnail)
			if err != nil {
				metrics.ThumbnailDownloadsTotal.WithLabelValues("failed").Inc()
				s.logger.Debug("thumbnail download failed",
					zap.String("url", it.Thumbnail), zap.Error(err))
				it.EmbedStatus = domain.EmbedStatusDownloadFailed
				return nil
			}
			metrics.ThumbnailDownloadsTotal.WithLabelValues("ok").Inc()
			downloaded[i] = body
			return nil
		})
	}
	// Download workers absorb their own failures into listing status.
	if err := g.Wait(); err != nil {
		return fmt.Errorf("download thumbnails: %w", err)
	}

	var (
		pending      []*domain.Listing
		pendingBytes [][]byte
	)
	for i, it := range target {
		if downloaded[i] != nil {
			pending = append(pending, it)
			pendingBytes = append(pendingBytes, downloaded[i])
		}
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}

		results, err := s.embedder.EmbedImageBatch(ctx, pendingBytes[start:end], crops)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}

		for j, res := range results {
			it := pending[start+j]
			if res.Err != nil || len(res.Vectors) == 0 {
				s.logger.Debug("thumbnail embedding failed",
					zap.String("title", it.Title), zap.Error(res.Err))
				it.EmbedStatus = domain.EmbedStatusEmbedFailed
				continue
			}
			s.cache.Put(ctx, it.CacheKey(), crops, res.Vectors)
			it.Embedding = res.Vectors
			it.EmbedStatus = domain.EmbedStatusOK
		}
	}
	return nil
}
