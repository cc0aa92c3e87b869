// Package pipeline orchestrates the extract flow: query generation,
// marketplace search, thumbnail embedding, similarity re-ranking, query
// refinement, and the final re-query that feeds the market analysis.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snapvalue/snapvalue/internal/domain"
	"github.com/snapvalue/snapvalue/internal/metrics"
	"github.com/snapvalue/snapvalue/internal/usecase/rank"
	"github.com/snapvalue/snapvalue/internal/usecase/refine"
	"github.com/snapvalue/snapvalue/internal/usecase/report"
)

// Search modes.
const (
	ModeActive = "active"
	ModeSold   = "sold"
	ModeBoth   = "both"
)

// NormalizeMode lower-cases and validates the requested search mode. An
// empty mode defaults to both sides.
func NormalizeMode(mode string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mode))
	switch m {
	case "":
		return ModeBoth, nil
	case ModeActive, ModeSold, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
}

// Config holds the pipeline tunables. All values are required; the config
// package supplies defaults.
type Config struct {
	FastCrops        domain.CropSet
	FullCrops        domain.CropSet
	MaxEmbedItems    int
	EnrichTopN       int
	SimilarityMin    float64
	FinalSimilarity  float64
	FinalKeepTopK    int
	RefineSimilarity float64
}

// Request is one extract invocation. MainImage is the reference photo the
// similarity pipeline scores against; ExtraImages only inform the query
// generator.
type Request struct {
	Mode        string
	ItemName    string
	Text        string
	MainImage   []byte
	ExtraImages [][]byte
}

// Service runs the extract pipeline.
type Service struct {
	search  Searcher
	gen     QueryGenerator
	images  domain.ImageEmbedder
	thumbs  Thumbnailer
	builder *report.Builder
	cfg     Config
	logger  *zap.Logger
}

// New creates a pipeline service.
func New(
	search Searcher, gen QueryGenerator, images domain.ImageEmbedder,
	thumbs Thumbnailer, builder *report.Builder, cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		search:  search,
		gen:     gen,
		images:  images,
		thumbs:  thumbs,
		builder: builder,
		cfg:     cfg,
		logger:  logger,
	}
}

// side holds the per-marketplace-side working state across pipeline stages.
type side struct {
	sold   bool
	items  []*domain.Listing
	ranked *domain.RankedResult
}

// Run executes the full pipeline, emitting progress events to sink as
// stages start and finish. Any returned error is fatal to the request; no
// result record is produced.
func (s *Service) Run(ctx context.Context, req Request, sink domain.EventSink) (*report.Result, error) {
	mode, err := NormalizeMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if len(req.MainImage) == 0 {
		return nil, fmt.Errorf("%w: empty main image", domain.ErrInvalidImage)
	}

	started := time.Now()
	prog := newProgress(sink)

	// Stage 1: query image embedding plus the initial query.
	prog.start("gen_query", "Generating marketplace query", 0.02, "")
	genStart := time.Now()

	queryVecs, err := s.images.EmbedImage(ctx, req.MainImage, s.cfg.FullCrops)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}

	var query domain.QueryState
	directFinal := false
	switch {
	case strings.TrimSpace(req.ItemName) != "":
		// A caller-supplied item name is authoritative: skip search-and-refine
		// and jump straight to the final marketplace query.
		query.Initial = strings.TrimSpace(req.ItemName)
		directFinal = true
	case strings.TrimSpace(req.Text) != "":
		query.Initial = strings.TrimSpace(req.Text)
	default:
		allImages := append([][]byte{req.MainImage}, req.ExtraImages...)
		generated, err := s.gen.Generate(ctx, allImages, "")
		if err != nil {
			return nil, err
		}
		query.Initial = generated.Query
		query.UsedLLM = true
	}
	metrics.PipelineStageDuration.WithLabelValues("gen_query").Observe(time.Since(genStart).Seconds())
	prog.done("gen_query", "Generating marketplace query", 0.18, query.Initial)

	sides := sidesFor(mode)

	if directFinal {
		query.Refined = query.Initial
		prog.done("query_mkt", "Querying marketplaces", 0.20, "skipped")
		prog.done("proc_imgs", "Processing item images", 0.65, "skipped")
		prog.done("refine", "Refining search query", 0.80, "skipped")
	} else {
		// Stage 2: concurrent marketplace searches.
		prog.start("query_mkt", "Querying marketplaces", 0.20, "")
		searchStart := time.Now()
		if err := s.searchSides(ctx, query.Initial, sides); err != nil {
			return nil, err
		}
		metrics.PipelineStageDuration.WithLabelValues("query_mkt").Observe(time.Since(searchStart).Seconds())
		prog.done("query_mkt", "Querying marketplaces", 0.30, countDetail(sides))

		// Stage 3: thumbnail embedding and the initial similarity pass.
		prog.start("proc_imgs", "Processing item images", 0.32, "")
		embedStart := time.Now()
		if err := s.embedAndRank(ctx, sides, queryVecs, s.cfg.SimilarityMin, 0); err != nil {
			return nil, err
		}
		metrics.PipelineStageDuration.WithLabelValues("proc_imgs").Observe(time.Since(embedStart).Seconds())
		prog.done("proc_imgs", "Processing item images", 0.65, "")

		// Stage 4: refinement gate, with one LLM fallback round when the
		// caller's free text led nowhere.
		prog.start("refine", "Refining search query", 0.67, "")
		refineStart := time.Now()
		query.Refined = refine.FromTopMatch(
			query.Initial, itemsOf(sides, false), itemsOf(sides, true),
			queryVecs, s.cfg.RefineSimilarity,
		)

		if query.Refined == "" && strings.TrimSpace(req.Text) != "" && !query.UsedLLM {
			s.logger.Info("refinement failed on user text, falling back to vision query")
			allImages := append([][]byte{req.MainImage}, req.ExtraImages...)
			generated, err := s.gen.Generate(ctx, allImages, "")
			if err != nil {
				return nil, err
			}
			query.Initial = generated.Query
			query.UsedLLM = true

			if err := s.searchSides(ctx, query.Initial, sides); err != nil {
				return nil, err
			}
			if err := s.embedAndRank(ctx, sides, queryVecs, s.cfg.SimilarityMin, 0); err != nil {
				return nil, err
			}
			query.Refined = refine.FromTopMatch(
				query.Initial, itemsOf(sides, false), itemsOf(sides, true),
				queryVecs, s.cfg.RefineSimilarity,
			)
		}
		metrics.PipelineStageDuration.WithLabelValues("refine").Observe(time.Since(refineStart).Seconds())
		prog.done("refine", "Refining search query", 0.80, query.Refined)
	}

	// Stage 5: final marketplace pass with the refined query, or a final
	// re-rank of the initial results when refinement produced nothing.
	requeryLabel := "Re-querying marketplaces"
	if directFinal {
		requeryLabel = "Querying marketplaces"
	}
	requeryStart := time.Now()
	if query.Refined != "" {
		prog.start("requery", requeryLabel, 0.82, query.Refined)
		if err := s.searchSides(ctx, query.Refined, sides); err != nil {
			return nil, err
		}
		if err := s.embedAndRank(ctx, sides, queryVecs, s.cfg.FinalSimilarity, s.cfg.FinalKeepTopK); err != nil {
			return nil, err
		}
		prog.done("requery", requeryLabel, 0.98, "")
	} else {
		for _, sd := range sides {
			ranked := rank.RerankBySimilarity(sd.items, queryVecs, s.cfg.FinalSimilarity, s.cfg.FinalKeepTopK)
			sd.ranked = &ranked
		}
		prog.done("requery", requeryLabel, 0.98, "skipped (no refined query)")
	}
	metrics.PipelineStageDuration.WithLabelValues("requery").Observe(time.Since(requeryStart).Seconds())

	var activeRanked, soldRanked *domain.RankedResult
	for _, sd := range sides {
		domain.StripEmbeddings(sd.items, rankedItems(sd.ranked))
		if sd.sold {
			soldRanked = sd.ranked
		} else {
			activeRanked = sd.ranked
		}
	}

	result := s.builder.Build(mode, query, activeRanked, soldRanked, time.Since(started).Seconds())
	s.logger.Info("pipeline finished",
		zap.String("mode", mode),
		zap.String("query", query.Final()),
		zap.Bool("used_llm", query.UsedLLM),
		zap.Float64("timing_sec", result.TimingSec))
	return result, nil
}

// searchSides runs the marketplace search for every requested side in
// parallel and replaces each side's working set.
func (s *Service) searchSides(ctx context.Context, query string, sides []*side) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sd := range sides {
		sd := sd
		g.Go(func() error {
			items, err := s.search.Search(gctx, query, sd.sold)
			if err != nil {
				return err
			}
			sd.items = items
			sd.ranked = nil
			return nil
		})
	}
	return g.Wait()
}

// embedAndRank is the shared triage flow for one search pass: cheap
// fast-crop embeddings over the capped head of each side, an initial rank,
// full-crop enrichment of the short-list, then the authoritative rank.
func (s *Service) embedAndRank(
	ctx context.Context, sides []*side, queryVecs [][]float32, threshold float64, keepTopK int,
) error {
	for _, sd := range sides {
		summary, err := s.thumbs.EmbedItems(ctx, sd.items, s.cfg.MaxEmbedItems, s.cfg.FastCrops)
		if err != nil {
			return err
		}
		s.logger.Debug("embedded side",
			zap.Bool("sold", sd.sold),
			zap.Int("processed", summary.Processed))

		rank.RerankBySimilarity(sd.items, queryVecs, threshold, 0)

		if err := s.thumbs.EnrichTopWithFullCrops(ctx, sd.items, s.cfg.EnrichTopN, s.cfg.FullCrops); err != nil {
			return err
		}

		ranked := rank.RerankBySimilarity(sd.items, queryVecs, threshold, keepTopK)
		sd.ranked = &ranked
	}
	return nil
}

func sidesFor(mode string) []*side {
	switch mode {
	case ModeActive:
		return []*side{{sold: false}}
	case ModeSold:
		return []*side{{sold: true}}
	default:
		return []*side{{sold: false}, {sold: true}}
	}
}

func itemsOf(sides []*side, sold bool) []*domain.Listing {
	for _, sd := range sides {
		if sd.sold == sold {
			return sd.items
		}
	}
	return nil
}

func rankedItems(r *domain.RankedResult) []*domain.Listing {
	if r == nil {
		return nil
	}
	return r.Filtered
}

func countDetail(sides []*side) string {
	total := 0
	for _, sd := range sides {
		total += len(sd.items)
	}
	return fmt.Sprintf("%d listings", total)
}

// progress enforces the stream invariants on top of the raw sink: Pct never
// decreases even when a stage reports a nominal position behind the current
// one.
type progress struct {
	sink domain.EventSink
	pct  float64
}

func newProgress(sink domain.EventSink) *progress {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &progress{sink: sink}
}

func (p *progress) start(stepID, label string, pct float64, detail string) {
	p.emit(stepID, label, domain.StepStart, pct, detail)
}

func (p *progress) done(stepID, label string, pct float64, detail string) {
	p.emit(stepID, label, domain.StepDone, pct, detail)
}

func (p *progress) emit(stepID, label string, status domain.StepStatus, pct float64, detail string) {
	if pct < p.pct {
		pct = p.pct
	}
	p.pct = pct
	p.sink.Emit(domain.Event{
		StepID: stepID,
		Label:  label,
		Status: status,
		Pct:    pct,
		Detail: detail,
	})
}
