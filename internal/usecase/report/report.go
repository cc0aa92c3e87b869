// Package report assembles the final market-analysis response from the
// ranked listing sets. Pure aggregation: the same inputs always produce the
// same output.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/snapvalue/snapvalue/internal/domain"
	"github.com/snapvalue/snapvalue/internal/usecase/stats"
)

// Category is the coarse item category inferred from query and titles.
type Category string

// Inferred categories.
const (
	CategoryClothing Category = "clothing"
	CategoryPuzzle   Category = "puzzle"
	CategoryAudio    Category = "audio"
	CategoryGeneral  Category = "general"
)

// PriceRange is an outlier-filtered five-number price summary, rounded to
// cents.
type PriceRange struct {
	N      int      `json:"n"`
	Low    *float64 `json:"low"`
	Q1     *float64 `json:"q1"`
	Median *float64 `json:"median"`
	Q3     *float64 `json:"q3"`
	High   *float64 `json:"high"`
}

// SideAnalysis summarizes one marketplace side (active or sold).
type SideAnalysis struct {
	SimilarCount int         `json:"similar_count"`
	PriceRange   *PriceRange `json:"price_range"`
}

// MarketAnalysis is the numeric core of the final response.
type MarketAnalysis struct {
	Active       SideAnalysis `json:"active"`
	Sold         SideAnalysis `json:"sold"`
	SellVelocity string       `json:"sell_velocity"`
	Rarity       string       `json:"rarity"`
}

// Result is the final client-facing record.
type Result struct {
	Mode           string            `json:"mode"`
	UsedLLM        bool              `json:"used_llm_for_initial_query"`
	InitialQuery   string            `json:"initial_query"`
	RefinedQuery   string            `json:"refined_query,omitempty"`
	MarketAnalysis MarketAnalysis    `json:"market_analysis"`
	LegitCheck     []string          `json:"legit_check_advice"`
	ActiveListings []*domain.Listing `json:"active_listings"`
	SoldListings   []*domain.Listing `json:"sold_listings"`
	Summary        string            `json:"summary"`
	TimingSec      float64           `json:"timing_sec"`
}

// Builder assembles final results.
type Builder struct {
	exampleCap int
}

// NewBuilder creates a result builder. exampleCap bounds the example
// listings returned per side.
func NewBuilder(exampleCap int) *Builder {
	return &Builder{exampleCap: exampleCap}
}

// Build produces the final response from the last ranked pass of each side.
// Ranked results may be nil when a side was not searched.
func (b *Builder) Build(
	mode string, query domain.QueryState,
	activeRanked, soldRanked *domain.RankedResult,
	timingSec float64,
) *Result {
	activeMatches := filteredOf(activeRanked)
	soldMatches := filteredOf(soldRanked)

	activeRange := rangeFor(activeMatches)
	soldRange := rangeFor(soldMatches)

	activeN := len(activeMatches)
	soldN := len(soldMatches)

	activeListings := exampleListings(activeMatches, b.exampleCap)
	soldListings := exampleListings(soldMatches, b.exampleCap)

	category := inferCategory(query.Final(), activeListings)
	rarity := rarityLabel(activeN, soldN)
	velocity := velocityLabel(activeN, soldN)

	return &Result{
		Mode:         mode,
		UsedLLM:      query.UsedLLM,
		InitialQuery: query.Initial,
		RefinedQuery: query.Refined,
		MarketAnalysis: MarketAnalysis{
			Active:       SideAnalysis{SimilarCount: activeN, PriceRange: activeRange},
			Sold:         SideAnalysis{SimilarCount: soldN, PriceRange: soldRange},
			SellVelocity: velocity,
			Rarity:       rarity,
		},
		LegitCheck:     legitAdvice(category),
		ActiveListings: activeListings,
		SoldListings:   soldListings,
		Summary:        buildSummary(query.Final(), activeRange, soldRange, rarity, velocity),
		TimingSec:      math.Round(timingSec*1000) / 1000,
	}
}

func filteredOf(r *domain.RankedResult) []*domain.Listing {
	if r == nil {
		return nil
	}
	return r.Filtered
}

// rangeFor computes the outlier-filtered price range for the matched
// subset; nil when the side has no matches or no prices.
func rangeFor(matches []*domain.Listing) *PriceRange {
	if len(matches) == 0 {
		return nil
	}
	filtered := stats.FilterOutliersIQR(matches).Filtered
	summary := stats.ComputePriceSummary(filtered)
	return &PriceRange{
		N:      summary.NWithPrice,
		Low:    roundMoney(summary.Min),
		Q1:     roundMoney(summary.Q1),
		Median: roundMoney(summary.Median),
		Q3:     roundMoney(summary.Q3),
		High:   roundMoney(summary.Max),
	}
}

func roundMoney(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

func exampleListings(items []*domain.Listing, limit int) []*domain.Listing {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.Listing, len(items))
	copy(out, items)
	return out
}

var categoryKeywords = map[Category][]string{
	CategoryClothing: {"t-shirt", "tshirt", "tee", "hoodie", "sweater", "jacket", "jeans", "pants"},
	CategoryPuzzle:   {"puzzle", "jigsaw", "buffalo games", "ravensburger"},
	CategoryAudio:    {"tuner", "receiver", "am-fm", "stereo", "turntable", "speaker"},
}

func inferCategory(query string, examples []*domain.Listing) Category {
	var sb strings.Builder
	sb.WriteString(query)
	for _, it := range examples {
		sb.WriteString(" ")
		sb.WriteString(it.Title)
	}
	text := strings.ToLower(sb.String())

	for _, cat := range []Category{CategoryClothing, CategoryPuzzle, CategoryAudio} {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				return cat
			}
		}
	}
	return CategoryGeneral
}

func legitAdvice(category Category) []string {
	switch category {
	case CategoryClothing:
		return []string{
			"Check tag details (brand, fabric, RN/CA numbers) and compare to known authentic examples.",
			"Look for era-specific construction cues (e.g., single-stitch, made-in country, label style) if the listing claims 'vintage'.",
			"Watch for stock photos only, inconsistent sizing, or logos that look too crisp/new for the claimed era.",
		}
	case CategoryPuzzle:
		return []string{
			"Verify original brand/piece count on the box (front and side panels) and match it across listings.",
			"Sealed condition tends to be more consistent; if opened, look for notes about 'complete' and included poster/insert.",
			"Be cautious of listings with only generic images or missing clear photos of the front/title.",
		}
	case CategoryAudio:
		return []string{
			"Confirm model number from visible faceplate/back-panel text and compare port layout/knob arrangement to reference photos.",
			"Ask for photos showing serial number/labels and verify key parts (buttons/knobs) match the model.",
			"Be cautious with vague 'powers on' claims; look for 'tested' details and return policy.",
		}
	default:
		return []string{
			"Compare branding/model identifiers across multiple listings; prefer listings with clear photos from several angles.",
			"Be cautious of unusually low prices relative to the typical sold range and listings using only stock images.",
			"Check seller feedback, return policy, and whether the description matches what the photos show.",
		}
	}
}

func rarityLabel(activeN, soldN int) string {
	if soldN <= 2 && activeN <= 3 {
		return "high"
	}
	if soldN <= 6 && activeN <= 10 {
		return "medium"
	}
	return "common"
}

func velocityLabel(activeN, soldN int) string {
	score := float64(soldN) / float64(activeN+1)
	if score >= 1.0 {
		return "fast"
	}
	if score >= 0.35 {
		return "moderate"
	}
	return "slow"
}

func buildSummary(query string, activeRange, soldRange *PriceRange, rarity, velocity string) string {
	parts := []string{fmt.Sprintf("Query: %s.", query)}
	if soldRange != nil && soldRange.N > 0 {
		parts = append(parts, fmt.Sprintf(
			"Sold listings (similar items) cluster around $%s, with a typical range of $%s–$%s after outlier filtering.",
			money(soldRange.Median), money(soldRange.Low), money(soldRange.High)))
	}
	if activeRange != nil && activeRange.N > 0 {
		parts = append(parts, fmt.Sprintf(
			"Active listings are commonly priced around $%s (about $%s–$%s after filtering).",
			money(activeRange.Median), money(activeRange.Low), money(activeRange.High)))
	}
	parts = append(parts, fmt.Sprintf(
		"Rarity looks %s, and sell-through appears %s based on sold vs active counts.", rarity, velocity))
	return strings.Join(parts, " ")
}

func money(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.2f", *v)
}
