// Package refine derives an improved marketplace query from the title of the
// best visually-matched listing, gated by similarity confidence.
package refine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// Generic marketing and condition words that carry no identifying signal.
var stopWords = map[string]struct{}{
	"new": {}, "sealed": {}, "tested": {}, "excellent": {}, "condition": {},
	"free": {}, "shipping": {}, "fast": {}, "ship": {}, "look": {}, "rare": {},
	"wow": {}, "vintage": {}, "lot": {}, "bundle": {}, "sale": {}, "only": {},
	"authentic": {}, "genuine": {}, "with": {}, "and": {}, "the": {}, "a": {},
	"an": {}, "in": {}, "of": {}, "for": {}, "to": {},
}

var (
	nonTokenChars = regexp.MustCompile(`[^\w\s\-/]`)
	// Model-number shapes like "kt-591", "xr500", "a-10".
	modelToken = regexp.MustCompile(`^[a-z]{0,4}[- ]?\d{2,6}[a-z]?$`)
)

const (
	maxCoreTokens   = 6
	maxStrongTokens = 10
	maxMergedTokens = 6
	// MinScoredItems is the smallest scored-listing count that makes a
	// comparative confidence judgment meaningful.
	MinScoredItems = 2
)

// ExtractStrongTokens pulls discriminative tokens out of a listing title.
// Model-number-shaped tokens come first, then core words (length >= 3,
// capped), deduplicated, capped at 10 total.
func ExtractStrongTokens(title string) []string {
	if title == "" {
		return nil
	}
	clean := nonTokenChars.ReplaceAllString(strings.ToLower(title), " ")

	var parts []string
	for _, p := range strings.Fields(clean) {
		if _, stop := stopWords[p]; !stop {
			parts = append(parts, p)
		}
	}

	var modelish, core []string
	for _, p := range parts {
		if modelToken.MatchString(p) {
			modelish = append(modelish, p)
		}
	}
	for _, p := range parts {
		if len(p) >= 3 {
			core = append(core, p)
			if len(core) == maxCoreTokens {
				break
			}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, p := range append(modelish, core...) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if len(out) == maxStrongTokens {
			break
		}
	}
	return out
}

// BuildRefinedQuery appends up to 6 strong tokens from the top title that are
// not already present in the original query. Returns the original unchanged
// when the title contributes nothing new.
func BuildRefinedQuery(originalQuery, topTitle string) string {
	base := strings.TrimSpace(originalQuery)
	tokens := ExtractStrongTokens(topTitle)
	if len(tokens) == 0 {
		return base
	}

	baseTokens := make(map[string]struct{})
	for _, t := range strings.Fields(nonTokenChars.ReplaceAllString(strings.ToLower(base), " ")) {
		baseTokens[t] = struct{}{}
	}

	merged := make([]string, 0, maxMergedTokens)
	for _, tok := range tokens {
		if _, present := baseTokens[tok]; present {
			continue
		}
		merged = append(merged, tok)
		if len(merged) == maxMergedTokens {
			break
		}
	}
	if len(merged) == 0 {
		return base
	}
	return strings.TrimSpace(base + " " + strings.Join(merged, " "))
}

// IfConfident is the refinement gate. It scores every embedded listing
// against the query vectors, requires at least two scored listings, and only
// trusts the top title when its similarity meets the threshold. Returns the
// refined query, or "" when confidence is too weak or refinement would not
// change the query (case-insensitive).
//
// Refinement is one-shot and precision-biased: a weak visual match must not
// pollute the search query.
func IfConfident(
	originalQuery string, items []*domain.Listing, queryVecs [][]float32, threshold float64,
) string {
	type scoredItem struct {
		sim float64
		it  *domain.Listing
	}

	var scored []scoredItem
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		scored = append(scored, scoredItem{
			sim: domain.BestMulticropSimilarity(queryVecs, it.Embedding),
			it:  it,
		})
	}
	if len(scored) < MinScoredItems {
		return ""
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].sim > scored[j].sim })
	if scored[0].sim < threshold {
		return ""
	}

	refined := BuildRefinedQuery(originalQuery, scored[0].it.Title)
	if strings.EqualFold(refined, strings.TrimSpace(originalQuery)) {
		return ""
	}
	return refined
}

// FromTopMatch prefers active listings for refinement and falls back to sold
// listings when no active ones are available.
func FromTopMatch(
	originalQuery string, activeItems, soldItems []*domain.Listing,
	queryVecs [][]float32, threshold float64,
) string {
	source := activeItems
	if len(source) == 0 {
		source = soldItems
	}
	if len(source) == 0 {
		return ""
	}
	return IfConfident(originalQuery, source, queryVecs, threshold)
}
