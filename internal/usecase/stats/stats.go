// Package stats computes robust price statistics over heterogeneous
// marketplace listing payloads: extraction, percentiles, IQR outlier
// filtering, and condition-segmented summaries.
package stats

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/snapvalue/snapvalue/internal/domain"
)

var moneyPattern = regexp.MustCompile(`([\d,]+(\.\d+)?)`)

// ParseMoney extracts the first money-shaped number out of a display string
// like "$12,345.67". Returns nil when nothing matches.
func ParseMoney(s string) *float64 {
	m := moneyPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

// ExtractPrice pulls a usable price out of a listing, tolerating every
// partial shape the upstream payload produces. Priority: structured current
// price, raw current price string, old-price discount string, structured
// old price. Returns nil when nothing is parsable.
func ExtractPrice(it *domain.Listing) *float64 {
	if p := it.Price; p != nil {
		if p.Extracted != nil {
			v := *p.Extracted
			return &v
		}
		if p.Raw != "" {
			if parsed := ParseMoney(p.Raw); parsed != nil {
				return parsed
			}
		}
	}
	if op := it.OldPrice; op != nil {
		if op.Discount != "" {
			if parsed := ParseMoney(op.Discount); parsed != nil {
				return parsed
			}
		}
		if op.Extracted != nil {
			v := *op.Extracted
			return &v
		}
	}
	return nil
}

// Percentile computes the p-th percentile (0..1) of an ascending-sorted
// slice using linear interpolation between closest ranks (the R-7 method).
// Returns nil on empty input.
func Percentile(sortedVals []float64, p float64) *float64 {
	n := len(sortedVals)
	if n == 0 {
		return nil
	}
	if n == 1 {
		v := sortedVals[0]
		return &v
	}

	idx := float64(n-1) * p
	lo := math.Floor(idx)
	hi := math.Ceil(idx)
	if lo == hi {
		v := sortedVals[int(idx)]
		return &v
	}
	weight := idx - lo
	v := sortedVals[int(lo)]*(1-weight) + sortedVals[int(hi)]*weight
	return &v
}

// IQRBounds holds the quartiles and the 1.5*IQR fences. Low is clamped at
// zero since prices cannot be negative.
type IQRBounds struct {
	Q1   float64 `json:"q1"`
	Q3   float64 `json:"q3"`
	IQR  float64 `json:"iqr"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ComputeIQRBounds returns the outlier fences for an ascending-sorted slice,
// or nil when fewer than 4 values make quartiles meaningless.
func ComputeIQRBounds(sortedVals []float64) *IQRBounds {
	if len(sortedVals) < 4 {
		return nil
	}
	q1 := Percentile(sortedVals, 0.25)
	q3 := Percentile(sortedVals, 0.75)
	if q1 == nil || q3 == nil {
		return nil
	}
	iqr := *q3 - *q1
	return &IQRBounds{
		Q1:   *q1,
		Q3:   *q3,
		IQR:  iqr,
		Low:  math.Max(0, *q1-1.5*iqr),
		High: *q3 + 1.5*iqr,
	}
}

// OutlierResult is the outcome of an IQR filtering pass.
type OutlierResult struct {
	Filtered        []*domain.Listing
	OutliersRemoved int
	Bounds          *IQRBounds
}

// FilterOutliersIQR drops listings whose price falls outside the 1.5*IQR
// fences. Listings with no extractable price are always kept: price absence
// is not an outlier signal. With fewer than 4 priced listings the input is
// returned unchanged with nil bounds.
func FilterOutliersIQR(items []*domain.Listing) OutlierResult {
	prices := sortedPrices(items)
	bounds := ComputeIQRBounds(prices)
	if bounds == nil {
		return OutlierResult{Filtered: items}
	}

	filtered := make([]*domain.Listing, 0, len(items))
	removed := 0
	for _, it := range items {
		p := ExtractPrice(it)
		if p == nil || (*p >= bounds.Low && *p <= bounds.High) {
			filtered = append(filtered, it)
		} else {
			removed++
		}
	}
	return OutlierResult{Filtered: filtered, OutliersRemoved: removed, Bounds: bounds}
}

// PriceSummary is a five-number summary over the priced subset of a
// listing collection.
type PriceSummary struct {
	NTotal     int      `json:"n_items_total"`
	NWithPrice int      `json:"n_items_with_price"`
	Min        *float64 `json:"min_price"`
	Q1         *float64 `json:"q1_price"`
	Median     *float64 `json:"median_price"`
	Q3         *float64 `json:"q3_price"`
	Max        *float64 `json:"max_price"`
}

// ComputePriceSummary summarizes the prices found in a listing collection.
func ComputePriceSummary(items []*domain.Listing) PriceSummary {
	prices := sortedPrices(items)
	s := PriceSummary{
		NTotal:     len(items),
		NWithPrice: len(prices),
		Q1:         Percentile(prices, 0.25),
		Median:     Percentile(prices, 0.50),
		Q3:         Percentile(prices, 0.75),
	}
	if len(prices) > 0 {
		mn, mx := prices[0], prices[len(prices)-1]
		s.Min, s.Max = &mn, &mx
	}
	return s
}

// SegmentSummary pairs the raw and outlier-filtered summaries for one
// condition bucket.
type SegmentSummary struct {
	Raw             PriceSummary `json:"raw"`
	Filtered        PriceSummary `json:"filtered"`
	OutliersRemoved int          `json:"outliers_removed"`
	Bounds          *IQRBounds   `json:"iqr_bounds"`
}

// SegmentedSummaries holds the overall summary plus per-condition buckets.
type SegmentedSummaries struct {
	All         SegmentSummary                      `json:"all"`
	ByCondition map[domain.Condition]SegmentSummary `json:"by_condition"`
}

// ComputeSegmentedSummaries buckets listings by normalized condition and
// summarizes each bucket plus the whole collection.
func ComputeSegmentedSummaries(items []*domain.Listing) SegmentedSummaries {
	buckets := map[domain.Condition][]*domain.Listing{
		domain.ConditionNew:     nil,
		domain.ConditionUsed:    nil,
		domain.ConditionOther:   nil,
		domain.ConditionUnknown: nil,
	}
	for _, it := range items {
		c := domain.NormalizeCondition(it.Condition)
		buckets[c] = append(buckets[c], it)
	}

	out := SegmentedSummaries{
		All:         summarizeSegment(items),
		ByCondition: make(map[domain.Condition]SegmentSummary, len(buckets)),
	}
	for c, bucket := range buckets {
		out.ByCondition[c] = summarizeSegment(bucket)
	}
	return out
}

func summarizeSegment(items []*domain.Listing) SegmentSummary {
	res := FilterOutliersIQR(items)
	return SegmentSummary{
		Raw:             ComputePriceSummary(items),
		Filtered:        ComputePriceSummary(res.Filtered),
		OutliersRemoved: res.OutliersRemoved,
		Bounds:          res.Bounds,
	}
}

func sortedPrices(items []*domain.Listing) []float64 {
	prices := make([]float64, 0, len(items))
	for _, it := range items {
		if p := ExtractPrice(it); p != nil {
			prices = append(prices, *p)
		}
	}
	sort.Float64s(prices)
	return prices
}
