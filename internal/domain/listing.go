package domain

import (
	"fmt"
	"strings"
)

// EmbedStatus is the thumbnail embedding outcome for a single listing.
type EmbedStatus string

// Thumbnail embedding status values.
const (
	EmbedStatusNone           EmbedStatus = ""
	EmbedStatusOK             EmbedStatus = "ok"
	EmbedStatusOKCached       EmbedStatus = "ok_cached"
	EmbedStatusNoThumbnail    EmbedStatus = "no_thumbnail"
	EmbedStatusDownloadFailed EmbedStatus = "download_failed"
	EmbedStatusEmbedFailed    EmbedStatus = "embed_failed"
)

// Condition is the normalized listing condition bucket.
type Condition string

// Normalized condition buckets.
const (
	ConditionNew     Condition = "new"
	ConditionUsed    Condition = "used"
	ConditionOther   Condition = "other"
	ConditionUnknown Condition = "unknown"
)

// Money is a marketplace price in whatever partial shape the upstream payload
// carried it. Extracted is the structured numeric form when present; Raw and
// Discount are display strings that may still contain a parsable amount.
type Money struct {
	Raw       string   `json:"raw,omitempty"`
	Extracted *float64 `json:"extracted,omitempty"`
	Discount  string   `json:"discount,omitempty"`
}

// Listing is one marketplace search candidate. The upstream payload is
// heterogeneous, so every field except Title is optional. The derived fields
// (Embedding, EmbedStatus, Similarity, ImageMatch) are attached by the
// pipeline and always reflect the most recent re-rank pass.
type Listing struct {
	ProductID string `json:"product_id,omitempty"`
	Title     string `json:"title"`
	Link      string `json:"link,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Condition string `json:"condition,omitempty"`
	Price     *Money `json:"price,omitempty"`
	OldPrice  *Money `json:"old_price,omitempty"`
	Shipping  string `json:"shipping,omitempty"`
	Location  string `json:"location,omitempty"`

	// Pipeline working state, never serialized.
	Embedding   [][]float32 `json:"-"`
	EmbedStatus EmbedStatus `json:"-"`

	Similarity *float64 `json:"image_similarity,omitempty"`
	ImageMatch bool     `json:"-"`
}

// CacheKey returns the embedding cache key for the listing: the product
// identifier when present, else the thumbnail URL. Empty means the listing
// has no image to embed and is never cached.
func (l *Listing) CacheKey() string {
	if strings.TrimSpace(l.Thumbnail) == "" {
		return ""
	}
	if l.ProductID != "" {
		return l.ProductID
	}
	return l.Thumbnail
}

// NormalizeCondition maps free-text condition strings into coarse buckets.
func NormalizeCondition(c string) Condition {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return ConditionUnknown
	}
	if strings.Contains(c, "brand new") || c == "new" {
		return ConditionNew
	}
	if strings.Contains(c, "pre-owned") || strings.Contains(c, "used") {
		return ConditionUsed
	}
	return ConditionOther
}

// ParseListing maps one raw marketplace result into a typed Listing. All the
// defensive extraction happens here, once, at the boundary; missing or
// malformed fields become zero values instead of errors.
func ParseListing(raw map[string]any) *Listing {
	l := &Listing{
		ProductID: stringField(raw, "product_id"),
		Title:     stringField(raw, "title"),
		Link:      stringField(raw, "link"),
		Thumbnail: stringField(raw, "thumbnail"),
		Condition: stringField(raw, "condition"),
		Location:  stringField(raw, "location"),
		Price:     moneyField(raw, "price"),
		OldPrice:  moneyField(raw, "old_price"),
	}

	// Shipping arrives either as a plain string or as {"raw": "..."}.
	switch v := raw["shipping"].(type) {
	case string:
		l.Shipping = v
	case map[string]any:
		l.Shipping = stringField(v, "raw")
	}

	return l
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

func moneyField(m map[string]any, key string) *Money {
	inner, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	money := &Money{
		Raw:      stringField(inner, "raw"),
		Discount: stringField(inner, "discount"),
	}
	if f, ok := inner["extracted"].(float64); ok {
		money.Extracted = &f
	}
	if money.Raw == "" && money.Discount == "" && money.Extracted == nil {
		return nil
	}
	return money
}

// StripEmbeddings clears the heavy per-listing working state from every
// listing in the given collections before output assembly.
func StripEmbeddings(lists ...[]*Listing) {
	for _, items := range lists {
		for _, it := range items {
			it.Embedding = nil
		}
	}
}
