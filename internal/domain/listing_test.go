package domain

import "testing"

func TestParseListing(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		raw := map[string]any{
			"product_id": "123456",
			"title":      "Pioneer TX-9500 Tuner",
			"link":       "https://example.com/itm/123456",
			"thumbnail":  "https://example.com/t.jpg",
			"condition":  "Pre-Owned",
			"price":      map[string]any{"raw": "$120.00", "extracted": 120.0},
			"old_price":  map[string]any{"extracted": 150.0},
			"shipping":   "Free shipping",
			"location":   "US",
		}

		l := ParseListing(raw)
		if l.Title != "Pioneer TX-9500 Tuner" {
			t.Errorf("unexpected title %q", l.Title)
		}
		if l.Price == nil || l.Price.Extracted == nil || *l.Price.Extracted != 120.0 {
			t.Errorf("unexpected price %+v", l.Price)
		}
		if l.OldPrice == nil || l.OldPrice.Extracted == nil || *l.OldPrice.Extracted != 150.0 {
			t.Errorf("unexpected old price %+v", l.OldPrice)
		}
		if l.Shipping != "Free shipping" {
			t.Errorf("unexpected shipping %q", l.Shipping)
		}
	})

	t.Run("shipping as object", func(t *testing.T) {
		l := ParseListing(map[string]any{
			"title":    "item",
			"shipping": map[string]any{"raw": "+$5.99 shipping"},
		})
		if l.Shipping != "+$5.99 shipping" {
			t.Errorf("unexpected shipping %q", l.Shipping)
		}
	})

	t.Run("missing fields become zero values", func(t *testing.T) {
		l := ParseListing(map[string]any{"title": "bare"})
		if l.Price != nil || l.OldPrice != nil || l.Thumbnail != "" {
			t.Errorf("expected zero values, got %+v", l)
		}
	})

	t.Run("numeric product id stringified", func(t *testing.T) {
		l := ParseListing(map[string]any{"title": "x", "product_id": 42.0})
		if l.ProductID != "42" {
			t.Errorf("expected \"42\", got %q", l.ProductID)
		}
	})

	t.Run("empty price object dropped", func(t *testing.T) {
		l := ParseListing(map[string]any{"title": "x", "price": map[string]any{}})
		if l.Price != nil {
			t.Errorf("expected nil price, got %+v", l.Price)
		}
	})
}

func TestListingCacheKey(t *testing.T) {
	tests := []struct {
		name    string
		listing Listing
		want    string
	}{
		{"product id preferred", Listing{ProductID: "p1", Thumbnail: "https://x/t.jpg"}, "p1"},
		{"thumbnail fallback", Listing{Thumbnail: "https://x/t.jpg"}, "https://x/t.jpg"},
		{"no thumbnail means no key", Listing{ProductID: "p1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.listing.CacheKey(); got != tt.want {
				t.Errorf("CacheKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"Brand New", ConditionNew},
		{"new", ConditionNew},
		{"Pre-Owned", ConditionUsed},
		{"Used - Very Good", ConditionUsed},
		{"Open Box", ConditionOther},
		{"", ConditionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeCondition(tt.in); got != tt.want {
				t.Errorf("NormalizeCondition(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripEmbeddings(t *testing.T) {
	a := &Listing{Title: "a", Embedding: [][]float32{{1}}}
	b := &Listing{Title: "b", Embedding: [][]float32{{2}}}

	StripEmbeddings([]*Listing{a}, []*Listing{b})

	if a.Embedding != nil || b.Embedding != nil {
		t.Error("expected embeddings cleared")
	}
}
