package rank

import (
	"testing"

	"github.com/snapvalue/snapvalue/internal/domain"
)

func listing(title string, vec []float32) *domain.Listing {
	l := &domain.Listing{Title: title}
	if vec != nil {
		l.Embedding = [][]float32{vec}
	}
	return l
}

func TestRerankBySimilarity(t *testing.T) {
	query := [][]float32{{1, 0}}

	t.Run("orders scored listings before unscored", func(t *testing.T) {
		items := []*domain.Listing{
			listing("no embedding", nil),
			listing("weak", []float32{0, 1}),
			listing("strong", []float32{1, 0}),
		}

		res := RerankBySimilarity(items, query, 0.55, 0)

		if items[0].Title != "strong" || items[1].Title != "weak" {
			t.Errorf("unexpected order: %q, %q, %q", items[0].Title, items[1].Title, items[2].Title)
		}
		if items[2].Title != "no embedding" || items[2].Similarity != nil {
			t.Errorf("unscored listing should sort last with nil score")
		}
		if res.TotalScored != 2 || res.MissingEmbedding != 1 {
			t.Errorf("unexpected counts: %+v", res)
		}
	})

	t.Run("filters below threshold", func(t *testing.T) {
		items := []*domain.Listing{
			listing("strong", []float32{1, 0}),
			listing("weak", []float32{0.3, 0.95}),
		}

		res := RerankBySimilarity(items, query, 0.55, 0)

		if res.Kept != 1 || len(res.Filtered) != 1 || res.Filtered[0].Title != "strong" {
			t.Errorf("unexpected filtered set: %+v", res)
		}
		if items[1].ImageMatch {
			t.Error("weak listing should not be flagged as match")
		}
	})

	t.Run("keepTopK truncates the filtered subset only", func(t *testing.T) {
		items := []*domain.Listing{
			listing("a", []float32{1, 0}),
			listing("b", []float32{0.9, 0.4}),
			listing("c", []float32{0.8, 0.6}),
		}

		res := RerankBySimilarity(items, query, 0.55, 2)

		if len(res.Filtered) != 2 {
			t.Errorf("expected 2 kept, got %d", len(res.Filtered))
		}
		if len(items) != 3 {
			t.Errorf("full slice must not shrink, got %d", len(items))
		}
	})

	t.Run("re-ranking is idempotent on counts", func(t *testing.T) {
		items := []*domain.Listing{
			listing("a", []float32{1, 0}),
			listing("b", []float32{0, 1}),
		}

		first := RerankBySimilarity(items, query, 0.55, 0)
		second := RerankBySimilarity(items, query, 0.55, 0)

		if first.Kept != second.Kept || first.TotalScored != second.TotalScored {
			t.Errorf("counts changed between passes: %+v vs %+v", first, second)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		res := RerankBySimilarity(nil, query, 0.55, 0)
		if res.Kept != 0 || res.TotalScored != 0 {
			t.Errorf("unexpected result for empty input: %+v", res)
		}
	})
}
