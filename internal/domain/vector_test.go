package domain

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical normalized vectors", func(t *testing.T) {
		v := []float32{0.6, 0.8}
		if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-6 {
			t.Errorf("expected ~1.0, got %v", got)
		}
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("empty vector returns sentinel", func(t *testing.T) {
		if got := CosineSimilarity(nil, []float32{1, 0}); got != -1.0 {
			t.Errorf("expected -1.0, got %v", got)
		}
	})

	t.Run("length mismatch returns sentinel", func(t *testing.T) {
		if got := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0}); got != -1.0 {
			t.Errorf("expected -1.0, got %v", got)
		}
	})
}

func TestBestMulticropSimilarity(t *testing.T) {
	t.Run("picks best pair across all crops", func(t *testing.T) {
		query := [][]float32{{1, 0}, {0, 1}}
		item := [][]float32{{0.6, 0.8}}

		got := BestMulticropSimilarity(query, item)
		if math.Abs(got-0.8) > 1e-6 {
			t.Errorf("expected 0.8, got %v", got)
		}
	})

	t.Run("crop order does not change the result", func(t *testing.T) {
		query := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
		item := [][]float32{{0.8, 0.6}, {0, 1}}

		want := BestMulticropSimilarity(query, item)

		shuffledQuery := [][]float32{{0.6, 0.8}, {1, 0}, {0, 1}}
		shuffledItem := [][]float32{{0, 1}, {0.8, 0.6}}
		if got := BestMulticropSimilarity(shuffledQuery, item); got != want {
			t.Errorf("query crop order changed result: %v vs %v", got, want)
		}
		if got := BestMulticropSimilarity(query, shuffledItem); got != want {
			t.Errorf("item crop order changed result: %v vs %v", got, want)
		}
	})

	t.Run("empty item vectors return sentinel", func(t *testing.T) {
		if got := BestMulticropSimilarity([][]float32{{1, 0}}, nil); got != -1.0 {
			t.Errorf("expected -1.0, got %v", got)
		}
	})

	t.Run("mismatched pair does not beat sentinel floor", func(t *testing.T) {
		query := [][]float32{{1, 0, 0}}
		item := [][]float32{{1, 0}}
		if got := BestMulticropSimilarity(query, item); got != -1.0 {
			t.Errorf("expected -1.0, got %v", got)
		}
	})
}
