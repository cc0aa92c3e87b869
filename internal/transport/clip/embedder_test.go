package clip

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
)

var testCrops = domain.CropSet{1.0, 0.85}

func newTestEmbedder(t *testing.T, baseURL string) *Embedder {
	t.Helper()
	e, err := NewEmbedder(&Config{BaseURL: baseURL, Timeout: time.Second, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	return e
}

func TestEmbedImage(t *testing.T) {
	t.Run("decodes vectors and sends crops", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Images []string  `json:"images"`
				Crops  []float64 `json:"crops"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if len(req.Images) != 1 || len(req.Crops) != 2 {
				t.Errorf("unexpected request shape: %d images, %d crops", len(req.Images), len(req.Crops))
			}
			_, _ = w.Write([]byte(`{"results":[{"vectors":[[1,0],[0.6,0.8]]}]}`))
		}))
		defer srv.Close()

		vecs, err := newTestEmbedder(t, srv.URL).EmbedImage(context.Background(), []byte("img"), testCrops)
		if err != nil {
			t.Fatalf("EmbedImage: %v", err)
		}
		if len(vecs) != 2 || vecs[0][0] != 1 {
			t.Errorf("unexpected vectors: %v", vecs)
		}
	})

	t.Run("per-image error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"error":"decode failed"}]}`))
		}))
		defer srv.Close()

		_, err := newTestEmbedder(t, srv.URL).EmbedImage(context.Background(), []byte("img"), testCrops)
		if err == nil {
			t.Error("expected error for failed image")
		}
	})
}

func TestEmbedImageBatch(t *testing.T) {
	t.Run("isolates per-item failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"vectors":[[1,0]]},{"error":"bad image"}]}`))
		}))
		defer srv.Close()

		res, err := newTestEmbedder(t, srv.URL).
			EmbedImageBatch(context.Background(), [][]byte{[]byte("a"), []byte("b")}, testCrops)
		if err != nil {
			t.Fatalf("EmbedImageBatch: %v", err)
		}
		if len(res) != 2 {
			t.Fatalf("expected 2 results, got %d", len(res))
		}
		if res[0].Err != nil || len(res[0].Vectors) != 1 {
			t.Errorf("unexpected first result: %+v", res[0])
		}
		if res[1].Err == nil {
			t.Error("expected error on second result")
		}
	})

	t.Run("result count mismatch is a backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"vectors":[[1,0]]}]}`))
		}))
		defer srv.Close()

		_, err := newTestEmbedder(t, srv.URL).
			EmbedImageBatch(context.Background(), [][]byte{[]byte("a"), []byte("b")}, testCrops)
		if !errors.Is(err, domain.ErrEmbeddingBackend) {
			t.Errorf("expected ErrEmbeddingBackend, got %v", err)
		}
	})

	t.Run("http failure is a backend error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestEmbedder(t, srv.URL).
			EmbedImageBatch(context.Background(), [][]byte{[]byte("a")}, testCrops)
		if !errors.Is(err, domain.ErrEmbeddingBackend) {
			t.Errorf("expected ErrEmbeddingBackend, got %v", err)
		}
	})

	t.Run("empty batch short-circuits", func(t *testing.T) {
		res, err := newTestEmbedder(t, "http://unused").
			EmbedImageBatch(context.Background(), nil, testCrops)
		if err != nil || res != nil {
			t.Errorf("expected nil, nil; got %v, %v", res, err)
		}
	})
}
