// Package clip is the image embedding backend client. The backend is an
// HTTP service wrapping a CLIP-style model: image bytes plus crop fractions
// in, one L2-normalized vector per crop out. Running the model out of
// process keeps this service I/O-bound.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
	"github.com/snapvalue/snapvalue/internal/metrics"
)

// Embedder calls the CLIP embedding HTTP service.
type Embedder struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds the embedding backend settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewEmbedder creates an embedding backend client.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid embedding base URL: %w", err)
	}
	return &Embedder{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}, nil
}

var _ domain.ImageEmbedder = (*Embedder)(nil)

type embedRequest struct {
	Images []string  `json:"images"` // base64
	Crops  []float64 `json:"crops"`
}

type embedResponse struct {
	Results []struct {
		Vectors [][]float32 `json:"vectors,omitempty"`
		Error   string      `json:"error,omitempty"`
	} `json:"results"`
}

// EmbedImage implements domain.ImageEmbedder for a single image.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte, crops domain.CropSet) ([][]float32, error) {
	results, err := e.call(ctx, "single", [][]byte{image}, crops)
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return results[0].Vectors, nil
}

// EmbedImageBatch implements domain.ImageEmbedder. One result per input in
// input order; individual failures carry Err without failing the call.
func (e *Embedder) EmbedImageBatch(
	ctx context.Context, images [][]byte, crops domain.CropSet,
) ([]domain.BatchEmbedding, error) {
	if len(images) == 0 {
		return nil, nil
	}
	return e.call(ctx, "batch", images, crops)
}

func (e *Embedder) call(
	ctx context.Context, kind string, images [][]byte, crops domain.CropSet,
) ([]domain.BatchEmbedding, error) {
	reqBody := embedRequest{
		Images: make([]string, len(images)),
		Crops:  []float64(crops),
	}
	for i, img := range images {
		reqBody.Images[i] = base64.StdEncoding.EncodeToString(img)
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.http.Do(req)
	metrics.EmbeddingRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrEmbeddingBackend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("%w: status %d", domain.ErrEmbeddingBackend, resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("%w: decode response: %s", domain.ErrEmbeddingBackend, err)
	}
	if len(decoded.Results) != len(images) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("%w: got %d results for %d images",
			domain.ErrEmbeddingBackend, len(decoded.Results), len(images))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(kind, "ok").Inc()

	out := make([]domain.BatchEmbedding, len(decoded.Results))
	for i, r := range decoded.Results {
		if r.Error != "" {
			out[i] = domain.BatchEmbedding{Err: errors.New(r.Error)}
			continue
		}
		out[i] = domain.BatchEmbedding{Vectors: r.Vectors}
	}
	return out, nil
}
