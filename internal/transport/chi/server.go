// Package chi is the HTTP API: one multipart extract endpoint that streams
// pipeline progress and the final result as NDJSON records.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
	logpkg "github.com/snapvalue/snapvalue/internal/logger"
	pipelineuc "github.com/snapvalue/snapvalue/internal/usecase/pipeline"
)

// maxUploadBytes bounds the whole multipart body: a handful of phone photos,
// not an archive.
const maxUploadBytes = 32 << 20

// Server handles the extract API.
type Server struct {
	pipeline *pipelineuc.Service
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(pipeline *pipelineuc.Service, logger *zap.Logger) *Server {
	return &Server{pipeline: pipeline, logger: logger}
}

// Extract handles POST /v1/extract. The request is multipart form data:
// main_image (required photo), files (extra photos), itemName, text, and
// mode. Validation failures are plain JSON 400s; once the pipeline starts
// the response is an application/x-ndjson stream of step records followed
// by exactly one result or error record.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	logger := logpkg.FromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.logger.Debug("multipart parse failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}

	mode, err := pipelineuc.NormalizeMode(r.FormValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}

	mainImage, err := readImagePart(r, "main_image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	var extra [][]byte
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			img, err := readImageHeader(fh)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_image", err.Error())
				return
			}
			extra = append(extra, img)
		}
	}

	req := pipelineuc.Request{
		Mode:        mode,
		ItemName:    r.FormValue("itemName"),
		Text:        r.FormValue("text"),
		MainImage:   mainImage,
		ExtraImages: extra,
	}

	stream := newNDJSONStream(w)
	result, err := s.pipeline.Run(r.Context(), req, stream)
	if err != nil {
		logger.Warn("pipeline failed", zap.Error(err))
		stream.writeErrorRecord(err)
		return
	}
	stream.writeResult(result)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// readImagePart pulls one required image file out of the form.
func readImagePart(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, fmt.Errorf("%s file is required", field)
	}
	return readImageHeader(r.MultipartForm.File[field][0])
}

// readImageHeader reads one uploaded file and verifies the bytes sniff as an
// image. Declared content types are not trusted.
func readImageHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
	}

	if !strings.HasPrefix(http.DetectContentType(buf), "image/") {
		return nil, fmt.Errorf("upload %q is not an image", fh.Filename)
	}
	return buf, nil
}

// ndjsonStream writes one JSON record per line and flushes after each so
// clients see progress as it happens.
type ndjsonStream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
	started bool
}

func newNDJSONStream(w http.ResponseWriter) *ndjsonStream {
	flusher, _ := w.(http.Flusher)
	return &ndjsonStream{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

func (s *ndjsonStream) header() {
	if s.started {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

type stepRecord struct {
	Type string `json:"type"`
	domain.Event
}

// Emit implements domain.EventSink.
func (s *ndjsonStream) Emit(ev domain.Event) {
	s.header()
	_ = s.enc.Encode(stepRecord{Type: "step", Event: ev})
	s.flush()
}

func (s *ndjsonStream) writeResult(result any) {
	s.header()
	_ = s.enc.Encode(map[string]any{"type": "result", "data": result})
	s.flush()
}

func (s *ndjsonStream) writeErrorRecord(err error) {
	// Pre-stream failures still get a proper HTTP status; mid-stream ones
	// can only be reported in-band.
	if !s.started {
		class, status := classify(err)
		writeError(s.w, status, class, safeMessage(err))
		return
	}
	class, _ := classify(err)
	_ = s.enc.Encode(map[string]any{
		"type": "error",
		"error": map[string]string{
			"class":   class,
			"message": safeMessage(err),
		},
	})
	s.flush()
}

func (s *ndjsonStream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrInvalidMode):
		return "invalid_mode", http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidImage):
		return "invalid_image", http.StatusBadRequest
	case errors.Is(err, domain.ErrBadCollaboratorResponse):
		return "bad_collaborator_response", http.StatusBadGateway
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		return "collaborator_unavailable", http.StatusBadGateway
	case errors.Is(err, domain.ErrMarketplaceTimeout):
		return "marketplace_timeout", http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrMarketplaceHTTP):
		return "marketplace_http", http.StatusBadGateway
	case errors.Is(err, domain.ErrEmbeddingBackend):
		return "embedding_backend", http.StatusBadGateway
	default:
		return "internal", http.StatusInternalServerError
	}
}

// safeMessage returns a sentinel-level message without exposing internals.
func safeMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidMode,
		domain.ErrInvalidImage,
		domain.ErrBadCollaboratorResponse,
		domain.ErrCollaboratorUnavailable,
		domain.ErrMarketplaceTimeout,
		domain.ErrMarketplaceHTTP,
		domain.ErrEmbeddingBackend,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
