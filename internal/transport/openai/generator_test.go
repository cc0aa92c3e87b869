package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestGenerator(baseURL string) *Generator {
	return NewGenerator(&Config{
		APIKey:    "test-key",
		BaseURL:   baseURL + "/v1",
		Model:     "gpt-4o-mini",
		MaxTokens: 100,
		Logger:    zap.NewNop(),
	})
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	images := [][]byte{[]byte("fake image")}

	t.Run("parses strict JSON answer", func(t *testing.T) {
		srv := completionServer(t, `{"query":"pioneer kt-591 tuner","confidence":0.85}`)
		defer srv.Close()

		got, err := newTestGenerator(srv.URL).Generate(ctx, images, "old radio")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if got.Query != "pioneer kt-591 tuner" || got.Confidence != 0.85 {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("non-JSON answer is a bad response", func(t *testing.T) {
		srv := completionServer(t, "Sure! Here is the query you asked for.")
		defer srv.Close()

		_, err := newTestGenerator(srv.URL).Generate(ctx, images, "")
		if !errors.Is(err, domain.ErrBadCollaboratorResponse) {
			t.Errorf("expected ErrBadCollaboratorResponse, got %v", err)
		}
	})

	t.Run("missing query field is a bad response", func(t *testing.T) {
		srv := completionServer(t, `{"query":"","confidence":0.9}`)
		defer srv.Close()

		_, err := newTestGenerator(srv.URL).Generate(ctx, images, "")
		if !errors.Is(err, domain.ErrBadCollaboratorResponse) {
			t.Errorf("expected ErrBadCollaboratorResponse, got %v", err)
		}
	})

	t.Run("transport failure means collaborator unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestGenerator(srv.URL).Generate(ctx, images, "")
		if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
			t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
		}
	})
}
