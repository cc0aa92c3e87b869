package images

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	t.Run("returns body", func(t *testing.T) {
		payload := bytes.Repeat([]byte("x"), 200)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer srv.Close()

		got, err := NewDownloader(time.Second).Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("unexpected body: %d bytes", len(got))
		}
	})

	t.Run("rejects tiny bodies", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("1x1"))
		}))
		defer srv.Close()

		if _, err := NewDownloader(time.Second).Fetch(context.Background(), srv.URL); err == nil {
			t.Error("expected error for tracking-pixel-sized body")
		}
	})

	t.Run("rejects non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		if _, err := NewDownloader(time.Second).Fetch(context.Background(), srv.URL); err == nil {
			t.Error("expected error for 404")
		}
	})
}
