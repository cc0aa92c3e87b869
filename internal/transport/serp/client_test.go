package serp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
)

func newTestClient(endpoint string) *Client {
	return NewClient(&Config{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		PageSize:       50,
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   time.Second,
		Logger:         zap.NewNop(),
	})
}

func TestSearch(t *testing.T) {
	t.Run("parses organic results and passes params", func(t *testing.T) {
		var gotQuery, gotShowOnly string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("_nkw")
			gotShowOnly = r.URL.Query().Get("show_only")
			if r.URL.Query().Get("engine") != "ebay" {
				t.Errorf("expected ebay engine, got %q", r.URL.Query().Get("engine"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"organic_results":[
				{"title":"Pioneer KT-591 Tuner","price":{"raw":"$120.00","extracted":120.0},
				 "thumbnail":"https://x/t.jpg","shipping":"Free shipping"},
				{"title":"Bare listing"}
			]}`))
		}))
		defer srv.Close()

		items, err := newTestClient(srv.URL).Search(context.Background(), "pioneer tuner", true)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}

		if gotQuery != "pioneer tuner" || gotShowOnly != "Sold" {
			t.Errorf("unexpected params: _nkw=%q show_only=%q", gotQuery, gotShowOnly)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 listings, got %d", len(items))
		}
		if items[0].Price == nil || *items[0].Price.Extracted != 120.0 {
			t.Errorf("unexpected price: %+v", items[0].Price)
		}
		if items[1].Title != "Bare listing" || items[1].Price != nil {
			t.Errorf("unexpected bare listing: %+v", items[1])
		}
	})

	t.Run("active search omits show_only", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Has("show_only") {
				t.Error("active search must not set show_only")
			}
			_, _ = w.Write([]byte(`{"organic_results":[]}`))
		}))
		defer srv.Close()

		if _, err := newTestClient(srv.URL).Search(context.Background(), "q", false); err != nil {
			t.Fatalf("Search: %v", err)
		}
	})

	t.Run("upstream 500 maps to marketplace error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Search(context.Background(), "q", false)
		if !errors.Is(err, domain.ErrMarketplaceHTTP) {
			t.Errorf("expected ErrMarketplaceHTTP, got %v", err)
		}
	})

	t.Run("malformed body maps to marketplace error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Search(context.Background(), "q", false)
		if !errors.Is(err, domain.ErrMarketplaceHTTP) {
			t.Errorf("expected ErrMarketplaceHTTP, got %v", err)
		}
	})

	t.Run("slow upstream maps to timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(`{"organic_results":[]}`))
		}))
		defer srv.Close()

		client := NewClient(&Config{
			Endpoint:       srv.URL,
			APIKey:         "k",
			PageSize:       10,
			ConnectTimeout: time.Second,
			ReadTimeout:    50 * time.Millisecond,
			WriteTimeout:   time.Second,
			Logger:         zap.NewNop(),
		})

		_, err := client.Search(context.Background(), "q", false)
		if !errors.Is(err, domain.ErrMarketplaceTimeout) {
			t.Errorf("expected ErrMarketplaceTimeout, got %v", err)
		}
	})
}
