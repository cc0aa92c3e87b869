// Package serp is the marketplace search backend client (SerpAPI eBay
// engine). It turns heterogeneous search payloads into typed listings at
// the boundary.
package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
	"github.com/snapvalue/snapvalue/internal/metrics"
)

// Config holds the marketplace search client settings. Read timeout is much
// longer than connect: the upstream search is slow while still healthy.
type Config struct {
	Endpoint       string
	APIKey         string
	PageSize       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// Client queries the marketplace search backend.
type Client struct {
	endpoint string
	apiKey   string
	pageSize int
	http     *http.Client
	readTO   time.Duration
	logger   *zap.Logger
}

// NewClient creates a marketplace search client.
func NewClient(cfg *Config) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		ExpectContinueTimeout: cfg.WriteTimeout,
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		http:     &http.Client{Transport: transport},
		readTO:   cfg.ReadTimeout,
		logger:   cfg.Logger,
	}
}

// Search runs one marketplace search and returns the parsed candidate
// listings. sold=true restricts to completed sales. Timeouts and HTTP
// failures map to distinct sentinel errors so the caller can tell an
// upstream outage from a processing bug.
func (c *Client) Search(ctx context.Context, query string, sold bool) ([]*domain.Listing, error) {
	side := "active"
	if sold {
		side = "sold"
	}

	params := url.Values{}
	params.Set("engine", "ebay")
	params.Set("_nkw", query)
	params.Set("_ipg", strconv.Itoa(c.pageSize))
	params.Set("api_key", c.apiKey)
	if sold {
		params.Set("show_only", "Sold")
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTO)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.MarketplaceSearchesTotal.WithLabelValues(side, "error").Inc()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMarketplaceTimeout, err)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrMarketplaceHTTP, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.MarketplaceSearchesTotal.WithLabelValues(side, "error").Inc()
		return nil, fmt.Errorf("%w: status %d", domain.ErrMarketplaceHTTP, resp.StatusCode)
	}

	var payload struct {
		OrganicResults []map[string]any `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.MarketplaceSearchesTotal.WithLabelValues(side, "error").Inc()
		return nil, fmt.Errorf("%w: decode response: %s", domain.ErrMarketplaceHTTP, err)
	}

	metrics.MarketplaceSearchesTotal.WithLabelValues(side, "ok").Inc()

	items := make([]*domain.Listing, 0, len(payload.OrganicResults))
	for _, raw := range payload.OrganicResults {
		items = append(items, domain.ParseListing(raw))
	}

	c.logger.Debug("marketplace search complete",
		zap.String("side", side), zap.Int("results", len(items)))
	return items, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
