// Package images downloads listing thumbnails.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Bodies smaller than this are tracking pixels or error pages, not product
// photos.
const minImageBytes = 50

// Downloader fetches thumbnail bytes over HTTP. Redirects are followed;
// anything that is not a plausible image body is an error.
type Downloader struct {
	http *http.Client
}

// NewDownloader creates a thumbnail downloader with a per-request timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{http: &http.Client{Timeout: timeout}}
}

// Fetch downloads one thumbnail.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build thumbnail request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail body: %w", err)
	}
	if len(body) < minImageBytes {
		return nil, fmt.Errorf("thumbnail body too small: %d bytes", len(body))
	}
	return body, nil
}
