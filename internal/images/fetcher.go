package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxProductImageSize bounds a downloaded product image
const MaxProductImageSize = 20 * 1024 * 1024

// ErrFetchFailed is returned when the product image cannot be downloaded
var ErrFetchFailed = errors.New("Failed to fetch product image")

// Fetcher retrieves product images from the storefront CDN
type Fetcher struct {
	HTTPClient *http.Client
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NormalizeURL turns a product image reference into an absolute URL.
// Protocol-relative ("//cdn/x.png") and bare ("cdn/x.png") references get
// an https scheme; absolute http(s) URLs are kept.
func NormalizeURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty image reference")
	}

	lower := strings.ToLower(ref)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		ref = "https://" + strings.TrimLeft(ref, "/")
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid image reference %q: no host", ref)
	}
	return u.String(), nil
}

// Fetch downloads the image at rawURL. Any non-200 response is a failure;
// there is no fallback.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Failed to fetch product image", "url", rawURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, MaxProductImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image data: %v", ErrFetchFailed, err)
	}
	if len(imageData) > MaxProductImageSize {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrFetchFailed, MaxProductImageSize)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrFetchFailed)
	}

	return imageData, nil
}
