package firmware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves a remote resource by URL. The repository uses one
// fetcher for both manifest indexes and image payloads, so tests can
// substitute a fake and count network round-trips.
type Fetcher interface {
	// Fetch retrieves the resource at url.
	//
	// Parameters:
	//   - ctx: Cancels the request
	//   - url: Absolute HTTP(S) URL
	//
	// Returns:
	//   - []byte: Response body on a 2xx status
	//   - error: Transport failure or non-2xx status
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const defaultFetchTimeout = 30 * time.Second

// HTTPFetcher is the production Fetcher backed by net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A zero timeout falls back to
// 30 seconds.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch performs a GET and returns the body. Any non-2xx status is an
// error; there are no retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "tuyacore-firmware/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}
	return body, nil
}
