// File path: internal/assembly/fetcher.go
package assembly

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gridline-eng/permitpack/internal/common"
)

// Fetcher retrieves a validated datasheet for inclusion in the package.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads datasheets over plain HTTP. Failures are
// per-document: the pipeline reverts the component instead of failing the
// run.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher with PERMITPACK_FETCH_TIMEOUT and
// PERMITPACK_FETCH_MAX_BYTES overrides.
func NewHTTPFetcher() (*HTTPFetcher, error) {
	timeout := 30 * time.Second
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_FETCH_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse PERMITPACK_FETCH_TIMEOUT: %w", err)
		}
		timeout = parsed
	}
	var maxBytes int64 = 50 << 20
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_FETCH_MAX_BYTES")); raw != "" {
		var parsed int64
		if _, err := fmt.Sscan(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parse PERMITPACK_FETCH_MAX_BYTES: %w", err)
		}
		if parsed > 0 {
			maxBytes = parsed
		}
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}, nil
}

// Fetch downloads one document.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f == nil || f.client == nil {
		return nil, fmt.Errorf("fetcher not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: document exceeds %d bytes", url, f.maxBytes)
	}
	common.Logger().Debug("assembly: document fetched", "url", url, "bytes", len(data))
	return data, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
