// File path: internal/search/client.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/common/telemetry"
)

// Candidate is one document returned by the external search capability.
// Candidates are transient: the validator consumes them immediately.
type Candidate struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`

	// EstimatedPages and SizeBytes are backend hints when the index has
	// crawled the document; zero means unreported.
	EstimatedPages int   `json:"estimated_pages,omitempty"`
	SizeBytes      int64 `json:"size_bytes,omitempty"`
}

// Request describes one search call. Tier is carried for telemetry only;
// escalation ordering is owned by the caller.
type Request struct {
	Text       string
	Domains    []string
	MaxResults int
	Tier       string
}

// Client is the search capability contract consumed by the pipeline.
type Client interface {
	Available() bool
	Search(ctx context.Context, req Request) ([]Candidate, error)
}

// HTTPClient talks to an Exa-style keyword/semantic search API over JSON.
type HTTPClient struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL   string
	apiKey    string
	available bool
	cfg       Config

	mu sync.RWMutex
}

// NewFromEnv constructs a client from SPECSEARCH_* environment variables.
func NewFromEnv(ctx context.Context) (*HTTPClient, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client using the provided configuration. Construction
// never fails on an unreachable backend; the client reports unavailable and
// the pipeline degrades to the fallback cache.
func New(ctx context.Context, cfg Config) (*HTTPClient, error) {
	cfg.applyDefaults()
	logger := common.Logger()
	logger.Info(
		"search: initializing client",
		"endpoint", cfg.Endpoint,
		"max_results", cfg.MaxResults,
		"timeout", cfg.Timeout,
	)
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	client := &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:  transport,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		cfg:        cfg,
	}
	if err := client.probe(ctx); err != nil {
		logger.Warn("search: backend unreachable at startup", "endpoint", cfg.Endpoint, "error", err)
		return client, nil
	}
	client.setAvailable(true)
	logger.Info("search: backend reachable")
	return client, nil
}

// Available reports whether the last health probe succeeded.
func (c *HTTPClient) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *HTTPClient) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

// probe performs a bounded-retry health check.
func (c *HTTPClient) probe(ctx context.Context) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.health(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}

func (c *HTTPClient) health(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
}

// Search issues one query and returns at most req.MaxResults candidates.
// A transport error or non-2xx status surfaces as an error; the caller
// treats it as an empty tier, never as a fatal run failure.
func (c *HTTPClient) Search(ctx context.Context, req Request) ([]Candidate, error) {
	if c == nil {
		return nil, errors.New("search client not configured")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("empty query text")
	}
	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > c.cfg.MaxResults {
		maxResults = c.cfg.MaxResults
	}
	body := map[string]interface{}{
		"query":       text,
		"num_results": maxResults,
	}
	if len(req.Domains) > 0 {
		body["include_domains"] = req.Domains
	}
	var resp struct {
		Results []Candidate `json:"results"`
	}
	endpoint := fmt.Sprintf("%s/search", c.baseURL)
	start := time.Now()
	err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp)
	telemetry.RecordSearchCall(req.Tier, time.Since(start))
	if err != nil {
		c.setAvailable(false)
		return nil, err
	}
	c.setAvailable(true)
	results := resp.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	out := make([]Candidate, 0, len(results))
	for _, candidate := range results {
		if strings.TrimSpace(candidate.URL) == "" {
			continue
		}
		out = append(out, candidate)
	}
	return out, nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		trimmed := strings.TrimSpace(string(payload))
		if trimmed == "" {
			return fmt.Errorf("search backend status %s", resp.Status)
		}
		return fmt.Errorf("search backend status %s: %s", resp.Status, trimmed)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Client = (*HTTPClient)(nil)
