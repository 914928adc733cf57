// File path: internal/search/config.go
package search

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the external search client. Credentials are injected here
// by the caller; the client only holds them for the process lifetime.
type Config struct {
	Endpoint   string
	APIKey     string
	MaxResults int

	Timeout time.Duration

	HTTPMaxIdleConns    int
	HTTPMaxIdlePerHost  int
	HTTPMaxConnsPerHost int
	HTTPIdleConnTimeout time.Duration
}

// DefaultConfig returns the baseline search client configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:            "https://api.specsearch.dev",
		MaxResults:          5,
		Timeout:             10 * time.Second,
		HTTPMaxIdleConns:    32,
		HTTPMaxIdlePerHost:  8,
		HTTPIdleConnTimeout: 90 * time.Second,
	}
}

// LoadConfig builds a Config from defaults and SPECSEARCH_* environment
// variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if endpoint := strings.TrimSpace(os.Getenv("SPECSEARCH_ENDPOINT")); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if apiKey := strings.TrimSpace(os.Getenv("SPECSEARCH_API_KEY")); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_MAX_RESULTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_MAX_RESULTS: %w", err)
		}
		if value > 0 {
			cfg.MaxResults = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_TIMEOUT: %w", err)
		}
		cfg.Timeout = dur
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_HTTP_MAX_IDLE_CONNS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_HTTP_MAX_IDLE_CONNS: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxIdleConns = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_HTTP_MAX_IDLE_PER_HOST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_HTTP_MAX_IDLE_PER_HOST: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxIdlePerHost = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_HTTP_MAX_CONNS_PER_HOST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_HTTP_MAX_CONNS_PER_HOST: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxConnsPerHost = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SPECSEARCH_HTTP_IDLE_CONN_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_HTTP_IDLE_CONN_TIMEOUT: %w", err)
		}
		cfg.HTTPIdleConnTimeout = dur
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = defaults.Endpoint
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaults.MaxResults
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.HTTPMaxIdleConns <= 0 {
		c.HTTPMaxIdleConns = defaults.HTTPMaxIdleConns
	}
	if c.HTTPMaxIdlePerHost <= 0 {
		c.HTTPMaxIdlePerHost = defaults.HTTPMaxIdlePerHost
	}
	if c.HTTPIdleConnTimeout <= 0 {
		c.HTTPIdleConnTimeout = defaults.HTTPIdleConnTimeout
	}
}

// Configured reports whether any SPECSEARCH_* variable is set, mirroring how
// optional backends are detected elsewhere.
func Configured() bool {
	keys := []string{
		"SPECSEARCH_ENDPOINT",
		"SPECSEARCH_API_KEY",
		"SPECSEARCH_MAX_RESULTS",
		"SPECSEARCH_TIMEOUT",
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}
