// File path: internal/data/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config controls construction of the orchestrator's persistent stores and
// discovery capabilities.
type Config struct {
	ArtifactRoot     string
	CatalogPath      string
	MaxSearchResults int
}

// DefaultConfig returns the baseline configuration used when no overrides
// are supplied.
func DefaultConfig() Config {
	return Config{
		ArtifactRoot:     filepath.Join("data", "projects"),
		CatalogPath:      filepath.Join("data", "catalog.db"),
		MaxSearchResults: 5,
	}
}

// LoadConfig builds a Config from defaults and environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if value := strings.TrimSpace(os.Getenv("PERMITPACK_ARTIFACT_ROOT")); value != "" {
		cfg.ArtifactRoot = value
	}
	if value := strings.TrimSpace(os.Getenv("PERMITPACK_CATALOG_PATH")); value != "" {
		cfg.CatalogPath = value
	}
	if value := strings.TrimSpace(os.Getenv("SPECSEARCH_MAX_RESULTS")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse SPECSEARCH_MAX_RESULTS: %w", err)
		}
		if parsed > 0 {
			cfg.MaxSearchResults = parsed
		}
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.ArtifactRoot) == "" {
		cfg.ArtifactRoot = defaults.ArtifactRoot
	}
	if strings.TrimSpace(cfg.CatalogPath) == "" {
		cfg.CatalogPath = defaults.CatalogPath
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = defaults.MaxSearchResults
	}
	return cfg
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ArtifactRoot) == "" {
		return fmt.Errorf("artifact root required")
	}
	if strings.TrimSpace(c.CatalogPath) == "" {
		return fmt.Errorf("catalog path required")
	}
	if c.MaxSearchResults <= 0 {
		return fmt.Errorf("max search results must be positive")
	}
	return nil
}
