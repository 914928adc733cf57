// File path: internal/discovery/config.go
package discovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ValidatorConfig carries the tunable thresholds of the catalog-vs-datasheet
// heuristic. The numbers are configuration, not constants: the source
// behavior never pinned them down, so operators can adjust per deployment.
type ValidatorConfig struct {
	// MaxPages rejects candidates whose reported page count exceeds a
	// typical datasheet.
	MaxPages int
	// MaxSizeBytes rejects candidates whose reported size exceeds a
	// typical datasheet.
	MaxSizeBytes int64
	// DefaultSpecPages is the page estimate recorded for accepted specs
	// when the backend reported none.
	DefaultSpecPages int
	// ClassifyTimeout bounds one external classification call.
	ClassifyTimeout time.Duration
}

// DefaultValidatorConfig returns the baseline thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPages:         40,
		MaxSizeBytes:     25 << 20,
		DefaultSpecPages: 3,
		ClassifyTimeout:  20 * time.Second,
	}
}

// LoadValidatorConfig builds a ValidatorConfig from defaults and
// PERMITPACK_VALIDATE_* environment variables.
func LoadValidatorConfig() (ValidatorConfig, error) {
	cfg := DefaultValidatorConfig()
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_VALIDATE_MAX_PAGES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("parse PERMITPACK_VALIDATE_MAX_PAGES: %w", err)
		}
		if value > 0 {
			cfg.MaxPages = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_VALIDATE_MAX_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("parse PERMITPACK_VALIDATE_MAX_BYTES: %w", err)
		}
		if value > 0 {
			cfg.MaxSizeBytes = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_VALIDATE_DEFAULT_PAGES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("parse PERMITPACK_VALIDATE_DEFAULT_PAGES: %w", err)
		}
		if value > 0 {
			cfg.DefaultSpecPages = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_VALIDATE_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return ValidatorConfig{}, fmt.Errorf("parse PERMITPACK_VALIDATE_TIMEOUT: %w", err)
		}
		cfg.ClassifyTimeout = dur
	}
	return cfg, nil
}
