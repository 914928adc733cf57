// File path: internal/sqlite/config.go
package sqlite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the SQLite catalog connection settings.
type Config struct {
	Path string

	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
}

// LoadConfig builds the catalog configuration from an optional JSON file
// named in SQLITE_CONFIG_FILE, then SQLITE_* environment variables, then
// defaults. Later sources win.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("SQLITE_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "permitpack.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 15 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

func (c *Config) loadEnv() error {
	if path := strings.TrimSpace(os.Getenv("SQLITE_PATH")); path != "" {
		c.Path = path
	}
	for _, entry := range []struct {
		name   string
		target *int
	}{
		{"SQLITE_MAX_OPEN_CONNS", &c.MaxOpenConns},
		{"SQLITE_MAX_IDLE_CONNS", &c.MaxIdleConns},
	} {
		raw := strings.TrimSpace(os.Getenv(entry.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", entry.name, err)
		}
		if value > 0 {
			*entry.target = value
		}
	}
	for _, entry := range []struct {
		name   string
		target *time.Duration
	}{
		{"SQLITE_CONN_MAX_LIFETIME", &c.ConnMaxLifetime},
		{"SQLITE_CONN_MAX_IDLE_TIME", &c.ConnMaxIdleTime},
		{"SQLITE_BUSY_TIMEOUT", &c.BusyTimeout},
	} {
		raw := strings.TrimSpace(os.Getenv(entry.name))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", entry.name, err)
		}
		*entry.target = parsed
	}
	return nil
}

type fileConfig struct {
	Path            string `json:"path"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime string `json:"conn_max_lifetime"`
	ConnMaxIdleTime string `json:"conn_max_idle_time"`
	BusyTimeout     string `json:"busy_timeout"`
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read sqlite config: %w", err)
	}
	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse sqlite config: %w", err)
	}
	cfg := Config{
		Path:         strings.TrimSpace(raw.Path),
		MaxOpenConns: raw.MaxOpenConns,
		MaxIdleConns: raw.MaxIdleConns,
	}
	for _, entry := range []struct {
		raw    string
		field  string
		target *time.Duration
	}{
		{raw.ConnMaxLifetime, "conn_max_lifetime", &cfg.ConnMaxLifetime},
		{raw.ConnMaxIdleTime, "conn_max_idle_time", &cfg.ConnMaxIdleTime},
		{raw.BusyTimeout, "busy_timeout", &cfg.BusyTimeout},
	} {
		if strings.TrimSpace(entry.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(entry.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse sqlite config %s: %w", entry.field, err)
		}
		*entry.target = parsed
	}
	return cfg, nil
}
