// File path: internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/data/orchestrator"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/memory"
	"github.com/gridline-eng/permitpack/internal/narrative"
	"github.com/gridline-eng/permitpack/internal/pipeline"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

type Server struct {
	router    chi.Router
	store     *memory.Store
	catalog   *sqlite.Store
	provider  llm.Provider
	pipeline  *pipeline.Manager
	generator *narrative.Generator

	cfg Config

	orchestrator *orchestrator.Orchestrator
}

// Config bounds the server's upload handling.
type Config struct {
	MaxUploadBytes int64
	MaxBOMBytes    int64
}

// DefaultConfig returns the standard configuration used when no overrides
// are provided.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 64 << 20,
		MaxBOMBytes:    8 << 20,
	}
}

// Merge overlays positive limits from the override onto the base
// configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if override.MaxUploadBytes > 0 {
		result.MaxUploadBytes = override.MaxUploadBytes
	}
	if override.MaxBOMBytes > 0 {
		result.MaxBOMBytes = override.MaxBOMBytes
	}
	return result
}

func NewServer(ctx context.Context, orch *orchestrator.Orchestrator, cfg *Config) (*Server, error) {
	logger := common.Logger()
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	store := orch.Memory()
	if store == nil {
		return nil, fmt.Errorf("artifact store unavailable")
	}
	catalog := orch.Catalog()
	if catalog == nil {
		return nil, fmt.Errorf("catalog store unavailable")
	}
	manager := orch.Pipeline()
	if manager == nil {
		return nil, fmt.Errorf("pipeline manager unavailable")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	provider := orch.Provider()
	providerName := "unknown"
	if provider != nil {
		providerName = provider.Name()
	}
	searchClient := orch.Search()
	logger.Info(
		"api: building server",
		"provider", providerName,
		"search_available", searchClient != nil && searchClient.Available(),
	)
	srv := &Server{
		router:       chi.NewRouter(),
		store:        store,
		catalog:      catalog,
		provider:     provider,
		pipeline:     manager,
		generator:    orch.Narrative(),
		cfg:          configuration,
		orchestrator: orch,
	}
	srv.routes()
	logger.Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/api/bom", s.handleBOMUpload)
	s.router.Get("/api/bom", s.handleBOMList)
	s.router.Post("/api/pages", s.handlePagesUpload)
	s.router.Get("/api/pages", s.handlePagesList)
	s.router.Post("/api/pipeline/start", s.handlePipelineStart)
	s.router.Post("/api/pipeline/cancel", s.handlePipelineCancel)
	s.router.Get("/api/pipeline/status", s.handlePipelineStatus)
	s.router.Get("/api/pipeline/report", s.handlePipelineReport)
	s.router.Get("/api/pipeline/runs", s.handlePipelineRuns)
	s.router.Get("/api/artifact", s.handleArtifactDownload)
	s.router.Get("/api/narrative", s.handleNarrative)
	s.router.Get("/api/projects", s.handleProjects)
	s.router.Get("/api/logs", s.handleLogs)
}

// projectParam extracts the project scope. The mux matches exact paths only,
// so scoping rides on the query string.
func projectParam(r *http.Request) (string, error) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project"))
	if projectID == "" {
		return "", fmt.Errorf("project query parameter required")
	}
	return projectID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func detectContentType(name string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
