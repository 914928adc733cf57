// File path: cmd/permitpack/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gridline-eng/permitpack/internal/api"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/data/orchestrator"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("permitpack: .env file not loaded", "error", err)
	} else {
		logger.Info("permitpack: environment loaded from .env")
	}

	addr := flag.String("addr", ":8081", "listen address")
	artifactRoot := flag.String("artifacts", defaultArtifactRoot(), "root directory for project artifacts")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite catalog database")
	maxUpload := flag.Int64("max-upload-bytes", 0, "page upload size limit in bytes (0 uses defaults)")
	maxBOM := flag.Int64("max-bom-bytes", 0, "bill of materials size limit in bytes (0 uses defaults)")
	flag.Parse()

	logger.Info("permitpack: startup initiated", "addr", *addr, "artifacts", *artifactRoot)

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("permitpack: orchestrator config load failed", "error", err)
		fmt.Println("orchestrator config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*artifactRoot); trimmed != "" {
		orchCfg.ArtifactRoot = trimmed
	}
	if trimmed := strings.TrimSpace(*catalogPath); trimmed != "" {
		orchCfg.CatalogPath = trimmed
	}

	orch, err := orchestrator.New(ctx, orchCfg)
	if err != nil {
		logger.Error("permitpack: orchestrator initialization failed", "error", err)
		fmt.Println("orchestrator error:", err)
		os.Exit(1)
	}
	defer orch.Close()

	if searchClient := orch.Search(); searchClient != nil {
		if searchClient.Available() {
			logger.Info("permitpack: search backend available")
		} else {
			logger.Warn("permitpack: search backend unreachable; runs degrade to the spec cache")
		}
	} else {
		logger.Info("permitpack: search backend not configured; runs degrade to the spec cache")
	}

	cfg := api.DefaultConfig()
	if *maxUpload > 0 {
		cfg.MaxUploadBytes = *maxUpload
	}
	if *maxBOM > 0 {
		cfg.MaxBOMBytes = *maxBOM
	}

	server, err := api.NewServer(ctx, orch, &cfg)
	if err != nil {
		logger.Error("permitpack: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("permitpack: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("permitpack: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultArtifactRoot() string {
	return filepath.Join("data", "projects")
}

func defaultCatalogPath() string {
	return filepath.Join("data", "catalog.db")
}
