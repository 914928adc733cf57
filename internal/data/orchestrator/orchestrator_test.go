// File path: internal/data/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/search"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PERMITPACK_ARTIFACT_ROOT", "")
	t.Setenv("PERMITPACK_CATALOG_PATH", "")
	t.Setenv("SPECSEARCH_MAX_RESULTS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	defaults := DefaultConfig()
	if cfg != defaults {
		t.Fatalf("LoadConfig defaults mismatch: %#v", cfg)
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("PERMITPACK_ARTIFACT_ROOT", "/tmp/projects")
	t.Setenv("PERMITPACK_CATALOG_PATH", "/tmp/catalog.db")
	t.Setenv("SPECSEARCH_MAX_RESULTS", "9")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ArtifactRoot != "/tmp/projects" {
		t.Errorf("ArtifactRoot = %q", cfg.ArtifactRoot)
	}
	if cfg.CatalogPath != "/tmp/catalog.db" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
	if cfg.MaxSearchResults != 9 {
		t.Errorf("MaxSearchResults = %d", cfg.MaxSearchResults)
	}
}

func TestNewInitializesStores(t *testing.T) {
	clearSearchEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	cfg := Config{
		ArtifactRoot: filepath.Join(dir, "projects"),
		CatalogPath:  filepath.Join(dir, "catalog.db"),
	}
	orch, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = orch.Close() })

	if orch.Memory() == nil {
		t.Fatal("artifact store not initialised")
	}
	if orch.Catalog() == nil {
		t.Fatal("catalog store not initialised")
	}
	if orch.Cache() == nil {
		t.Fatal("spec cache not initialised")
	}
	if orch.Pipeline() == nil {
		t.Fatal("pipeline manager not initialised")
	}
	if orch.Narrative() == nil {
		t.Fatal("narrative generator not initialised")
	}
	if orch.Search() != nil {
		t.Fatalf("search client should not be configured without SPECSEARCH_* env")
	}
	if orch.Provider() == nil || orch.Provider().Name() != "local" {
		t.Fatalf("expected local provider fallback, got %v", orch.Provider())
	}
}

func TestNewWithInjectedComponents(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ArtifactRoot: filepath.Join(dir, "projects"),
		CatalogPath:  filepath.Join(dir, "catalog.db"),
	}
	searchClient := &stubSearchClient{}
	provider := &stubProvider{}
	orch, err := New(context.Background(), cfg, WithSearchClient(searchClient), WithProvider(provider))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = orch.Close() })

	if orch.Search() != searchClient {
		t.Fatalf("search client not applied")
	}
	if orch.Provider() != provider {
		t.Fatalf("provider not applied")
	}
}

func clearSearchEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SPECSEARCH_ENDPOINT",
		"SPECSEARCH_API_KEY",
		"SPECSEARCH_MAX_RESULTS",
		"SPECSEARCH_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

type stubSearchClient struct{}

func (s *stubSearchClient) Available() bool { return true }
func (s *stubSearchClient) Search(context.Context, search.Request) ([]search.Candidate, error) {
	return nil, nil
}

type stubProvider struct{}

func (s *stubProvider) Chat(context.Context, []llm.Message) (string, error) { return "ok", nil }
func (s *stubProvider) Name() string                                        { return "stub" }
