// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/memory"
	"github.com/gridline-eng/permitpack/internal/narrative"
	"github.com/gridline-eng/permitpack/internal/pipeline"
	"github.com/gridline-eng/permitpack/internal/search"
	"github.com/gridline-eng/permitpack/internal/speccache"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

type closer interface {
	Close() error
}

// Orchestrator wires together the persistent stores and discovery
// capabilities backing the permitpack server and exposes accessors for the
// API layer.
type Orchestrator struct {
	cfg Config

	memoryStore *memory.Store
	catalog     *sqlite.Store
	cache       *speccache.Cache
	search      search.Client
	provider    llm.Provider
	pipeline    *pipeline.Manager
	narrative   *narrative.Generator

	closers []closer
}

// New constructs an orchestrator from the provided configuration and
// optional overrides.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	logger := common.Logger()
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	memStore, err := memory.NewStore(cfg.ArtifactRoot)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	catalog, err := sqlite.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("init catalog store: %w", err)
	}
	cache, err := speccache.New(catalog)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("init spec cache: %w", err)
	}

	var searchClient search.Client
	switch {
	case settings.search != nil:
		searchClient = settings.search
	case search.Configured():
		client, err := search.NewFromEnv(ctx)
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("init search client: %w", err)
		}
		searchClient = client
	}

	provider := settings.provider
	if provider == nil {
		provider = llm.NewProvider()
	}

	table := settings.table
	if table == nil {
		table, err = discovery.LoadDomainTable()
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("load domain table: %w", err)
		}
	}
	validatorCfg, err := discovery.LoadValidatorConfig()
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("load validator config: %w", err)
	}
	validator := discovery.NewValidator(provider, validatorCfg)
	resolver := discovery.NewResolver(searchClient, validator, table, cfg.MaxSearchResults, validatorCfg)

	fetcher := settings.fetcher
	if fetcher == nil {
		httpFetcher, err := assembly.NewHTTPFetcher()
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("init document fetcher: %w", err)
		}
		fetcher = httpFetcher
	}
	packager := assembly.NewPackager(memStore, fetcher)
	manager := pipeline.NewManager(memStore, catalog, cache, resolver, packager)

	logger.Info(
		"orchestrator: resources wired",
		"artifact_root", memStore.Root(),
		"catalog", cfg.CatalogPath,
		"search_available", searchClient != nil && searchClient.Available(),
		"provider", provider.Name(),
	)

	orch := &Orchestrator{
		cfg:         cfg,
		memoryStore: memStore,
		catalog:     catalog,
		cache:       cache,
		search:      searchClient,
		provider:    provider,
		pipeline:    manager,
		narrative:   narrative.NewGenerator(provider),
	}
	orch.closers = append(orch.closers, catalog)
	return orch, nil
}

// Memory exposes the configured artifact store.
func (o *Orchestrator) Memory() *memory.Store {
	if o == nil {
		return nil
	}
	return o.memoryStore
}

// Catalog exposes the SQLite catalog.
func (o *Orchestrator) Catalog() *sqlite.Store {
	if o == nil {
		return nil
	}
	return o.catalog
}

// Cache exposes the fallback spec cache.
func (o *Orchestrator) Cache() *speccache.Cache {
	if o == nil {
		return nil
	}
	return o.cache
}

// Search exposes the optional external search client.
func (o *Orchestrator) Search() search.Client {
	if o == nil {
		return nil
	}
	return o.search
}

// Provider exposes the configured text provider.
func (o *Orchestrator) Provider() llm.Provider {
	if o == nil {
		return nil
	}
	return o.provider
}

// Pipeline exposes the run manager.
func (o *Orchestrator) Pipeline() *pipeline.Manager {
	if o == nil {
		return nil
	}
	return o.pipeline
}

// Narrative exposes the narrative generator.
func (o *Orchestrator) Narrative() *narrative.Generator {
	if o == nil {
		return nil
	}
	return o.narrative
}

// Close releases any resources associated with the orchestrator.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	var err error
	for i := len(o.closers) - 1; i >= 0; i-- {
		closer := o.closers[i]
		if closer == nil {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
