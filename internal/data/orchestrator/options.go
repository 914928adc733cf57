// File path: internal/data/orchestrator/options.go
package orchestrator

import (
	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/search"
)

type Option func(*options)

type options struct {
	search   search.Client
	provider llm.Provider
	fetcher  assembly.Fetcher
	table    discovery.DomainTable
}

// WithSearchClient injects a search client implementation. Primarily used in
// tests.
func WithSearchClient(client search.Client) Option {
	return func(o *options) {
		o.search = client
	}
}

// WithProvider injects a text provider implementation.
func WithProvider(provider llm.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithFetcher injects a datasheet fetcher implementation.
func WithFetcher(fetcher assembly.Fetcher) Option {
	return func(o *options) {
		o.fetcher = fetcher
	}
}

// WithDomainTable overrides the manufacturer domain table.
func WithDomainTable(table discovery.DomainTable) Option {
	return func(o *options) {
		o.table = table
	}
}
