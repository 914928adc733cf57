// File path: internal/discovery/resolver.go
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/search"
)

// ErrSpecNotFound reports that every tier was exhausted without an accepted
// candidate. It is a per-component outcome, never a pipeline failure.
var ErrSpecNotFound = errors.New("spec not found")

// SpecSource records which path produced a validated spec.
type SpecSource string

const (
	SourceLive  SpecSource = "live"
	SourceCache SpecSource = "cache"
)

// ValidatedSpec is an accepted datasheet reference. Once accepted it joins
// the assembly manifest; rejected candidates are never recorded.
type ValidatedSpec struct {
	Identity    bom.Identity `json:"identity"`
	Row         int          `json:"row"`
	URL         string       `json:"url"`
	Title       string       `json:"title,omitempty"`
	Confidence  string       `json:"confidence"`
	Pages       int          `json:"pages"`
	Source      SpecSource   `json:"source"`
	ValidatedAt time.Time    `json:"validated_at"`
}

// Resolver walks the query escalation ladder for one component: search a
// tier, validate its candidates in order, stop at the first accept. Tiers
// are strictly monotonic; a lower tier is never reissued.
type Resolver struct {
	client     search.Client
	validator  *Validator
	table      DomainTable
	maxResults int
	cfg        ValidatorConfig
}

// NewResolver wires the search and validation capabilities together.
func NewResolver(client search.Client, validator *Validator, table DomainTable, maxResults int, cfg ValidatorConfig) *Resolver {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Resolver{client: client, validator: validator, table: table, maxResults: maxResults, cfg: cfg}
}

// Strategy exposes the query ladder the resolver will walk for a component.
func (r *Resolver) Strategy(component bom.Component) []Query {
	return Strategy(component, r.table)
}

// Resolve runs the escalation loop. Transport errors and empty tiers
// escalate; only context cancelation aborts early. ErrSpecNotFound is
// returned when the ladder is exhausted.
func (r *Resolver) Resolve(ctx context.Context, component bom.Component) (ValidatedSpec, error) {
	logger := common.Logger()
	if r.client == nil {
		return ValidatedSpec{}, ErrSpecNotFound
	}
	queries := Strategy(component, r.table)
	if len(queries) == 0 {
		logger.Warn("discovery: no queries producible", "component", component.Label())
		return ValidatedSpec{}, ErrSpecNotFound
	}
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return ValidatedSpec{}, err
		}
		candidates, err := r.client.Search(ctx, search.Request{
			Text:       query.Text,
			Domains:    query.Domains,
			MaxResults: r.maxResults,
			Tier:       query.Tier.String(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ValidatedSpec{}, ctx.Err()
			}
			// A failed tier yields zero candidates; escalate.
			logger.Warn("discovery: tier search failed",
				"component", component.Label(), "tier", query.Tier.String(), "error", err)
			continue
		}
		logger.Debug("discovery: tier searched",
			"component", component.Label(), "tier", query.Tier.String(), "candidates", len(candidates))
		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				return ValidatedSpec{}, err
			}
			verdict := r.validator.Validate(ctx, candidate, component)
			if !verdict.Accept {
				logger.Debug("discovery: candidate rejected",
					"component", component.Label(), "url", candidate.URL, "reason", verdict.Reason)
				continue
			}
			pages := candidate.EstimatedPages
			if pages <= 0 {
				pages = r.cfg.DefaultSpecPages
			}
			logger.Info("discovery: spec accepted",
				"component", component.Label(), "tier", query.Tier.String(), "url", candidate.URL)
			return ValidatedSpec{
				Identity:    component.Identity(),
				Row:         component.Row,
				URL:         candidate.URL,
				Title:       candidate.Title,
				Confidence:  verdict.Confidence,
				Pages:       pages,
				Source:      SourceLive,
				ValidatedAt: time.Now().UTC(),
			}, nil
		}
	}
	return ValidatedSpec{}, ErrSpecNotFound
}
