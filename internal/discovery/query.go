// File path: internal/discovery/query.go
package discovery

import (
	"fmt"
	"strings"

	"github.com/gridline-eng/permitpack/internal/bom"
)

// Tier is a query specificity level. Lower tiers are tried first and the
// pipeline never revisits a lower tier after escalating past it.
type Tier int

const (
	// TierVendorLocked searches the manufacturer's own domains for the
	// exact part number.
	TierVendorLocked Tier = iota
	// TierPartGeneric searches the open web for the part number plus a
	// category phrase.
	TierPartGeneric
	// TierNameGeneric falls back to the display name when part-number
	// queries found nothing acceptable.
	TierNameGeneric
)

func (t Tier) String() string {
	switch t {
	case TierVendorLocked:
		return "vendor-locked"
	case TierPartGeneric:
		return "part-generic"
	case TierNameGeneric:
		return "name-generic"
	default:
		return fmt.Sprintf("tier-%d", int(t))
	}
}

// Query is one candidate search, bound to the component that produced it.
type Query struct {
	Component bom.Component
	Tier      Tier
	Text      string
	Domains   []string
}

// Strategy produces the ordered query escalation list for a component. It
// is pure: no I/O, no randomness, and the same component always yields the
// same list. Unresolved manufacturers skip the vendor-locked tier because
// there is no domain to lock to.
func Strategy(component bom.Component, table DomainTable) []Query {
	queries := make([]Query, 0, 3)
	partNumber := strings.TrimSpace(component.PartNumber)

	if component.Manufacturer.Resolved && partNumber != "" {
		if domains := table.Lookup(component.Manufacturer.Name); len(domains) > 0 {
			queries = append(queries, Query{
				Component: component,
				Tier:      TierVendorLocked,
				Text:      fmt.Sprintf("%s datasheet specification sheet", partNumber),
				Domains:   append([]string(nil), domains...),
			})
		}
	}

	if partNumber != "" {
		queries = append(queries, Query{
			Component: component,
			Tier:      TierPartGeneric,
			Text:      fmt.Sprintf("%s %s", partNumber, categoryPhrase(component.Category)),
		})
	}

	if name := strings.TrimSpace(component.Name); name != "" {
		terms := make([]string, 0, 3)
		terms = append(terms, name)
		if component.Manufacturer.Resolved {
			terms = append(terms, component.Manufacturer.Name)
		}
		terms = append(terms, "datasheet PDF")
		queries = append(queries, Query{
			Component: component,
			Tier:      TierNameGeneric,
			Text:      strings.Join(terms, " "),
		})
	}

	return queries
}

func categoryPhrase(category string) string {
	normalized := normalizeName(category)
	if phrase, ok := categoryKeywords[normalized]; ok {
		return phrase
	}
	if normalized != "" {
		return normalized + " datasheet PDF"
	}
	return "component datasheet PDF"
}
