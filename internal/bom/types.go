// File path: internal/bom/types.go
package bom

import (
	"fmt"
	"strings"
)

// Manufacturer is a tagged value: either a known manufacturer name or
// unresolved. Downstream consumers branch on Resolved instead of re-checking
// string emptiness.
type Manufacturer struct {
	Name     string `json:"name,omitempty"`
	Resolved bool   `json:"resolved"`
}

// KnownManufacturer builds a resolved manufacturer from a raw cell value.
// Blank or placeholder values produce an unresolved manufacturer.
func KnownManufacturer(raw string) Manufacturer {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || isPlaceholder(trimmed) {
		return Manufacturer{}
	}
	return Manufacturer{Name: trimmed, Resolved: true}
}

func isPlaceholder(value string) bool {
	switch strings.ToLower(value) {
	case "unknown", "n/a", "na", "tbd", "-", "--":
		return true
	}
	return false
}

// Component is a normalized BOM row. Immutable once produced by the
// normalizer.
type Component struct {
	Row          int          `json:"row"`
	PartNumber   string       `json:"part_number"`
	Name         string       `json:"name"`
	Manufacturer Manufacturer `json:"manufacturer"`
	Category     string       `json:"category,omitempty"`
	Quantity     int          `json:"quantity"`
}

// Identity is the normalized (manufacturer, part number) pair that keys the
// fallback cache and deduplicates report rows.
type Identity struct {
	Manufacturer string `json:"manufacturer"`
	PartNumber   string `json:"part_number"`
}

// Identity returns the component's normalized identity: trimmed and
// casefolded manufacturer and part number.
func (c Component) Identity() Identity {
	return Identity{
		Manufacturer: normalizeField(c.Manufacturer.Name),
		PartNumber:   normalizeField(c.PartNumber),
	}
}

// Key renders the identity as a single stable string for map keys and
// cache rows.
func (i Identity) Key() string {
	return i.Manufacturer + "|" + i.PartNumber
}

// Label is the human-readable component description used in reports and
// classifier prompts.
func (c Component) Label() string {
	parts := make([]string, 0, 2)
	if c.Manufacturer.Resolved {
		parts = append(parts, c.Manufacturer.Name)
	}
	switch {
	case c.PartNumber != "":
		parts = append(parts, c.PartNumber)
	case c.Name != "":
		parts = append(parts, c.Name)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("row %d", c.Row)
	}
	return strings.Join(parts, " ")
}

func normalizeField(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
