// File path: internal/assembly/manifest.go
package assembly

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/memory"
)

// Entry kinds in the assembled package.
const (
	EntryKindPage = "page"
	EntryKindSpec = "spec"
)

// ManifestEntry is one document in the assembled package, in final order.
type ManifestEntry struct {
	Kind      string `json:"kind"`
	FileName  string `json:"file_name"`
	Title     string `json:"title,omitempty"`
	Pages     int    `json:"pages"`
	Row       int    `json:"row,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Manifest describes the assembled submission package. Uploaded pages come
// first in upload order, then datasheets in BOM row order. TotalPages is the
// sum of the entry page counts.
type Manifest struct {
	ProjectID   string          `json:"project_id"`
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []ManifestEntry `json:"entries"`
	TotalPages  int             `json:"total_pages"`
}

// BuildManifest computes the package ordering for a run.
func BuildManifest(projectID, runID string, pages []memory.UploadedPage, specs []discovery.ValidatedSpec) Manifest {
	manifest := Manifest{
		ProjectID:   projectID,
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]ManifestEntry, 0, len(pages)+len(specs)),
	}
	for _, page := range pages {
		entry := ManifestEntry{
			Kind:     EntryKindPage,
			FileName: safeFileComponent(page.FileName),
			Title:    page.Title,
			Pages:    page.Pages,
		}
		manifest.Entries = append(manifest.Entries, entry)
		manifest.TotalPages += entry.Pages
	}
	ordered := append([]discovery.ValidatedSpec(nil), specs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Row < ordered[j].Row
	})
	used := make(map[string]struct{}, len(ordered))
	for _, spec := range ordered {
		name := specFileName(spec)
		if _, taken := used[name]; taken {
			name = rowQualifiedName(name, spec.Row)
		}
		used[name] = struct{}{}
		entry := ManifestEntry{
			Kind:      EntryKindSpec,
			FileName:  name,
			Title:     spec.Title,
			Pages:     spec.Pages,
			Row:       spec.Row,
			SourceURL: spec.URL,
			Source:    string(spec.Source),
		}
		manifest.Entries = append(manifest.Entries, entry)
		manifest.TotalPages += entry.Pages
	}
	return manifest
}

// specFileName derives a stable archive name for a datasheet from its URL,
// falling back to the component identity.
func specFileName(spec discovery.ValidatedSpec) string {
	if parsed, err := url.Parse(spec.URL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" {
			name := safeFileComponent(base)
			if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
				name += ".pdf"
			}
			return name
		}
	}
	identity := spec.Identity
	stem := strings.TrimSpace(identity.Manufacturer + "-" + identity.PartNumber)
	if stem == "" || stem == "-" {
		stem = fmt.Sprintf("row-%d", spec.Row)
	}
	return safeFileComponent(stem) + ".pdf"
}

// rowQualifiedName inserts the BOM row before the extension of a colliding
// archive name. Rows are unique within a run, so the result cannot collide
// again.
func rowQualifiedName(name string, row int) string {
	if dot := strings.LastIndex(name, "."); dot > 0 {
		return fmt.Sprintf("%s-row-%d%s", name[:dot], row, name[dot:])
	}
	return fmt.Sprintf("%s-row-%d", name, row)
}

func safeFileComponent(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "document"
	}
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-.")
	if cleaned == "" {
		return "document"
	}
	return cleaned
}
