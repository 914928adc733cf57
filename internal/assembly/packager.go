// File path: internal/assembly/packager.go
package assembly

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/common/telemetry"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/memory"
)

// ErrNoUploadedPages reports an assembly attempt without any customer pages.
// A package with no site plan or one-line diagram is never submittable, so
// this is fatal for the run.
var ErrNoUploadedPages = errors.New("no uploaded pages")

// Artifact names written into the project store.
const (
	ManifestArtifact = "manifest.json"
	PackageArtifact  = "package.zip"
)

// Result reports one assembly: the manifest of everything packaged and the
// specs whose download failed and were dropped from the package.
type Result struct {
	Manifest Manifest
	Failed   []discovery.ValidatedSpec
}

// Packager downloads validated datasheets and composes the final archive.
type Packager struct {
	store   *memory.Store
	fetcher Fetcher
}

// NewPackager wires the artifact store and the document fetcher.
func NewPackager(store *memory.Store, fetcher Fetcher) *Packager {
	return &Packager{store: store, fetcher: fetcher}
}

// Assemble downloads every validated spec, orders the package, and writes
// manifest.json plus package.zip into the project store. A failed download
// drops that spec from the package; it never fails the run. Each distinct
// URL is fetched once: duplicate BOM rows pointing at the same datasheet
// share the fetch outcome, so a sheet is never simultaneously packaged for
// one row and reported failed for another.
func (p *Packager) Assemble(ctx context.Context, projectID, runID string, pages []memory.UploadedPage, specs []discovery.ValidatedSpec) (Result, error) {
	logger := common.Logger()
	if len(pages) == 0 {
		return Result{}, ErrNoUploadedPages
	}
	if p == nil || p.store == nil {
		return Result{}, errors.New("packager not configured")
	}

	var (
		packaged []discovery.ValidatedSpec
		failed   []discovery.ValidatedSpec
		content  = make(map[string][]byte, len(specs))
		broken   = make(map[string]struct{}, len(specs))
	)
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if _, ok := content[spec.URL]; ok {
			packaged = append(packaged, spec)
			continue
		}
		if _, ok := broken[spec.URL]; ok {
			failed = append(failed, spec)
			continue
		}
		if p.fetcher == nil {
			broken[spec.URL] = struct{}{}
			failed = append(failed, spec)
			continue
		}
		data, err := p.fetcher.Fetch(ctx, spec.URL)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			logger.Warn("assembly: spec download failed", "url", spec.URL, "error", err)
			broken[spec.URL] = struct{}{}
			failed = append(failed, spec)
			continue
		}
		content[spec.URL] = data
		packaged = append(packaged, spec)
	}

	manifest := BuildManifest(projectID, runID, pages, packaged)

	archive, err := composeArchive(manifest, pages, content)
	if err != nil {
		return Result{}, err
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := p.store.WriteArtifact(projectID, ManifestArtifact, manifestJSON); err != nil {
		return Result{}, err
	}
	if err := p.store.WriteArtifact(projectID, PackageArtifact, archive); err != nil {
		return Result{}, err
	}
	telemetry.RecordAssembly(manifest.TotalPages)
	logger.Info("assembly: package written",
		"project", projectID, "run", runID,
		"entries", len(manifest.Entries), "pages", manifest.TotalPages, "dropped", len(failed))
	return Result{Manifest: manifest, Failed: failed}, nil
}

func composeArchive(manifest Manifest, pages []memory.UploadedPage, specContent map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeZipEntry(zipWriter, ManifestArtifact, manifestJSON); err != nil {
		return nil, err
	}
	for _, page := range pages {
		name := "pages/" + safeFileComponent(page.FileName)
		if err := writeZipEntry(zipWriter, name, page.Content); err != nil {
			return nil, err
		}
	}
	for _, entry := range manifest.Entries {
		if entry.Kind != EntryKindSpec {
			continue
		}
		data := specContent[entry.SourceURL]
		if err := writeZipEntry(zipWriter, "specs/"+entry.FileName, data); err != nil {
			return nil, err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zipWriter *zip.Writer, name string, data []byte) error {
	header := &zip.FileHeader{Name: name, Method: zip.Deflate}
	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}
