// File path: internal/assembly/packager_test.go
package assembly

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/memory"
)

type stubFetcher struct {
	payloads map[string][]byte
	failures map[string]error
	calls    []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	if data, ok := f.payloads[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("unexpected url %s", url)
}

func newTestPackager(t *testing.T, fetcher Fetcher) (*Packager, *memory.Store) {
	t.Helper()
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewPackager(store, fetcher), store
}

func testPages() []memory.UploadedPage {
	return []memory.UploadedPage{
		{ID: "1", FileName: "site-plan.pdf", Title: "Site Plan", Pages: 2, Content: []byte("site plan bytes")},
		{ID: "2", FileName: "one-line.pdf", Title: "One-Line Diagram", Pages: 1, Content: []byte("one line bytes")},
	}
}

func TestAssembleWritesManifestAndArchive(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://enphase.com/iq8.pdf":  []byte("iq8 datasheet"),
		"https://qcells.com/qpeak.pdf": []byte("qpeak datasheet"),
	}}
	packager, store := newTestPackager(t, fetcher)

	specs := []discovery.ValidatedSpec{
		{Row: 2, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
		{Row: 1, URL: "https://enphase.com/iq8.pdf", Pages: 4},
	}
	result, err := packager.Assemble(context.Background(), "proj", "run-1", testPages(), specs)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", result.Failed)
	}
	if result.Manifest.TotalPages != 9 {
		t.Fatalf("total pages = %d, want 9", result.Manifest.TotalPages)
	}

	manifestJSON, err := store.ReadArtifact("proj", ManifestArtifact)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var persisted Manifest
	if err := json.Unmarshal(manifestJSON, &persisted); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(persisted.Entries) != 4 {
		t.Fatalf("expected 4 manifest entries, got %d", len(persisted.Entries))
	}
	if persisted.Entries[2].SourceURL != "https://enphase.com/iq8.pdf" {
		t.Fatalf("specs not in row order: %+v", persisted.Entries)
	}

	archive, err := store.ReadArtifact("proj", PackageArtifact)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string][]byte{}
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", file.Name, err)
		}
		names[file.Name] = data
	}
	if _, ok := names["manifest.json"]; !ok {
		t.Fatalf("archive missing manifest: %v", reader.File)
	}
	if string(names["pages/site-plan.pdf"]) != "site plan bytes" {
		t.Fatalf("page content missing: %q", names["pages/site-plan.pdf"])
	}
	if string(names["specs/iq8.pdf"]) != "iq8 datasheet" {
		t.Fatalf("spec content missing: %q", names["specs/iq8.pdf"])
	}
}

func TestAssembleDropsFailedDownloads(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string][]byte{"https://enphase.com/iq8.pdf": []byte("iq8 datasheet")},
		failures: map[string]error{"https://qcells.com/qpeak.pdf": errors.New("status 404 Not Found")},
	}
	packager, _ := newTestPackager(t, fetcher)

	specs := []discovery.ValidatedSpec{
		{Row: 1, URL: "https://enphase.com/iq8.pdf", Pages: 4},
		{Row: 2, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
	}
	result, err := packager.Assemble(context.Background(), "proj", "run-1", testPages(), specs)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0].URL != "https://qcells.com/qpeak.pdf" {
		t.Fatalf("expected one failed spec, got %+v", result.Failed)
	}
	specEntries := 0
	for _, entry := range result.Manifest.Entries {
		if entry.Kind == EntryKindSpec {
			specEntries++
		}
	}
	if specEntries != 1 {
		t.Fatalf("failed spec must be dropped from manifest, got %d spec entries", specEntries)
	}
	if result.Manifest.TotalPages != 7 {
		t.Fatalf("total pages = %d, want 7", result.Manifest.TotalPages)
	}
}

func TestAssembleSharedURLFetchedOnce(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string][]byte{
		"https://qcells.com/qpeak.pdf": []byte("qpeak datasheet"),
	}}
	packager, store := newTestPackager(t, fetcher)

	// Duplicate BOM rows resolving to the same datasheet.
	specs := []discovery.ValidatedSpec{
		{Row: 1, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
		{Row: 3, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
	}
	result, err := packager.Assemble(context.Background(), "proj", "run-1", testPages(), specs)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("shared url fetched %d times, want 1", len(fetcher.calls))
	}
	if len(result.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", result.Failed)
	}
	var specNames []string
	for _, entry := range result.Manifest.Entries {
		if entry.Kind == EntryKindSpec {
			specNames = append(specNames, entry.FileName)
		}
	}
	if len(specNames) != 2 {
		t.Fatalf("expected 2 spec entries, got %v", specNames)
	}
	if specNames[0] == specNames[1] {
		t.Fatalf("duplicate archive names: %v", specNames)
	}

	archive, err := store.ReadArtifact("proj", PackageArtifact)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, name := range specNames {
		rc, err := reader.Open("specs/" + name)
		if err != nil {
			t.Fatalf("archive missing %s: %v", name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "qpeak datasheet" {
			t.Fatalf("entry %s content = %q", name, data)
		}
	}
}

func TestAssembleSharedURLFailureDropsAllRows(t *testing.T) {
	fetcher := &stubFetcher{failures: map[string]error{
		"https://qcells.com/qpeak.pdf": errors.New("status 503 Service Unavailable"),
	}}
	packager, _ := newTestPackager(t, fetcher)

	specs := []discovery.ValidatedSpec{
		{Row: 1, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
		{Row: 3, URL: "https://qcells.com/qpeak.pdf", Pages: 2},
	}
	result, err := packager.Assemble(context.Background(), "proj", "run-1", testPages(), specs)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("failed url fetched %d times, want 1", len(fetcher.calls))
	}
	if len(result.Failed) != 2 {
		t.Fatalf("both rows must fail together, got %+v", result.Failed)
	}
	if result.Failed[0].Row != 1 || result.Failed[1].Row != 3 {
		t.Fatalf("failed rows = %d, %d", result.Failed[0].Row, result.Failed[1].Row)
	}
	for _, entry := range result.Manifest.Entries {
		if entry.Kind == EntryKindSpec {
			t.Fatalf("failed spec packaged anyway: %+v", entry)
		}
	}
	if result.Manifest.TotalPages != 3 {
		t.Fatalf("total pages = %d, want 3", result.Manifest.TotalPages)
	}
}

func TestAssembleRequiresUploadedPages(t *testing.T) {
	packager, _ := newTestPackager(t, &stubFetcher{})
	_, err := packager.Assemble(context.Background(), "proj", "run-1", nil, nil)
	if !errors.Is(err, ErrNoUploadedPages) {
		t.Fatalf("expected ErrNoUploadedPages, got %v", err)
	}
}

func TestAssembleHonorsCancelation(t *testing.T) {
	packager, _ := newTestPackager(t, &stubFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := packager.Assemble(ctx, "proj", "run-1", testPages(), []discovery.ValidatedSpec{
		{Row: 1, URL: "https://enphase.com/iq8.pdf"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
