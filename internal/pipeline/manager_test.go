// File path: internal/pipeline/manager_test.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/llm"
	"github.com/gridline-eng/permitpack/internal/memory"
	"github.com/gridline-eng/permitpack/internal/search"
	"github.com/gridline-eng/permitpack/internal/speccache"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

type stubSearch struct {
	mu         sync.Mutex
	candidates map[string][]search.Candidate
	calls      int
	block      chan struct{}
}

func (s *stubSearch) Available() bool { return true }

func (s *stubSearch) Search(ctx context.Context, req search.Request) ([]search.Candidate, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, candidates := range s.candidates {
		if strings.Contains(strings.ToLower(req.Text), strings.ToLower(key)) {
			return candidates, nil
		}
	}
	return nil, nil
}

func (s *stubSearch) searchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type yesClassifier struct {
	mu    sync.Mutex
	calls int
}

func (c *yesClassifier) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return "YES.", nil
}

func (c *yesClassifier) Name() string { return "stub" }

type stubFetch struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failures map[string]error
}

func (f *stubFetch) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	if data, ok := f.payloads[url]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("unexpected url %s", url)
}

type harness struct {
	manager *Manager
	store   *memory.Store
	catalog *sqlite.Store
	cache   *speccache.Cache
	search  *stubSearch
}

func newHarness(t *testing.T, searchStub *stubSearch, fetcher assembly.Fetcher) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := memory.NewStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	catalog, err := sqlite.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	cache, err := speccache.New(catalog)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	table := discovery.DomainTable{"qcells": {"qcells.com"}}
	cfg := discovery.DefaultValidatorConfig()
	validator := discovery.NewValidator(&yesClassifier{}, cfg)
	resolver := discovery.NewResolver(searchStub, validator, table, 5, cfg)
	packager := assembly.NewPackager(store, fetcher)
	manager := NewManager(store, catalog, cache, resolver, packager)
	return &harness{manager: manager, store: store, catalog: catalog, cache: cache, search: searchStub}
}

func testBOM() []bom.Component {
	return []bom.Component{
		{Row: 1, PartNumber: "Q.PEAK-DUO-G10", Name: "Solar Module", Manufacturer: bom.KnownManufacturer("Qcells"), Quantity: 24},
	}
}

func uploadPages(t *testing.T, store *memory.Store, projectID string) {
	t.Helper()
	pages := []memory.UploadedPage{
		{ID: "1", FileName: "site-plan.pdf", Title: "Site Plan", Pages: 2, Content: []byte("site plan")},
	}
	if err := store.ReplacePages(context.Background(), projectID, pages); err != nil {
		t.Fatalf("upload pages: %v", err)
	}
}

func waitForTerminal(t *testing.T, manager *Manager, projectID string) State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state := manager.Status(projectID)
		if !state.Running && state.Status != StatePending {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run did not finish: %+v", manager.Status(projectID))
	return State{}
}

func TestRunResolvesLiveAndCaches(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{
		"q.peak-duo-g10": {{URL: "https://qcells.com/datasheets/qpeak.pdf", Title: "Q.PEAK Data Sheet", EstimatedPages: 4}},
	}}
	fetcher := &stubFetch{payloads: map[string][]byte{
		"https://qcells.com/datasheets/qpeak.pdf": []byte("qpeak datasheet"),
	}}
	h := newHarness(t, searchStub, fetcher)

	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	runID, err := h.manager.Start(Request{ProjectID: "proj"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateDone {
		t.Fatalf("state = %s, want done (%+v)", state.Status, state)
	}
	report := state.Report
	if report == nil || report.Resolved != 1 || report.Missing != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Components[0].Status != StatusResolved {
		t.Fatalf("component status = %s", report.Components[0].Status)
	}
	if report.TotalPages != 6 {
		t.Fatalf("total pages = %d, want 6", report.TotalPages)
	}

	data, err := h.store.ReadArtifact("proj", ReportArtifact)
	if err != nil {
		t.Fatalf("read report artifact: %v", err)
	}
	var persisted Report
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("decode report artifact: %v", err)
	}
	if persisted.RunID != runID || persisted.State != StateDone {
		t.Fatalf("unexpected persisted report: %+v", persisted)
	}

	row, err := h.catalog.RunByID(context.Background(), runID)
	if err != nil {
		t.Fatalf("run history: %v", err)
	}
	if row.State != StateDone || row.Resolved != 1 {
		t.Fatalf("unexpected run row: %+v", row)
	}

	// The accepted spec must now serve the next run from the cache.
	calls := searchStub.searchCalls()
	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("second start: %v", err)
	}
	state = waitForTerminal(t, h.manager, "proj")
	if state.Status != StateDone {
		t.Fatalf("second run state = %s", state.Status)
	}
	if state.Report.ResolvedCache != 1 || state.Report.Resolved != 0 {
		t.Fatalf("second run should hit the cache: %+v", state.Report)
	}
	if state.Report.Components[0].SpecSource != string(discovery.SourceCache) {
		t.Fatalf("spec source = %s", state.Report.Components[0].SpecSource)
	}
	if searchStub.searchCalls() != calls {
		t.Fatalf("cache hit must not search, calls went %d -> %d", calls, searchStub.searchCalls())
	}
}

func TestRunPartialWhenSpecMissing(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{
		"q.peak-duo-g10": {{URL: "https://qcells.com/datasheets/qpeak.pdf", Title: "Q.PEAK Data Sheet"}},
	}}
	fetcher := &stubFetch{payloads: map[string][]byte{
		"https://qcells.com/datasheets/qpeak.pdf": []byte("qpeak datasheet"),
	}}
	h := newHarness(t, searchStub, fetcher)

	components := append(testBOM(), bom.Component{
		Row: 2, PartNumber: "NO-SUCH-PART", Name: "Mystery Bracket",
		Manufacturer: bom.KnownManufacturer("Qcells"), Quantity: 4,
	})
	if err := h.manager.SetComponents("proj", components); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StatePartial {
		t.Fatalf("state = %s, want partial", state.Status)
	}
	report := state.Report
	if report.Resolved != 1 || report.NotFound != 1 || report.Missing != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.Components[0].Row != 1 || report.Components[1].Row != 2 {
		t.Fatalf("components out of row order: %+v", report.Components)
	}
	if report.Components[1].Status != StatusNotFound {
		t.Fatalf("missing component status = %s", report.Components[1].Status)
	}
}

func TestRunMarksFailedDownloads(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{
		"q.peak-duo-g10": {{URL: "https://qcells.com/datasheets/qpeak.pdf", Title: "Q.PEAK Data Sheet"}},
	}}
	fetcher := &stubFetch{failures: map[string]error{
		"https://qcells.com/datasheets/qpeak.pdf": errors.New("status 404 Not Found"),
	}}
	h := newHarness(t, searchStub, fetcher)

	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StatePartial {
		t.Fatalf("state = %s, want partial", state.Status)
	}
	if state.Report.DownloadFailed != 1 || state.Report.Missing != 1 {
		t.Fatalf("unexpected totals: %+v", state.Report)
	}
	if state.Report.Components[0].Status != StatusDownloadFailed {
		t.Fatalf("component status = %s", state.Report.Components[0].Status)
	}
}

func TestRunDuplicateRowsShareDownloadOutcome(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{
		"q.peak-duo-g10": {{URL: "https://qcells.com/datasheets/qpeak.pdf", Title: "Q.PEAK Data Sheet", EstimatedPages: 4}},
	}}
	fetcher := &stubFetch{failures: map[string]error{
		"https://qcells.com/datasheets/qpeak.pdf": errors.New("status 503 Service Unavailable"),
	}}
	h := newHarness(t, searchStub, fetcher)

	// Two BOM rows for the same part share one datasheet URL.
	components := append(testBOM(), bom.Component{
		Row: 2, PartNumber: "Q.PEAK-DUO-G10", Name: "Solar Module",
		Manufacturer: bom.KnownManufacturer("Qcells"), Quantity: 12,
	})
	if err := h.manager.SetComponents("proj", components); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StatePartial {
		t.Fatalf("state = %s, want partial", state.Status)
	}
	report := state.Report
	if report.DownloadFailed != 2 || report.Missing != 2 || report.Resolved != 0 || report.ResolvedCache != 0 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	for _, component := range report.Components {
		if component.Status != StatusDownloadFailed {
			t.Fatalf("row %d status = %s", component.Row, component.Status)
		}
		if component.SpecURL != "" {
			t.Fatalf("failed row %d keeps spec url %q", component.Row, component.SpecURL)
		}
	}
	if report.TotalPages != 2 {
		t.Fatalf("total pages = %d, want 2 (uploaded pages only)", report.TotalPages)
	}

	// The package must agree with the report: no datasheet entries.
	data, err := h.store.ReadArtifact("proj", assembly.ManifestArtifact)
	if err != nil {
		t.Fatalf("read manifest artifact: %v", err)
	}
	var manifest assembly.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	for _, entry := range manifest.Entries {
		if entry.Kind == assembly.EntryKindSpec {
			t.Fatalf("manifest packages a sheet the report calls failed: %+v", entry)
		}
	}
}

func TestRefreshCacheBypassesReads(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{
		"q.peak-duo-g10": {{URL: "https://qcells.com/datasheets/qpeak-v2.pdf", Title: "Q.PEAK Data Sheet"}},
	}}
	fetcher := &stubFetch{payloads: map[string][]byte{
		"https://qcells.com/datasheets/qpeak-v2.pdf": []byte("qpeak v2"),
	}}
	h := newHarness(t, searchStub, fetcher)

	stale := discovery.ValidatedSpec{
		Identity:   testBOM()[0].Identity(),
		Row:        1,
		URL:        "https://qcells.com/datasheets/qpeak-v1.pdf",
		Confidence: discovery.ConfidenceExplicitYes,
		Pages:      3,
		Source:     discovery.SourceLive,
	}
	if err := h.cache.Put(context.Background(), stale); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj", RefreshCache: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateDone {
		t.Fatalf("state = %s, want done", state.Status)
	}
	component := state.Report.Components[0]
	if component.Status != StatusResolved || component.SpecURL != "https://qcells.com/datasheets/qpeak-v2.pdf" {
		t.Fatalf("refresh run should resolve live: %+v", component)
	}
	if searchStub.searchCalls() == 0 {
		t.Fatalf("refresh run must search despite cached entry")
	}
}

func TestRefreshCacheFallsBackToStaleEntry(t *testing.T) {
	searchStub := &stubSearch{candidates: map[string][]search.Candidate{}}
	h := newHarness(t, searchStub, &stubFetch{payloads: map[string][]byte{
		"https://qcells.com/datasheets/qpeak-v1.pdf": []byte("qpeak v1"),
	}})

	stale := discovery.ValidatedSpec{
		Identity:   testBOM()[0].Identity(),
		Row:        1,
		URL:        "https://qcells.com/datasheets/qpeak-v1.pdf",
		Confidence: discovery.ConfidenceExplicitYes,
		Pages:      3,
		Source:     discovery.SourceLive,
	}
	if err := h.cache.Put(context.Background(), stale); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj", RefreshCache: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateDone {
		t.Fatalf("state = %s, want done", state.Status)
	}
	component := state.Report.Components[0]
	if component.Status != StatusResolvedCache || component.SpecURL != "https://qcells.com/datasheets/qpeak-v1.pdf" {
		t.Fatalf("expected stale cache fallback: %+v", component)
	}
}

func TestRunFailsWithoutBOM(t *testing.T) {
	h := newHarness(t, &stubSearch{}, &stubFetch{})
	uploadPages(t, h.store, "proj")
	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateFailed {
		t.Fatalf("state = %s, want failed", state.Status)
	}
	if !strings.Contains(state.Error, "bill of materials") {
		t.Fatalf("unexpected error: %q", state.Error)
	}
}

func TestRunFailsWithoutPages(t *testing.T) {
	h := newHarness(t, &stubSearch{}, &stubFetch{})
	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateFailed {
		t.Fatalf("state = %s, want failed", state.Status)
	}
	if !strings.Contains(state.Error, "no uploaded pages") {
		t.Fatalf("unexpected error: %q", state.Error)
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	searchStub := &stubSearch{block: block}
	h := newHarness(t, searchStub, &stubFetch{})
	if err := h.manager.SetComponents("proj", testBOM()); err != nil {
		t.Fatalf("set components: %v", err)
	}
	uploadPages(t, h.store, "proj")

	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.manager.Start(Request{ProjectID: "proj"}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
	if err := h.manager.Stop("proj"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	state := waitForTerminal(t, h.manager, "proj")
	if state.Status != StateFailed {
		t.Fatalf("canceled run state = %s, want failed", state.Status)
	}
	close(block)

	// The slot frees once the run is terminal.
	if _, err := h.manager.Start(Request{ProjectID: "proj"}); err != nil {
		t.Fatalf("restart after cancel: %v", err)
	}
	waitForTerminal(t, h.manager, "proj")
}

func TestStopWithoutRun(t *testing.T) {
	h := newHarness(t, &stubSearch{}, &stubFetch{})
	if err := h.manager.Stop("proj"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
