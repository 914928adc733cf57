// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSpecCacheRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.SpecForIdentity(ctx, "enphase", "iq8plus-72-2-us"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected miss before insert, got %v", err)
	}

	entry := SpecCacheRow{
		Manufacturer: "enphase",
		PartNumber:   "iq8plus-72-2-us",
		URL:          "https://enphase.com/iq8.pdf",
		Title:        "IQ8 Data Sheet",
		Confidence:   "explicit_yes",
		Pages:        4,
	}
	if err := store.UpsertSpec(ctx, entry); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := store.SpecForIdentity(ctx, "enphase", "iq8plus-72-2-us")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.URL != entry.URL || row.Pages != 4 || row.Confidence != "explicit_yes" {
		t.Fatalf("unexpected row: %+v", row)
	}

	entry.URL = "https://enphase.com/iq8-rev2.pdf"
	entry.Pages = 5
	if err := store.UpsertSpec(ctx, entry); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	row, err = store.SpecForIdentity(ctx, "enphase", "iq8plus-72-2-us")
	if err != nil {
		t.Fatalf("get after refresh: %v", err)
	}
	if row.URL != "https://enphase.com/iq8-rev2.pdf" || row.Pages != 5 {
		t.Fatalf("refresh did not replace: %+v", row)
	}

	count, err := store.SpecCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single identity, got %d", count)
	}
}

func TestUpsertSpecRejectsEmptyURL(t *testing.T) {
	store := openTestStore(t)
	err := store.UpsertSpec(context.Background(), SpecCacheRow{Manufacturer: "acme", PartNumber: "x"})
	if err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestRunHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertRun(ctx, "run-1", "proj", "pending", 3); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	components := []RunComponentRow{
		{RunID: "run-1", Row: 1, PartNumber: sql.NullString{String: "A", Valid: true}, Status: "resolved",
			SpecURL: sql.NullString{String: "https://acme.com/a.pdf", Valid: true}, SpecSource: sql.NullString{String: "live", Valid: true}},
		{RunID: "run-1", Row: 2, PartNumber: sql.NullString{String: "B", Valid: true}, Status: "resolved_cache",
			SpecURL: sql.NullString{String: "https://acme.com/b.pdf", Valid: true}, SpecSource: sql.NullString{String: "cache", Valid: true}},
		{RunID: "run-1", Row: 3, PartNumber: sql.NullString{String: "C", Valid: true}, Status: "spec_not_found"},
	}
	totals := RunTotals{Resolved: 1, ResolvedCache: 1, NotFound: 1}
	if err := store.FinishRun(ctx, "run-1", "partial", totals, components); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := store.RunByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("run by id: %v", err)
	}
	if run.State != "partial" || run.Resolved != 1 || run.ResolvedCache != 1 || run.NotFound != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.FinishedAt.Valid {
		t.Fatalf("finished_at missing")
	}
	if run.FinishedAt.Time.After(time.Now().UTC().Add(time.Minute)) {
		t.Fatalf("finished_at in the future: %v", run.FinishedAt.Time)
	}

	stored, err := store.ComponentsForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("components: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 components, got %d", len(stored))
	}
	for i, component := range stored {
		if component.Row != i+1 {
			t.Fatalf("components not in row order: %+v", stored)
		}
	}
	if stored[2].SpecURL.Valid {
		t.Fatalf("not-found component should have no url: %+v", stored[2])
	}

	runs, err := store.RecentRuns(ctx, "proj", 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}
