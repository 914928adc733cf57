// File path: internal/sqlite/queries.go
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SpecForIdentity returns the cached spec for a normalized manufacturer and
// part number. A miss surfaces as sql.ErrNoRows.
func (s *Store) SpecForIdentity(ctx context.Context, manufacturer, partNumber string) (*SpecCacheRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite store not initialised")
	}
	var row SpecCacheRow
	if err := s.db.GetContext(ctx, &row,
		`SELECT * FROM spec_cache WHERE manufacturer = ? AND part_number = ?`,
		manufacturer, partNumber); err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertSpec inserts or refreshes a cache entry. Writes happen only for
// freshly validated specs, so a conflicting row is always replaced.
func (s *Store) UpsertSpec(ctx context.Context, row SpecCacheRow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialised")
	}
	if strings.TrimSpace(row.URL) == "" {
		return fmt.Errorf("spec url required")
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO spec_cache(manufacturer, part_number, url, title, confidence, pages)
                        VALUES(?, ?, ?, ?, ?, ?)
                        ON CONFLICT(manufacturer, part_number) DO UPDATE SET
                                url = excluded.url,
                                title = excluded.title,
                                confidence = excluded.confidence,
                                pages = excluded.pages,
                                updated_at = CURRENT_TIMESTAMP`,
			row.Manufacturer, row.PartNumber, row.URL, nullIfEmpty(row.Title), row.Confidence, row.Pages); err != nil {
			return fmt.Errorf("upsert spec cache: %w", err)
		}
		return nil
	})
}

// SpecCount reports the number of cache entries.
func (s *Store) SpecCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlite store not initialised")
	}
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM spec_cache`); err != nil {
		return 0, fmt.Errorf("count spec cache: %w", err)
	}
	return count, nil
}

// InsertRun records the start of a pipeline run.
func (s *Store) InsertRun(ctx context.Context, runID, projectID, state string, totalComponents int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialised")
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs(run_id, project_id, state, total_components) VALUES(?, ?, ?, ?)`,
			runID, projectID, state, totalComponents); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return recordAudit(ctx, tx, projectID, "run_started", runID)
	})
}

// RunTotals carries the per-status counters written when a run finishes.
type RunTotals struct {
	Resolved       int
	ResolvedCache  int
	NotFound       int
	DownloadFailed int
}

// FinishRun records the terminal state and component outcomes of a run.
func (s *Store) FinishRun(ctx context.Context, runID, state string, totals RunTotals, components []RunComponentRow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialised")
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET state = ?, resolved = ?, resolved_cache = ?, not_found = ?, download_failed = ?, finished_at = ?
                        WHERE run_id = ?`,
			state, totals.Resolved, totals.ResolvedCache, totals.NotFound, totals.DownloadFailed,
			time.Now().UTC(), runID); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		for _, component := range components {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_components(run_id, row, part_number, name, manufacturer, status, spec_url, spec_source)
                                VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, component.Row, component.PartNumber, component.Name, component.Manufacturer,
				component.Status, component.SpecURL, component.SpecSource); err != nil {
				return fmt.Errorf("insert run component: %w", err)
			}
		}
		return nil
	})
}

// RunByID fetches one run summary.
func (s *Store) RunByID(ctx context.Context, runID string) (*RunRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite store not initialised")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id required")
	}
	var run RunRow
	if err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE run_id = ?`, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns lists a project's runs newest first.
func (s *Store) RecentRuns(ctx context.Context, projectID string, limit int) ([]RunRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite store not initialised")
	}
	if limit <= 0 {
		limit = 20
	}
	runs := []RunRow{}
	if err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM runs WHERE project_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		projectID, limit); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return runs, nil
}

// ComponentsForRun returns the per-component outcomes in BOM row order.
func (s *Store) ComponentsForRun(ctx context.Context, runID string) ([]RunComponentRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite store not initialised")
	}
	components := []RunComponentRow{}
	if err := s.db.SelectContext(ctx, &components,
		`SELECT * FROM run_components WHERE run_id = ? ORDER BY row, id`, runID); err != nil {
		return nil, fmt.Errorf("select run components: %w", err)
	}
	return components, nil
}

// RecordAudit appends an audit entry outside of any other transaction.
func (s *Store) RecordAudit(ctx context.Context, projectID, action, detail string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store not initialised")
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return recordAudit(ctx, tx, projectID, action, detail)
	})
}

func recordAudit(ctx context.Context, tx *sqlx.Tx, projectID, action, detail string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO audit(project_id, action, detail) VALUES(?, ?, ?)`,
		projectID, action, detail); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
