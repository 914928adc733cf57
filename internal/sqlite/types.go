// File path: internal/sqlite/types.go
package sqlite

import (
	"database/sql"
	"time"
)

// SpecCacheRow is one persisted fallback cache entry, keyed by the
// normalized manufacturer and part number.
type SpecCacheRow struct {
	ID           int64     `db:"id"`
	Manufacturer string    `db:"manufacturer"`
	PartNumber   string    `db:"part_number"`
	URL          string    `db:"url"`
	Title        string    `db:"title"`
	Confidence   string    `db:"confidence"`
	Pages        int       `db:"pages"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// RunRow is the summary record for one pipeline run.
type RunRow struct {
	ID              int64        `db:"id"`
	RunID           string       `db:"run_id"`
	ProjectID       string       `db:"project_id"`
	State           string       `db:"state"`
	TotalComponents int          `db:"total_components"`
	Resolved        int          `db:"resolved"`
	ResolvedCache   int          `db:"resolved_cache"`
	NotFound        int          `db:"not_found"`
	DownloadFailed  int          `db:"download_failed"`
	StartedAt       time.Time    `db:"started_at"`
	FinishedAt      sql.NullTime `db:"finished_at"`
}

// RunComponentRow records the per-component outcome within a run.
type RunComponentRow struct {
	ID           int64          `db:"id"`
	RunID        string         `db:"run_id"`
	Row          int            `db:"row"`
	PartNumber   sql.NullString `db:"part_number"`
	Name         sql.NullString `db:"name"`
	Manufacturer sql.NullString `db:"manufacturer"`
	Status       string         `db:"status"`
	SpecURL      sql.NullString `db:"spec_url"`
	SpecSource   sql.NullString `db:"spec_source"`
	CreatedAt    time.Time      `db:"created_at"`
}

// AuditRow represents an audit entry.
type AuditRow struct {
	ID        int64     `db:"id"`
	ProjectID string    `db:"project_id"`
	Action    string    `db:"action"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}
