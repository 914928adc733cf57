// File path: internal/pipeline/runner.go
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common/telemetry"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

// ReportArtifact is the report file written into the project store.
const ReportArtifact = "report.json"

type componentOutcome struct {
	index  int
	status string
	spec   *discovery.ValidatedSpec
}

func (m *Manager) run(ctx context.Context, req Request, runID string) {
	projectID := req.ProjectID
	startedAt := time.Now().UTC()

	fail := func(err error) {
		m.AppendLog("error", "Pipeline run %s failed for project %s: %v", runID, projectID, err)
		completed := time.Now().UTC()
		final := State{
			RunID:       runID,
			Status:      StateFailed,
			Running:     false,
			StartedAt:   &startedAt,
			CompletedAt: &completed,
			Error:       err.Error(),
			Request:     req,
		}
		m.finishRun(projectID, final)
		if m.catalog != nil {
			if dbErr := m.catalog.RecordAudit(context.Background(), projectID, "run_failed", err.Error()); dbErr != nil {
				m.AppendLog("warn", "Audit write failed for run %s: %v", runID, dbErr)
			}
		}
	}

	ctx, finishSpan := telemetry.StartSpan(ctx, "pipeline.run")
	defer finishSpan("run", runID)

	// Normalize stage: the BOM is parsed at upload time; here we confirm
	// the inputs a package needs actually exist.
	m.setRunStatus(projectID, StateNormalizing)
	components := m.Components(projectID)
	if len(components) == 0 {
		fail(ErrNoBOM)
		return
	}
	pages, err := m.store.Pages(ctx, projectID)
	if err != nil {
		fail(err)
		return
	}
	if len(pages) == 0 {
		fail(assembly.ErrNoUploadedPages)
		return
	}
	if m.catalog != nil {
		if err := m.catalog.InsertRun(ctx, runID, projectID, StateResolving, len(components)); err != nil {
			m.AppendLog("warn", "Run history write failed for run %s: %v", runID, err)
		}
	}

	// Resolve stage: a bounded worker pool walks the escalation ladder per
	// component. Outcomes land in a slice indexed by BOM position so the
	// report preserves row order regardless of completion order.
	m.setRunStatus(projectID, StateResolving)
	outcomes, err := m.resolveComponents(ctx, req, components)
	if err != nil {
		fail(err)
		return
	}

	// Assemble stage.
	m.setRunStatus(projectID, StateAssembling)
	var specs []discovery.ValidatedSpec
	for _, outcome := range outcomes {
		if outcome.spec != nil {
			specs = append(specs, *outcome.spec)
		}
	}
	result, err := m.packager.Assemble(ctx, projectID, runID, pages, specs)
	if err != nil {
		fail(err)
		return
	}
	// Failures map back to components by BOM row, not URL: duplicate rows
	// may share a datasheet URL, and only the rows the packager actually
	// dropped revert to missing.
	failedRows := make(map[int]struct{}, len(result.Failed))
	for _, spec := range result.Failed {
		failedRows[spec.Row] = struct{}{}
	}
	for i := range outcomes {
		if outcomes[i].spec == nil {
			continue
		}
		if _, dropped := failedRows[outcomes[i].spec.Row]; dropped {
			outcomes[i].status = StatusDownloadFailed
			outcomes[i].spec = nil
		}
	}

	report := m.buildReport(runID, projectID, startedAt, components, outcomes, result.Manifest.TotalPages)
	m.persistReport(ctx, runID, projectID, components, outcomes, report)

	completed := time.Now().UTC()
	final := State{
		RunID:       runID,
		Status:      report.State,
		Running:     false,
		StartedAt:   &startedAt,
		CompletedAt: &completed,
		Report:      report,
		Request:     req,
	}
	m.finishRun(projectID, final)
	m.AppendLog("info", "Pipeline run %s finished for project %s: %s (%d/%d resolved)",
		runID, projectID, report.State, report.Resolved+report.ResolvedCache, report.Total)
}

func (m *Manager) resolveComponents(ctx context.Context, req Request, components []bom.Component) ([]componentOutcome, error) {
	outcomes := make([]componentOutcome, len(components))
	jobs := make(chan int)
	results := make(chan componentOutcome, len(components))

	workers := m.workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(components) {
		workers = len(components)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- m.resolveOne(ctx, req, idx, components[idx])
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range components {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	close(results)
	for outcome := range results {
		outcomes[outcome.index] = outcome
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (m *Manager) resolveOne(ctx context.Context, req Request, idx int, component bom.Component) componentOutcome {
	outcome := componentOutcome{index: idx, status: StatusNotFound}
	if err := ctx.Err(); err != nil {
		return outcome
	}
	identity := component.Identity()

	if !req.RefreshCache && m.cache != nil {
		if cached, ok, err := m.cache.Get(ctx, identity); err != nil {
			m.AppendLog("warn", "Cache lookup failed for %s: %v", component.Label(), err)
		} else if ok {
			cached.Row = component.Row
			outcome.status = StatusResolvedCache
			outcome.spec = &cached
			return outcome
		}
	}

	if m.resolver != nil {
		spec, err := m.resolver.Resolve(ctx, component)
		switch {
		case err == nil:
			if m.cache != nil {
				if putErr := m.cache.Put(ctx, spec); putErr != nil {
					m.AppendLog("warn", "Cache write failed for %s: %v", component.Label(), putErr)
				}
			}
			outcome.status = StatusResolved
			outcome.spec = &spec
			return outcome
		case errors.Is(err, discovery.ErrSpecNotFound):
			// fall through to the cache below
		default:
			if ctx.Err() != nil {
				return outcome
			}
			m.AppendLog("warn", "Resolution failed for %s: %v", component.Label(), err)
		}
	}

	// Live discovery found nothing. A refresh run still prefers a stale
	// cached spec over a hole in the package.
	if req.RefreshCache && m.cache != nil {
		if cached, ok, err := m.cache.Get(ctx, identity); err == nil && ok {
			cached.Row = component.Row
			outcome.status = StatusResolvedCache
			outcome.spec = &cached
			return outcome
		}
	}
	return outcome
}

func (m *Manager) buildReport(runID, projectID string, startedAt time.Time, components []bom.Component, outcomes []componentOutcome, totalPages int) *Report {
	completed := time.Now().UTC()
	report := &Report{
		RunID:       runID,
		ProjectID:   projectID,
		StartedAt:   startedAt,
		CompletedAt: &completed,
		Total:       len(components),
		TotalPages:  totalPages,
		Components:  make([]ComponentReport, 0, len(components)),
	}
	for i, component := range components {
		outcome := outcomes[i]
		entry := ComponentReport{
			Row:          component.Row,
			PartNumber:   component.PartNumber,
			Name:         component.Name,
			Manufacturer: component.Manufacturer.Name,
			Status:       outcome.status,
		}
		switch outcome.status {
		case StatusResolved:
			report.Resolved++
		case StatusResolvedCache:
			report.ResolvedCache++
		case StatusDownloadFailed:
			report.DownloadFailed++
		default:
			report.NotFound++
		}
		if outcome.spec != nil {
			entry.SpecURL = outcome.spec.URL
			entry.SpecSource = string(outcome.spec.Source)
		}
		report.Components = append(report.Components, entry)
	}
	report.Missing = report.Total - report.Resolved - report.ResolvedCache
	if report.Missing == 0 {
		report.State = StateDone
	} else {
		report.State = StatePartial
	}
	return report
}

func (m *Manager) persistReport(ctx context.Context, runID, projectID string, components []bom.Component, outcomes []componentOutcome, report *Report) {
	if data, err := json.MarshalIndent(report, "", "  "); err == nil {
		if err := m.store.WriteArtifact(projectID, ReportArtifact, data); err != nil {
			m.AppendLog("warn", "Report write failed for run %s: %v", runID, err)
		}
	}
	if m.catalog == nil {
		return
	}
	rows := make([]sqlite.RunComponentRow, 0, len(components))
	for i, component := range components {
		outcome := outcomes[i]
		row := sqlite.RunComponentRow{
			RunID:        runID,
			Row:          component.Row,
			PartNumber:   nullString(component.PartNumber),
			Name:         nullString(component.Name),
			Manufacturer: nullString(component.Manufacturer.Name),
			Status:       outcome.status,
		}
		if outcome.spec != nil {
			row.SpecURL = nullString(outcome.spec.URL)
			row.SpecSource = nullString(string(outcome.spec.Source))
		}
		rows = append(rows, row)
	}
	totals := sqlite.RunTotals{
		Resolved:       report.Resolved,
		ResolvedCache:  report.ResolvedCache,
		NotFound:       report.NotFound,
		DownloadFailed: report.DownloadFailed,
	}
	if err := m.catalog.FinishRun(ctx, runID, report.State, totals, rows); err != nil {
		m.AppendLog("warn", "Run history write failed for run %s: %v", runID, err)
	}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
