// File path: internal/pipeline/manager.go
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/memory"
	"github.com/gridline-eng/permitpack/internal/speccache"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

const maxLogEntries = 500

var (
	ErrRunActive    = errors.New("pipeline run already active")
	ErrRunNotFound  = errors.New("pipeline run not found")
	ErrRunNotActive = errors.New("pipeline run not active")
	ErrNoBOM        = errors.New("no normalized bill of materials")
)

// Run states. A run is terminal in done, partial, or failed.
const (
	StatePending     = "pending"
	StateNormalizing = "normalizing"
	StateResolving   = "resolving"
	StateAssembling  = "assembling"
	StateDone        = "done"
	StatePartial     = "partial"
	StateFailed      = "failed"
)

// Per-component outcomes reported after a run.
const (
	StatusResolved       = "resolved"
	StatusResolvedCache  = "resolved_cache"
	StatusNotFound       = "spec_not_found"
	StatusDownloadFailed = "spec_download_failed"
)

// Request starts one pipeline run for a project.
type Request struct {
	ProjectID    string `json:"project_id"`
	RefreshCache bool   `json:"refresh_cache"`
}

// ComponentReport is the per-component line of the final report.
type ComponentReport struct {
	Row          int    `json:"row"`
	PartNumber   string `json:"part_number,omitempty"`
	Name         string `json:"name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Status       string `json:"status"`
	SpecURL      string `json:"spec_url,omitempty"`
	SpecSource   string `json:"spec_source,omitempty"`
}

// Report summarizes a finished run. Missing always equals Total minus the
// two resolved counters.
type Report struct {
	RunID          string            `json:"run_id"`
	ProjectID      string            `json:"project_id"`
	State          string            `json:"state"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Total          int               `json:"total"`
	Resolved       int               `json:"resolved"`
	ResolvedCache  int               `json:"resolved_cache"`
	NotFound       int               `json:"not_found"`
	DownloadFailed int               `json:"download_failed"`
	Missing        int               `json:"missing"`
	TotalPages     int               `json:"total_pages"`
	Components     []ComponentReport `json:"components"`
}

// LogEntry mirrors the manager's in-memory run log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// State is the externally visible run state for a project.
type State struct {
	RunID       string     `json:"run_id,omitempty"`
	Status      string     `json:"status"`
	Running     bool       `json:"running"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Report      *Report    `json:"report,omitempty"`
	Request     Request    `json:"request"`
}

type session struct {
	state  State
	cancel context.CancelFunc
}

// Manager owns pipeline runs: one active run per project, with terminal
// states kept for status and report queries.
type Manager struct {
	store    *memory.Store
	catalog  *sqlite.Store
	cache    *speccache.Cache
	resolver *discovery.Resolver
	packager *assembly.Packager

	workers int

	bomMu sync.RWMutex
	boms  map[string][]bom.Component

	logMu sync.Mutex
	logs  []LogEntry

	runMu   sync.Mutex
	runs    map[string]*session
	history map[string]State
}

// NewManager wires the pipeline capabilities together. Worker count comes
// from PERMITPACK_RESOLVE_WORKERS.
func NewManager(store *memory.Store, catalog *sqlite.Store, cache *speccache.Cache, resolver *discovery.Resolver, packager *assembly.Packager) *Manager {
	return &Manager{
		store:    store,
		catalog:  catalog,
		cache:    cache,
		resolver: resolver,
		packager: packager,
		workers:  loadWorkerCount(),
		boms:     make(map[string][]bom.Component),
		logs:     make([]LogEntry, 0, 32),
		runs:     make(map[string]*session),
		history:  make(map[string]State),
	}
}

func loadWorkerCount() int {
	value := strings.TrimSpace(os.Getenv("PERMITPACK_RESOLVE_WORKERS"))
	if value == "" {
		return 4
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		common.Logger().Warn("pipeline: invalid worker count", "value", value)
		return 4
	}
	return parsed
}

// SetComponents stores the normalized BOM for a project, replacing any
// previous upload.
func (m *Manager) SetComponents(projectID string, components []bom.Component) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project id required")
	}
	m.bomMu.Lock()
	m.boms[projectID] = append([]bom.Component(nil), components...)
	m.bomMu.Unlock()
	m.AppendLog("info", "BOM stored for project %s (%d components)", projectID, len(components))
	return nil
}

// Components returns the stored BOM for a project.
func (m *Manager) Components(projectID string) []bom.Component {
	m.bomMu.RLock()
	defer m.bomMu.RUnlock()
	return append([]bom.Component(nil), m.boms[strings.TrimSpace(projectID)]...)
}

// AppendLog records a run log line and mirrors it to the process logger.
func (m *Manager) AppendLog(level, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	entry := LogEntry{Time: time.Now().UTC(), Level: level, Message: text}
	m.logMu.Lock()
	m.logs = append(m.logs, entry)
	if len(m.logs) > maxLogEntries {
		m.logs = m.logs[len(m.logs)-maxLogEntries:]
	}
	m.logMu.Unlock()
	logger := common.Logger()
	switch level {
	case "error":
		logger.Error(text)
	case "warn":
		logger.Warn(text)
	case "debug":
		logger.Debug(text)
	default:
		logger.Info(text)
	}
}

// Logs returns a copy of the run log.
func (m *Manager) Logs() []LogEntry {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	entries := make([]LogEntry, len(m.logs))
	copy(entries, m.logs)
	return entries
}

// Start launches a run for the project. A project has at most one active
// run.
func (m *Manager) Start(req Request) (string, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if req.ProjectID == "" {
		return "", fmt.Errorf("project id required")
	}
	runID := newRunID()
	now := time.Now().UTC()
	state := State{
		RunID:     runID,
		Status:    StatePending,
		Running:   true,
		StartedAt: &now,
		Request:   req,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.runMu.Lock()
	if existing, ok := m.runs[req.ProjectID]; ok && existing.state.Running {
		m.runMu.Unlock()
		cancel()
		return "", ErrRunActive
	}
	m.runs[req.ProjectID] = &session{state: state, cancel: cancel}
	m.runMu.Unlock()
	go m.run(ctx, req, runID)
	m.AppendLog("info", "Pipeline run %s started for project %s", runID, req.ProjectID)
	return runID, nil
}

// Stop requests cancelation of the active run.
func (m *Manager) Stop(projectID string) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project id required")
	}
	m.runMu.Lock()
	session, ok := m.runs[projectID]
	if !ok {
		m.runMu.Unlock()
		return ErrRunNotFound
	}
	if !session.state.Running || session.cancel == nil {
		m.runMu.Unlock()
		return ErrRunNotActive
	}
	cancel := session.cancel
	m.runMu.Unlock()
	cancel()
	m.AppendLog("info", "Cancellation requested for project %s", projectID)
	return nil
}

// Status returns the current or last known state for a project.
func (m *Manager) Status(projectID string) State {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return State{Status: StatePending}
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if session, ok := m.runs[projectID]; ok {
		return cloneState(session.state)
	}
	if state, ok := m.history[projectID]; ok {
		return cloneState(state)
	}
	state := State{Status: StatePending}
	state.Request.ProjectID = projectID
	return state
}

// Report returns the report of the last finished run.
func (m *Manager) Report(projectID string) (*Report, error) {
	state := m.Status(projectID)
	if state.Report == nil {
		return nil, ErrRunNotFound
	}
	report := *state.Report
	report.Components = append([]ComponentReport(nil), state.Report.Components...)
	return &report, nil
}

func (m *Manager) setRunStatus(projectID, status string) {
	m.runMu.Lock()
	if session, ok := m.runs[projectID]; ok {
		session.state.Status = status
	}
	m.runMu.Unlock()
}

func (m *Manager) finishRun(projectID string, final State) {
	m.runMu.Lock()
	if session, ok := m.runs[projectID]; ok {
		session.state = final
	}
	m.history[projectID] = final
	m.runMu.Unlock()
}

func cloneState(state State) State {
	snapshot := state
	if state.Report != nil {
		report := *state.Report
		report.Components = append([]ComponentReport(nil), state.Report.Components...)
		snapshot.Report = &report
	}
	return snapshot
}

func newRunID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(buf)
}
