// File path: internal/api/pipeline_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/pipeline"
)

func (s *Server) handlePipelineStart(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID, err := s.pipeline.Start(req)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, pipeline.ErrRunActive):
			status = http.StatusConflict
		default:
			if !strings.Contains(err.Error(), "required") {
				status = http.StatusInternalServerError
			}
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "run_id": runID})
}

func (s *Server) handlePipelineCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	if err := s.pipeline.Stop(projectID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrRunNotFound):
			status = http.StatusNotFound
		case errors.Is(err, pipeline.ErrRunNotActive):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Status(projectID))
}

func (s *Server) handlePipelineReport(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.pipeline.Report(projectID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handlePipelineRuns returns recent run history from the catalog.
func (s *Server) handlePipelineRuns(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = parsed
	}
	runs, err := s.catalog.RecentRuns(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": projectID,
		"runs":    runs,
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.Projects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	combined := append([]common.LogEntry(nil), common.LogEntries()...)
	existing := make(map[string]struct{}, len(combined))
	for _, entry := range combined {
		existing[logEntryKey(entry.Time, entry.Level, entry.Message)] = struct{}{}
	}
	for _, entry := range s.pipeline.Logs() {
		converted := common.LogEntry{
			Time:    entry.Time,
			Level:   strings.ToLower(entry.Level),
			Message: entry.Message,
		}
		key := logEntryKey(converted.Time, converted.Level, converted.Message)
		if _, ok := existing[key]; ok {
			continue
		}
		combined = append(combined, converted)
		existing[key] = struct{}{}
	}
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Time.Equal(combined[j].Time) {
			if combined[i].Level == combined[j].Level {
				return combined[i].Message < combined[j].Message
			}
			return combined[i].Level < combined[j].Level
		}
		return combined[i].Time.Before(combined[j].Time)
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": combined})
}

func logEntryKey(ts time.Time, level, message string) string {
	stamp := ts.UTC().Format(time.RFC3339Nano)
	return strings.Join([]string{stamp, strings.ToLower(strings.TrimSpace(level)), message}, "|")
}
