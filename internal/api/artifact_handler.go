// File path: internal/api/artifact_handler.go
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gridline-eng/permitpack/internal/assembly"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/memory"
	"github.com/gridline-eng/permitpack/internal/pipeline"
)

// NarrativeArtifact is the narrative document file written into the project
// store.
const NarrativeArtifact = "narrative.json"

// handleArtifactDownload serves a named run artifact. Defaults to the
// assembled package archive.
func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = assembly.PackageArtifact
	}
	switch name {
	case assembly.PackageArtifact, assembly.ManifestArtifact, pipeline.ReportArtifact, NarrativeArtifact:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown artifact: %s", name))
		return
	}
	data, err := s.store.ReadArtifact(projectID, name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrArtifactNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	w.Header().Set("Content-Type", detectContentType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, time.Now(), bytes.NewReader(data))
}

// handleNarrative drafts the narrative document for the project's last
// finished run and persists it alongside the other artifacts. Repeat calls
// redraft; the stored document always reflects the latest call.
func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("narrative generator unavailable"))
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
	doc, err := s.generator.Generate(r.Context(), report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if data, marshalErr := json.MarshalIndent(doc, "", "  "); marshalErr == nil {
		if writeErr := s.store.WriteArtifact(projectID, NarrativeArtifact, data); writeErr != nil {
			logger.Warn("api: narrative artifact write failed", "project", projectID, "error", writeErr)
		}
	}
	logger.Info("api: narrative drafted", "project", projectID, "run", doc.RunID, "sections", len(doc.Sections))
	writeJSON(w, http.StatusOK, doc)
}
