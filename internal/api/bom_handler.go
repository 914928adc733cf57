// File path: internal/api/bom_handler.go
package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common"
)

// handleBOMUpload accepts a bill of materials as CSV, either as a multipart
// "file" part or as the raw request body, and stores the normalized
// components for the project.
func (s *Server) handleBOMUpload(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reader, cleanup, err := s.bomReader(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	components, err := bom.NormalizeCSV(io.LimitReader(reader, s.cfg.MaxBOMBytes))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bom.ErrMalformedBOM) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	if err := s.pipeline.SetComponents(projectID, components); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger.Info("api: bom stored", "project", projectID, "components", len(components))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":    projectID,
		"count":      len(components),
		"components": components,
	})
}

func (s *Server) bomReader(r *http.Request) (io.Reader, func(), error) {
	noop := func() {}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, noop, nil
	}
	if err := r.ParseMultipartForm(s.cfg.MaxBOMBytes); err != nil {
		return nil, noop, fmt.Errorf("parse upload form: %w", err)
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("bom file part required: %w", err)
	}
	return file, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

// handleBOMList returns the stored normalized components for a project.
func (s *Server) handleBOMList(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	components := s.pipeline.Components(projectID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":    projectID,
		"count":      len(components),
		"components": components,
	})
}
