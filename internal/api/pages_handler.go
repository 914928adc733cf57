// File path: internal/api/pages_handler.go
package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/memory"
)

// handlePagesUpload accepts one or more package pages (site plan, one-line
// diagram, placards) as multipart "files" parts. Declared page counts ride
// in parallel "pages" form values; titles in parallel "title" values. The
// "replace" flag swaps the whole page set instead of appending.
func (s *Server) handlePagesUpload(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload form: %w", err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	pageCounts := r.MultipartForm.Value["pages"]
	titles := r.MultipartForm.Value["title"]

	uploaded := make([]memory.UploadedPage, 0, len(files))
	now := time.Now().UTC()
	for i, fileHeader := range files {
		name := strings.TrimSpace(fileHeader.Filename)
		if name == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("file name required"))
			return
		}
		count := 1
		if i < len(pageCounts) {
			parsed, err := strconv.Atoi(strings.TrimSpace(pageCounts[i]))
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page count for %s: %q", name, pageCounts[i]))
				return
			}
			count = parsed
		}
		title := ""
		if i < len(titles) {
			title = strings.TrimSpace(titles[i])
		}
		src, err := fileHeader.Open()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("open uploaded file: %w", err))
			return
		}
		content, err := io.ReadAll(src)
		_ = src.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("read uploaded file: %w", err))
			return
		}
		uploaded = append(uploaded, memory.UploadedPage{
			ID:         newPageID(),
			FileName:   name,
			Title:      title,
			Pages:      count,
			SizeBytes:  int64(len(content)),
			UploadedAt: now,
			Content:    content,
		})
	}

	replace := strings.EqualFold(strings.TrimSpace(r.FormValue("replace")), "true")
	if replace {
		err = s.store.ReplacePages(r.Context(), projectID, uploaded)
	} else {
		err = s.store.AddPages(r.Context(), projectID, uploaded)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	logger.Info("api: pages uploaded", "project", projectID, "files", len(uploaded), "replace", replace)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":  projectID,
		"uploaded": len(uploaded),
		"pages":    summarizePages(uploaded),
	})
}

// handlePagesList returns the project's uploaded pages without content.
func (s *Server) handlePagesList(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pages, err := s.store.Pages(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": projectID,
		"count":   len(pages),
		"pages":   summarizePages(pages),
	})
}

func summarizePages(pages []memory.UploadedPage) []memory.UploadedPage {
	summaries := make([]memory.UploadedPage, len(pages))
	for i, page := range pages {
		page.Content = nil
		summaries[i] = page
	}
	return summaries
}

func newPageID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("page-%d", time.Now().UnixNano())
	}
	return "page-" + hex.EncodeToString(buf)
}
