// File path: internal/memory/store.go
package memory

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// UploadedPage is one customer-supplied package page (site plan, one-line
// diagram, placards) with its declared page count. Content travels with the
// record so the assembler can write it into the final archive.
type UploadedPage struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Title      string    `json:"title,omitempty"`
	Pages      int       `json:"pages"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	Content    []byte    `json:"content,omitempty"`
}

// Store persists per-project artifacts on disk: uploaded pages as JSONL plus
// named artifact files (manifests, reports, assembled archives).
type Store struct {
	path string
	mu   sync.RWMutex
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path required")
	}
	basePath := determineRoot(path)
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{path: basePath}, nil
}

// AddPages appends uploaded pages to a project's page log.
func (s *Store) AddPages(ctx context.Context, projectID string, pages []UploadedPage) error {
	if len(pages) == 0 {
		return nil
	}
	filePath, err := s.pagesFile(projectID, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open page log: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	for _, page := range pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := enc.Encode(page); err != nil {
			return fmt.Errorf("encode page: %w", err)
		}
	}
	return nil
}

// ReplacePages overwrites a project's page log with the provided pages.
func (s *Store) ReplacePages(ctx context.Context, projectID string, pages []UploadedPage) error {
	filePath, err := s.pagesFile(projectID, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(filePath, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open page log: %w", err)
	}
	defer file.Close()
	if len(pages) == 0 {
		return nil
	}
	enc := json.NewEncoder(file)
	for _, page := range pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := enc.Encode(page); err != nil {
			return fmt.Errorf("encode page: %w", err)
		}
	}
	return nil
}

// Pages returns a project's uploaded pages in upload order.
func (s *Store) Pages(ctx context.Context, projectID string) ([]UploadedPage, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readPages(ctx, projectID)
}

// WriteArtifact stores a named artifact (manifest.json, report.json,
// package.zip) in the project directory, replacing any previous version.
func (s *Store) WriteArtifact(projectID, name string, data []byte) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	path, err := s.artifactPath(projectID, name, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// ErrArtifactNotFound reports a missing artifact file.
var ErrArtifactNotFound = errors.New("artifact not found")

// ReadArtifact loads a named artifact.
func (s *Store) ReadArtifact(projectID, name string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	path, err := s.artifactPath(projectID, name, false)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// RemoveArtifact deletes a named artifact if present.
func (s *Store) RemoveArtifact(projectID, name string) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	path, err := s.artifactPath(projectID, name, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// ProjectInfo summarizes one stored project.
type ProjectInfo struct {
	ID    string
	Pages int
}

// Projects lists stored projects with their uploaded page counts.
func (s *Store) Projects(ctx context.Context) ([]ProjectInfo, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	infos := make([]ProjectInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		projectID, ok := decodeProjectDir(entry.Name())
		if !ok {
			continue
		}
		pages, err := s.readPages(ctx, projectID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ProjectInfo{ID: projectID, Pages: len(pages)})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Root returns the underlying directory used for persistence.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) readPages(ctx context.Context, projectID string) ([]UploadedPage, error) {
	filePath, err := s.pagesFile(projectID, false)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open page log: %w", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 32<<20)
	var pages []UploadedPage
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var page UploadedPage
		if err := json.Unmarshal(line, &page); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan pages: %w", err)
	}
	return pages, nil
}

func (s *Store) projectDir(projectID string, create bool) (string, error) {
	trimmed := strings.TrimSpace(projectID)
	if trimmed == "" {
		return "", fmt.Errorf("project id required")
	}
	encoded := base64.RawURLEncoding.EncodeToString([]byte(trimmed))
	dir := filepath.Join(s.path, "project_"+encoded)
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create project dir: %w", err)
		}
	}
	return dir, nil
}

func (s *Store) pagesFile(projectID string, create bool) (string, error) {
	dir, err := s.projectDir(projectID, create)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pages.jsonl"), nil
}

func (s *Store) artifactPath(projectID, name string, create bool) (string, error) {
	cleaned := filepath.Base(strings.TrimSpace(name))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("artifact name required")
	}
	dir, err := s.projectDir(projectID, create)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cleaned), nil
}

func decodeProjectDir(name string) (string, bool) {
	if !strings.HasPrefix(name, "project_") {
		return "", false
	}
	encoded := strings.TrimPrefix(name, "project_")
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func determineRoot(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "."
	}
	info, err := os.Stat(trimmed)
	if err == nil {
		if info.IsDir() {
			return trimmed
		}
		return filepath.Dir(trimmed)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return filepath.Dir(trimmed)
	}
	// Path does not exist; assume caller intended a file if an extension is present.
	if ext := filepath.Ext(trimmed); ext != "" {
		dir := filepath.Dir(trimmed)
		if dir == "" || dir == "." {
			return "."
		}
		return dir
	}
	return trimmed
}
