// Package docs manages the read-only document directory the query loop works
// against: enumeration by extension allow-list plus the upload/delete surface
// the HTTP API exposes.
package docs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docquery/internal/logging"
)

// Document formats the engine accepts.
var allowedExtensions = map[string]struct{}{
	".pdf": {},
	".xml": {},
	".txt": {},
}

// IsAllowed reports whether the filename carries a supported document extension.
func IsAllowed(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// HasDocExtension reports whether text mentions any supported extension.
// Used by the provenance heuristics.
func HasDocExtension(text string) bool {
	lower := strings.ToLower(text)
	for ext := range allowedExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// FileInfo describes one stored document for the files API.
type FileInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	Format       string `json:"format"`
	Size         string `json:"size"`
	Date         string `json:"date"`
	Path         string `json:"path"`
}

// Store wraps the document directory. The query loop only ever reads from it;
// writes happen through the upload surface.
type Store struct {
	baseDir  string
	filesDir string
	logger   logging.Logger
}

// NewStore creates a document store rooted at baseDir with documents under
// filesDir (relative paths are resolved against baseDir).
func NewStore(baseDir, filesDir string) *Store {
	if !filepath.IsAbs(filesDir) {
		filesDir = filepath.Join(baseDir, filesDir)
	}
	return &Store{
		baseDir:  baseDir,
		filesDir: filesDir,
		logger:   logging.NewComponentLogger("docs"),
	}
}

// Available returns the relative paths of every queryable document, the way
// generated scripts are expected to reference them (e.g.
// "files_to_query/report.pdf"). Sorted for stable prompts.
func (s *Store) Available() ([]string, error) {
	entries, err := os.ReadDir(s.filesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	rel, err := filepath.Rel(s.baseDir, s.filesDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Documents live outside the base dir; fall back to the plain dir name.
		rel = filepath.Base(s.filesDir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsAllowed(entry.Name()) {
			continue
		}
		files = append(files, filepath.ToSlash(filepath.Join(rel, entry.Name())))
	}
	sort.Strings(files)
	return files, nil
}

// List returns document metadata for the files API, newest first.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.filesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read documents directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !IsAllowed(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("stat %s failed: %v", entry.Name(), err)
			continue
		}
		files = append(files, FileInfo{
			ID:           entry.Name(),
			Name:         entry.Name(),
			OriginalName: entry.Name(),
			Format:       strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), "."),
			Size:         fmt.Sprintf("%.1f KB", float64(info.Size())/1024),
			Date:         info.ModTime().Format(time.RFC3339),
			Path:         filepath.Join(s.filesDir, entry.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Date > files[j].Date })
	return files, nil
}

// Save writes an uploaded document. Rejects unsupported extensions and any
// name that would escape the documents directory.
func (s *Store) Save(name string, r io.Reader) (int64, error) {
	if !IsAllowed(name) {
		return 0, fmt.Errorf("file type %s not allowed", filepath.Ext(name))
	}
	path, err := s.Path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(s.filesDir, 0o755); err != nil {
		return 0, fmt.Errorf("create documents directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create document: %w", err)
	}
	defer func() { _ = f.Close() }()
	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("write document: %w", err)
	}
	return n, nil
}

// Delete removes a stored document.
func (s *Store) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", name)
		}
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Path resolves a document name to its absolute path, refusing traversal
// outside the documents directory.
func (s *Store) Path(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) {
		return "", fmt.Errorf("invalid file name: %s", name)
	}
	return filepath.Join(s.filesDir, cleaned), nil
}
