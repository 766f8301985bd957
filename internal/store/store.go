// Package store persists session traces as one JSON file per resolved query.
// It is the single trace emission the engine performs; spreadsheet export and
// other reporting read these files downstream.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docquery/internal/logging"
	"docquery/internal/query"
)

// Summary is the lightweight session listing the API returns.
type Summary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Date          string   `json:"date"`
	MessageCount  int      `json:"messageCount"`
	Size          string   `json:"size"`
	FilesAccessed []string `json:"filesAccessed"`
}

// Store writes and reads session trace files under a base directory.
type Store struct {
	baseDir string
	logger  logging.Logger
}

// New creates the trace store, ensuring the directory exists.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("session-store"),
	}, nil
}

// Save writes the trace exclusively; a session file is written once and never
// overwritten.
func (s *Store) Save(trace query.SessionTrace) (string, error) {
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", trace.SessionID, err)
	}

	path := s.path(trace.SessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create session file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("write session file: %w", err)
	}
	return path, nil
}

// Get loads one full session trace.
func (s *Store) Get(sessionID string) (*query.SessionTrace, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	var trace query.SessionTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &trace, nil
}

// Delete removes a session trace. Deleting a missing session is not an error.
func (s *Store) Delete(sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Exists reports whether a trace file is present for the session.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// List returns summaries of every stored session, newest first. Unreadable
// files are skipped rather than failing the whole listing.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, name))
		if err != nil {
			s.logger.Warn("read session file %s failed: %v", name, err)
			continue
		}
		var trace query.SessionTrace
		if err := json.Unmarshal(data, &trace); err != nil {
			s.logger.Warn("decode session file %s failed: %v", name, err)
			continue
		}
		id := trace.SessionID
		if id == "" {
			id = strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".json")
		}
		summaries = append(summaries, Summary{
			ID:            id,
			Name:          name,
			Date:          trace.Timestamp.Format("2006-01-02T15:04:05"),
			MessageCount:  trace.TotalIterations,
			Size:          fmt.Sprintf("%.1f KB", float64(len(data))/1024),
			FilesAccessed: trace.FilesAccessed,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date > summaries[j].Date })
	return summaries, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("session_%s.json", sessionID))
}
