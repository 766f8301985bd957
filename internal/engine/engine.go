// Package engine wires the query-resolution loop to its collaborators
// (documents, prompts, gateway, trace store) behind one application service
// shared by the CLI and the HTTP server.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"docquery/internal/config"
	"docquery/internal/docs"
	"docquery/internal/logging"
	"docquery/internal/prompts"
	"docquery/internal/query"
	"docquery/internal/store"
)

// Engine is the application service for resolving document queries.
type Engine struct {
	cfg      *config.Config
	gateway  query.Gateway
	driver   *query.Driver
	docs     *docs.Store
	sessions *store.Store
	logger   logging.Logger

	sessionCounter atomic.Int64
}

// New builds an engine from configuration and a gateway.
func New(cfg *config.Config, gateway query.Gateway) (*Engine, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	sessions, err := store.New(cfg.SessionsPath())
	if err != nil {
		return nil, err
	}

	runner := query.NewScriptRunner(cfg.BaseDir, cfg.ScriptsPath(), cfg.PythonBin, cfg.ScriptTimeout)
	tracker := query.NewProvenanceTracker(filepath.Base(cfg.FilesDir))

	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		driver:   query.NewDriver(runner, tracker),
		docs:     docs.NewStore(cfg.BaseDir, cfg.FilesDir),
		sessions: sessions,
		logger:   logging.NewComponentLogger("engine"),
	}, nil
}

// Docs exposes the document store for the files API.
func (e *Engine) Docs() *docs.Store { return e.docs }

// Sessions exposes the trace store for the sessions API.
func (e *Engine) Sessions() *store.Store { return e.sessions }

// MaxIterations returns the configured per-session iteration budget.
func (e *Engine) MaxIterations() int { return e.cfg.MaxIterations }

// NewSessionID produces ids like 20250829_153012_001: sortable, unique within
// a process, and safe to embed in script filenames.
func (e *Engine) NewSessionID() string {
	n := e.sessionCounter.Add(1)
	return fmt.Sprintf("%s_%03d", time.Now().Format("20060102_150405"), n%1000)
}

// SystemPrompt returns the active system prompt.
func (e *Engine) SystemPrompt() (string, error) {
	return prompts.Load(e.cfg.SystemPromptPath())
}

// SetSystemPrompt replaces the system prompt used by subsequent queries.
func (e *Engine) SetSystemPrompt(prompt string) error {
	return prompts.Save(e.cfg.SystemPromptPath(), prompt)
}

// ResolveQuery runs one full query resolution: enumerate documents, drive the
// loop, assemble the trace, persist it. The returned trace always reflects
// exactly what the driver accumulated, whatever way the loop terminated.
func (e *Engine) ResolveQuery(ctx context.Context, sessionID, userQuery string) (*query.SessionTrace, error) {
	available, err := e.docs.Available()
	if err != nil {
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}
	systemPrompt, err := e.SystemPrompt()
	if err != nil {
		return nil, err
	}

	res := e.driver.Resolve(ctx, query.Request{
		Query:          userQuery,
		SessionID:      sessionID,
		AvailableFiles: available,
		MaxIterations:  e.cfg.MaxIterations,
		SystemPrompt:   systemPrompt,
	}, e.gateway)

	trace := query.BuildTrace(query.TraceInput{
		SessionID:      sessionID,
		Timestamp:      time.Now(),
		UserQuery:      userQuery,
		FinalAnswer:    res.Answer,
		Iterations:     res.Iterations,
		FilesAccessed:  res.FilesAccessed,
		AvailableFiles: available,
		SystemPrompt:   systemPrompt,
		MaxIterations:  e.cfg.MaxIterations,
	})

	path, err := e.sessions.Save(trace)
	if err != nil {
		// The resolution itself succeeded; surface the trace even when the
		// record could not be written.
		e.logger.Error("session %s: persist trace failed: %v", sessionID, err)
		return &trace, err
	}
	e.logger.Info("session %s: trace saved to %s (%d iterations)", sessionID, path, trace.TotalIterations)
	return &trace, nil
}
