package llm

import (
	"context"
	"fmt"
	"sync"

	"docquery/internal/query"
)

// ScriptedGateway returns canned responses in order and records every call.
// It backs the driver and server tests; no network involved.
type ScriptedGateway struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]query.Turn
	prompts   []string
}

// NewScriptedGateway builds a gateway that replies with responses in order.
func NewScriptedGateway(responses ...string) *ScriptedGateway {
	return &ScriptedGateway{responses: responses}
}

// NewFailingGateway builds a gateway whose every call fails with err.
func NewFailingGateway(err error) *ScriptedGateway {
	return &ScriptedGateway{err: err}
}

func (g *ScriptedGateway) Generate(_ context.Context, systemPrompt string, history []query.Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, systemPrompt)
	g.calls = append(g.calls, append([]query.Turn(nil), history...))

	if g.err != nil {
		return "", g.err
	}
	if len(g.calls) > len(g.responses) {
		return "", fmt.Errorf("scripted gateway exhausted after %d responses", len(g.responses))
	}
	return g.responses[len(g.calls)-1], nil
}

// Calls returns a copy of the recorded conversation histories.
func (g *ScriptedGateway) Calls() [][]query.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]query.Turn(nil), g.calls...)
}

// Prompts returns the system prompts seen so far.
func (g *ScriptedGateway) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
