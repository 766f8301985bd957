// Package query implements the agentic query-resolution loop: a bounded
// conversation between the user's question and a model that iteratively
// writes analysis scripts against local documents until it produces a final
// answer or exhausts its iteration budget.
package query

import (
	"context"
	"time"
)

// Turn roles. The loop only ever appends user and assistant turns; the system
// prompt travels out-of-band through the gateway.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Gateway produces the next assistant turn for a conversation. Implementations
// own authentication, transport retries and request timeouts; the loop treats
// a returned error as fatal for the whole resolution and never retries here.
type Gateway interface {
	Generate(ctx context.Context, systemPrompt string, history []Turn) (string, error)
}

// ExecutionResult captures one script execution. Immutable after creation.
//
// JSON field names match the session trace schema consumed downstream:
// stdout is serialized as "output" and stderr as "error".
type ExecutionResult struct {
	Success       bool   `json:"success"`
	Stdout        string `json:"output"`
	Stderr        string `json:"error"`
	ScriptPath    string `json:"script_path"`
	ScriptContent string `json:"script_content"`
}

// IterationRecord is the trace of one loop iteration. Append-only; never
// mutated after the iteration ends.
//
// The "claude_response" key is a legacy name kept so existing spreadsheet and
// reporting consumers of the session JSON keep working; error iterations omit
// it the way the serialized traces always have.
type IterationRecord struct {
	Number         int              `json:"iteration_number"`
	ModelResponse  string           `json:"claude_response,omitempty"`
	Error          string           `json:"error,omitempty"`
	ScriptExecuted bool             `json:"script_executed"`
	Execution      *ExecutionResult `json:"execution_result"`
	IsComplete     bool             `json:"is_complete"`
	FilesAccessed  []string         `json:"files_accessed_this_iteration"`
}

// SessionTrace is the complete persisted record of one query resolution.
type SessionTrace struct {
	SessionID            string            `json:"session_id"`
	Timestamp            time.Time         `json:"timestamp"`
	UserQuery            string            `json:"user_query"`
	FinalAnswer          string            `json:"final_answer"`
	TotalIterations      int               `json:"total_iterations"`
	MaxIterationsAllowed int               `json:"max_iterations_allowed"`
	FilesAccessed        []string          `json:"files_accessed"`
	AvailableFiles       []string          `json:"available_files"`
	SystemPrompt         string            `json:"system_prompt"`
	Iterations           []IterationRecord `json:"iterations"`
}

// Resolution is what the driver hands back for every query, regardless of
// whether the loop finished cleanly, errored out, or ran out of budget.
type Resolution struct {
	Answer        string
	Iterations    []IterationRecord
	FilesAccessed []string
}
