package query

import (
	"context"
	"fmt"
	"strings"

	"docquery/internal/logging"
)

// CompletionSentinel is the literal marker a model emits to signal its answer
// is final. Matching is a plain case-sensitive substring search; the first
// occurrence wins and the answer is everything after it. This wire contract
// predates this implementation and must not change.
const CompletionSentinel = "QUERY_COMPLETE:"

const codeFence = "```python"

// Driver owns the bounded iteration loop: it builds prompts, calls the model
// gateway, extracts and executes generated scripts, and decides when a
// response counts as final. One Driver is safe for concurrent sessions; all
// per-session state lives in Resolve.
type Driver struct {
	runner  *ScriptRunner
	tracker *ProvenanceTracker
	logger  logging.Logger
}

// NewDriver wires a driver from its collaborators.
func NewDriver(runner *ScriptRunner, tracker *ProvenanceTracker) *Driver {
	return &Driver{
		runner:  runner,
		tracker: tracker,
		logger:  logging.NewComponentLogger("driver"),
	}
}

// Request carries everything one resolution needs.
type Request struct {
	Query          string
	SessionID      string
	AvailableFiles []string
	MaxIterations  int
	SystemPrompt   string
}

// Resolve runs the query-resolution loop to completion. It always returns a
// well-formed Resolution: script failures are folded back into the
// conversation, gateway failures and unexpected faults terminate the session
// with a human-readable answer, and running out of budget produces an
// explanatory answer. The caller never sees a raw fault.
//
// The loop is strictly sequential within a session: at most one outstanding
// gateway call and one outstanding script execution at any time. ctx is
// checked between iterations and propagated into script execution, so
// cancelling it kills any live child process.
func (d *Driver) Resolve(ctx context.Context, req Request, gateway Gateway) (res Resolution) {
	accessed := newOrderedSet()
	defer func() {
		if r := recover(); r != nil {
			n := len(res.Iterations) + 1
			d.logger.Error("session %s: iteration fault: %v", req.SessionID, r)
			res.Iterations = append(res.Iterations, IterationRecord{
				Number:        n,
				Error:         fmt.Sprintf("%v", r),
				FilesAccessed: []string{},
			})
			res.Answer = fmt.Sprintf("Error during iteration %d: %v", n, r)
			res.FilesAccessed = accessed.values()
		}
	}()

	if len(req.AvailableFiles) == 0 {
		res.Answer = fmt.Sprintf("No files found in the %s directory. Please add PDF, XML, or TXT files to query.", d.tracker.prefix)
		return res
	}

	history := []Turn{{Role: RoleUser, Content: d.initialMessage(req)}}

	for iteration := 1; iteration <= req.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			res.Answer = fmt.Sprintf("Query cancelled during iteration %d: %v", iteration, err)
			res.FilesAccessed = accessed.values()
			return res
		}

		d.logger.Info("session %s: iteration %d/%d", req.SessionID, iteration, req.MaxIterations)

		response, err := gateway.Generate(ctx, req.SystemPrompt, history)
		if err != nil {
			// Gateway retries belong to the gateway itself; at this layer a
			// failure is terminal for the whole resolution.
			res.Iterations = append(res.Iterations, IterationRecord{
				Number:        iteration,
				Error:         err.Error(),
				FilesAccessed: []string{},
			})
			res.Answer = fmt.Sprintf("Error during iteration %d: %v", iteration, err)
			res.FilesAccessed = accessed.values()
			return res
		}

		rawComplete := strings.Contains(response, CompletionSentinel)
		hasCode := strings.Contains(response, codeFence)

		// A model cannot legitimately claim completion in the same turn it
		// proposes code: it has not seen the results yet. Force continuation.
		isComplete := rawComplete
		if hasCode && isComplete {
			d.logger.Warn("session %s: completion claimed alongside code, continuing", req.SessionID)
			isComplete = false
		}

		record := IterationRecord{
			Number:        iteration,
			ModelResponse: response,
			IsComplete:    isComplete,
			FilesAccessed: []string{},
		}

		if hasCode {
			script := extractCode(response)
			files := d.tracker.Extract(script)
			if len(files) > 0 {
				record.FilesAccessed = files
			}
			accessed.add(files...)

			history = append(history, Turn{Role: RoleAssistant, Content: response})

			result := d.runner.Run(ctx, script, ScriptName(req.SessionID, iteration))
			record.ScriptExecuted = true
			record.Execution = &result

			switch {
			case result.Success && result.Stdout != "":
				if isComplete {
					// Legacy path from when the protocol allowed completing and
					// executing in one turn. Unreachable while the forced
					// continuation above holds, but its removal would change
					// observable iteration counts, so it stays.
					res.Iterations = append(res.Iterations, record)
					res.Answer = answerAfter(response)
					res.FilesAccessed = accessed.values()
					return res
				}
				history = append(history, Turn{Role: RoleUser, Content: interpretationRequest(result.Stdout, req.Query)})
			default:
				history = append(history, Turn{Role: RoleUser, Content: scriptFailureMessage(result)})
			}
		} else {
			if rawComplete {
				res.Iterations = append(res.Iterations, record)
				res.Answer = answerAfter(response)
				res.FilesAccessed = accessed.values()
				return res
			}
			history = append(history,
				Turn{Role: RoleAssistant, Content: response},
				Turn{Role: RoleUser, Content: "Please provide a Python script to analyze the files and answer the query. Do NOT use 'QUERY_COMPLETE:' until you have executed a script and seen the results."},
			)
		}

		res.Iterations = append(res.Iterations, record)
	}

	res.Answer = fmt.Sprintf("Unable to complete the query after %d iterations. Please try a more specific query or check your files.", req.MaxIterations)
	res.FilesAccessed = accessed.values()
	return res
}

func (d *Driver) initialMessage(req Request) string {
	return fmt.Sprintf(`User Query: %s

Available files to query: %s

Please write a Python script to help answer this query. The script should:
1. Read and analyze the relevant files from the files_to_query directory
2. Extract the information needed to answer the user's question
3. Print the results clearly

When you have a complete answer, start your response with 'QUERY_COMPLETE:' followed by the final answer.
You have up to %d iterations if needed, but you can stop early when satisfied.`,
		req.Query, strings.Join(req.AvailableFiles, ", "), req.MaxIterations)
}

func interpretationRequest(stdout, userQuery string) string {
	return fmt.Sprintf(`The script executed successfully with the following output:
%s

Based on this EXACT output from the script, please provide your final analysis of the user's query: "%s"

IMPORTANT: Trust the script results completely. If the script says "14", report "14". Do not override with mental calculations.

If you now have a complete answer based on these script results, start your response with 'QUERY_COMPLETE:' followed by your analysis.`,
		stdout, userQuery)
}

func scriptFailureMessage(result ExecutionResult) string {
	return fmt.Sprintf(`The script encountered an error:
Error: %s
Output: %s

Please write an improved script to solve the issue. Do NOT use 'QUERY_COMPLETE:' until you have seen successful script results.`,
		result.Stderr, result.Stdout)
}

// extractCode returns the first python-fenced block, trimmed. Text after the
// closing fence is ignored. Callers check for the fence before calling.
func extractCode(response string) string {
	start := strings.Index(response, codeFence)
	if start < 0 {
		return ""
	}
	start += len(codeFence)
	rest := response[start:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// answerAfter returns the text following the first sentinel occurrence,
// trimmed. Returns the empty string when no sentinel is present.
func answerAfter(response string) string {
	idx := strings.Index(response, CompletionSentinel)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(response[idx+len(CompletionSentinel):])
}

// orderedSet is an insertion-ordered string set used to union per-iteration
// file accesses into the session-level list.
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) values() []string {
	return s.order
}
