package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway replays canned responses in order.
type stubGateway struct {
	responses []string
	err       error
	histories [][]Turn
}

func (g *stubGateway) Generate(_ context.Context, _ string, history []Turn) (string, error) {
	g.histories = append(g.histories, append([]Turn(nil), history...))
	if g.err != nil {
		return "", g.err
	}
	if len(g.histories) > len(g.responses) {
		return "", fmt.Errorf("stub gateway exhausted")
	}
	return g.responses[len(g.histories)-1], nil
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	base := t.TempDir()
	runner := NewScriptRunner(base, filepath.Join(base, "temp_scripts"), "/bin/sh", 10*time.Second)
	return NewDriver(runner, NewProvenanceTracker("files_to_query"))
}

func testRequest(max int) Request {
	return Request{
		Query:          "How many pages does report.pdf have?",
		SessionID:      "test_session_001",
		AvailableFiles: []string{"files_to_query/report.pdf"},
		MaxIterations:  max,
		SystemPrompt:   "analyze documents",
	}
}

func TestResolveNoFilesFailsFast(t *testing.T) {
	d := newTestDriver(t)
	req := testRequest(5)
	req.AvailableFiles = nil

	res := d.Resolve(context.Background(), req, &stubGateway{})

	assert.Contains(t, res.Answer, "No files found")
	assert.Empty(t, res.Iterations)
	assert.Empty(t, res.FilesAccessed)
}

func TestResolveTwoTurnScenario(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{responses: []string{
		"Let me count the pages.\n```python\n: 'files_to_query/report.pdf'\nprintf '12'\n```\nRunning now.",
		"QUERY_COMPLETE: 12 pages",
	}}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	assert.Equal(t, "12 pages", res.Answer)
	require.Len(t, res.Iterations, 2)
	assert.Equal(t, []string{"files_to_query/report.pdf"}, res.FilesAccessed)

	first := res.Iterations[0]
	assert.True(t, first.ScriptExecuted)
	require.NotNil(t, first.Execution)
	assert.True(t, first.Execution.Success)
	assert.Equal(t, "12", first.Execution.Stdout)
	assert.False(t, first.IsComplete)

	second := res.Iterations[1]
	assert.False(t, second.ScriptExecuted)
	assert.Nil(t, second.Execution)
	assert.True(t, second.IsComplete)

	// The second call sees the script output folded back as a user turn.
	require.Len(t, gw.histories, 2)
	last := gw.histories[1][len(gw.histories[1])-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "executed successfully")
	assert.Contains(t, last.Content, "12")
}

func TestResolveCodeForcesContinuation(t *testing.T) {
	d := newTestDriver(t)
	// The model claims completion in the same turn it proposes code; the
	// completion must be ignored and the loop must continue.
	gw := &stubGateway{responses: []string{
		"QUERY_COMPLETE: 7 pages\n```python\nprintf '7'\n```",
		"QUERY_COMPLETE: 7 pages",
	}}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	assert.Equal(t, "7 pages", res.Answer)
	require.Len(t, res.Iterations, 2)
	assert.False(t, res.Iterations[0].IsComplete, "code must force continuation")
	assert.True(t, res.Iterations[0].ScriptExecuted)
	assert.True(t, res.Iterations[1].IsComplete)
}

func TestResolveScriptFailureIsRetryable(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{responses: []string{
		"```python\necho nope >&2; exit 1\n```",
		"```python\nprintf 'fixed'\n```",
		"QUERY_COMPLETE: fixed",
	}}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	assert.Equal(t, "fixed", res.Answer)
	require.Len(t, res.Iterations, 3)
	require.NotNil(t, res.Iterations[0].Execution)
	assert.False(t, res.Iterations[0].Execution.Success)

	// The failure is folded back with a corrective instruction.
	require.Len(t, gw.histories, 3)
	second := gw.histories[1][len(gw.histories[1])-1]
	assert.Equal(t, RoleUser, second.Role)
	assert.Contains(t, second.Content, "encountered an error")
	assert.Contains(t, second.Content, "nope")
	assert.Contains(t, second.Content, "Do NOT use 'QUERY_COMPLETE:'")
}

func TestResolveNoCodeNoSentinelIsCorrected(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{responses: []string{
		"I think the answer is probably 12 pages.",
		"QUERY_COMPLETE: confirmed after running a script",
	}}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	// Without a script there is nothing to trust yet; the driver demands one.
	require.Len(t, gw.histories, 2)
	last := gw.histories[1][len(gw.histories[1])-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "Please provide a Python script")

	assert.Equal(t, "confirmed after running a script", res.Answer)
	require.Len(t, res.Iterations, 2)
	assert.False(t, res.Iterations[0].ScriptExecuted)
}

func TestResolveBudgetExhaustion(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{responses: []string{
		"```python\nprintf 'partial'\n```",
	}}

	req := testRequest(1)
	res := d.Resolve(context.Background(), req, gw)

	assert.Contains(t, res.Answer, "Unable to complete the query after 1 iterations")
	assert.Len(t, res.Iterations, 1)
}

func TestResolveGatewayFailureIsTerminal(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{err: errors.New("upstream unavailable")}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	assert.Contains(t, res.Answer, "Error during iteration 1")
	assert.Contains(t, res.Answer, "upstream unavailable")
	require.Len(t, res.Iterations, 1)
	assert.Equal(t, "upstream unavailable", res.Iterations[0].Error)
	assert.False(t, res.Iterations[0].ScriptExecuted)
}

func TestResolveIterationCountNeverExceedsBudget(t *testing.T) {
	d := newTestDriver(t)

	for _, max := range []int{1, 2, 5} {
		responses := make([]string, max)
		for i := range responses {
			responses[i] = "```python\nprintf 'x'\n```"
		}
		res := d.Resolve(context.Background(), testRequest(max), &stubGateway{responses: responses})
		assert.LessOrEqual(t, len(res.Iterations), max)
	}
}

func TestResolveFilesAccessedIsUnionOfIterations(t *testing.T) {
	d := newTestDriver(t)
	gw := &stubGateway{responses: []string{
		"```python\n: 'files_to_query/a.txt'\nprintf 'one'\n```",
		"```python\n: 'files_to_query/b.txt'\n: 'files_to_query/a.txt'\nprintf 'two'\n```",
		"QUERY_COMPLETE: done",
	}}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	union := newOrderedSet()
	for _, it := range res.Iterations {
		union.add(it.FilesAccessed...)
	}
	assert.Equal(t, union.values(), res.FilesAccessed)
	assert.Equal(t, []string{"files_to_query/a.txt", "files_to_query/b.txt"}, res.FilesAccessed)
}

// panickyGateway returns one scripted response, then panics.
type panickyGateway struct {
	first string
	calls int
}

func (g *panickyGateway) Generate(context.Context, string, []Turn) (string, error) {
	g.calls++
	if g.calls == 1 {
		return g.first, nil
	}
	panic("gateway fault")
}

func TestResolveFaultRecordsIteration(t *testing.T) {
	d := newTestDriver(t)
	gw := &panickyGateway{first: "```python\n: 'files_to_query/a.txt'\nprintf 'x'\n```"}

	res := d.Resolve(context.Background(), testRequest(10), gw)

	assert.Contains(t, res.Answer, "Error during iteration 2")
	require.Len(t, res.Iterations, 2)

	fault := res.Iterations[1]
	assert.Equal(t, 2, fault.Number)
	assert.Contains(t, fault.Error, "gateway fault")
	assert.False(t, fault.ScriptExecuted)

	// Files accumulated before the fault survive into the resolution.
	assert.Equal(t, []string{"files_to_query/a.txt"}, res.FilesAccessed)
}

func TestInterpretationRequestEmbedsQueryVerbatim(t *testing.T) {
	msg := interpretationRequest("14", `pages in the "annual" report?`)

	assert.Contains(t, msg, `query: "pages in the "annual" report?"`)
	assert.NotContains(t, msg, `\"`)
}

func TestResolveCancellationBetweenIterations(t *testing.T) {
	d := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Resolve(ctx, testRequest(10), &stubGateway{})

	assert.Contains(t, res.Answer, "cancelled")
	assert.Empty(t, res.Iterations)
}

func TestAnswerAfterSentinel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"QUERY_COMPLETE: 12 pages", "12 pages"},
		{"prelude QUERY_COMPLETE:    spaced answer  ", "spaced answer"},
		{"QUERY_COMPLETE: first QUERY_COMPLETE: second", "first QUERY_COMPLETE: second"},
		{"no sentinel here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, answerAfter(tt.in))
	}
}

func TestExtractCode(t *testing.T) {
	response := "intro\n```python\nprint('hi')\n```\ntrailing text\n```python\nignored\n```"
	assert.Equal(t, "print('hi')", extractCode(response))

	// Unterminated fence: everything after the opener.
	assert.Equal(t, "x = 1", extractCode("```python\nx = 1"))
}
