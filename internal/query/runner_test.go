package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newShellRunner builds a runner that executes scripts with /bin/sh, so the
// tests do not depend on a Python installation.
func newShellRunner(t *testing.T, timeout time.Duration) *ScriptRunner {
	t.Helper()
	base := t.TempDir()
	return NewScriptRunner(base, filepath.Join(base, "temp_scripts"), "/bin/sh", timeout)
}

func TestRunnerSuccess(t *testing.T) {
	r := newShellRunner(t, 10*time.Second)

	result := r.Run(context.Background(), `printf '12'`, "query_s1_iteration_1")

	assert.True(t, result.Success)
	assert.Equal(t, "12", result.Stdout)
	assert.Empty(t, result.Stderr)
	assert.Equal(t, `printf '12'`, result.ScriptContent)

	// The script file is retained for inspection.
	_, err := os.Stat(result.ScriptPath)
	require.NoError(t, err)
}

func TestRunnerSuccessWithStderrNoise(t *testing.T) {
	r := newShellRunner(t, 10*time.Second)

	result := r.Run(context.Background(), "echo warning >&2; printf 'ok'", "query_s1_iteration_2")

	// Exit status alone decides success; tool warnings on stderr are fine.
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Stdout)
	assert.Contains(t, result.Stderr, "warning")
}

func TestRunnerNonZeroExit(t *testing.T) {
	r := newShellRunner(t, 10*time.Second)

	result := r.Run(context.Background(), "echo broken >&2; exit 3", "query_s1_iteration_3")

	assert.False(t, result.Success)
	assert.Contains(t, result.Stderr, "broken")
}

func TestRunnerTimeoutKillsProcess(t *testing.T) {
	r := newShellRunner(t, 1*time.Second)

	start := time.Now()
	result := r.Run(context.Background(), "sleep 30", "query_s1_iteration_4")
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Empty(t, result.Stdout)
	assert.Contains(t, result.Stderr, "timed out")
	// The child must have been killed, not waited out.
	assert.Less(t, elapsed, 15*time.Second)
}

func TestRunnerSpawnFailure(t *testing.T) {
	base := t.TempDir()
	r := NewScriptRunner(base, filepath.Join(base, "scripts"), filepath.Join(base, "missing-interpreter"), time.Second)

	result := r.Run(context.Background(), "print('hi')", "query_s1_iteration_5")

	assert.False(t, result.Success)
	assert.Contains(t, result.Stderr, "Error executing script")
}

func TestRunnerCancellation(t *testing.T) {
	r := newShellRunner(t, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := r.Run(ctx, "sleep 30", "query_s1_iteration_6")

	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestScriptName(t *testing.T) {
	assert.Equal(t, "query_20250101_120000_001_iteration_3", ScriptName("20250101_120000_001", 3))
}
