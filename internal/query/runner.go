package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"docquery/internal/logging"
)

// DefaultScriptTimeout is the hard wall-clock budget for one script execution.
const DefaultScriptTimeout = 60 * time.Second

// ScriptRunner executes generated analysis scripts as isolated child
// processes. Script files are written once, uniquely named per session and
// iteration, and retained afterwards for inspection.
type ScriptRunner struct {
	baseDir    string // working directory for the child, so document-relative paths resolve
	scriptsDir string
	pythonBin  string
	timeout    time.Duration
	logger     logging.Logger
}

// NewScriptRunner creates a runner that writes scripts under scriptsDir and
// executes them with baseDir as the working directory.
func NewScriptRunner(baseDir, scriptsDir, pythonBin string, timeout time.Duration) *ScriptRunner {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	if !filepath.IsAbs(scriptsDir) {
		scriptsDir = filepath.Join(baseDir, scriptsDir)
	}
	return &ScriptRunner{
		baseDir:    baseDir,
		scriptsDir: scriptsDir,
		pythonBin:  pythonBin,
		timeout:    timeout,
		logger:     logging.NewComponentLogger("runner"),
	}
}

// Run writes scriptContent to <scriptsDir>/<scriptName>.py and executes it.
// Success is determined solely by the process exit status; stderr may be
// non-empty on success (library warnings). A timed-out process is killed,
// never left running.
func (r *ScriptRunner) Run(ctx context.Context, scriptContent, scriptName string) ExecutionResult {
	scriptPath := filepath.Join(r.scriptsDir, scriptName+".py")
	result := ExecutionResult{
		ScriptPath:    scriptPath,
		ScriptContent: scriptContent,
	}

	if err := os.MkdirAll(r.scriptsDir, 0o755); err != nil {
		result.Stderr = fmt.Sprintf("Error executing script: %v", err)
		return result
	}
	if err := os.WriteFile(scriptPath, []byte(scriptContent), 0o644); err != nil {
		result.Stderr = fmt.Sprintf("Error executing script: %v", err)
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.pythonBin, scriptPath)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.logger.Warn("script %s timed out after %v", scriptName, elapsed)
		result.Stderr = fmt.Sprintf("Script execution timed out (%d seconds)", int(r.timeout.Seconds()))
		return result
	case runCtx.Err() != nil:
		// Caller cancelled; the child has already been killed.
		result.Stderr = fmt.Sprintf("Script execution cancelled: %v", runCtx.Err())
		return result
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Process never started (interpreter missing, permissions, ...).
			result.Stdout = ""
			result.Stderr = fmt.Sprintf("Error executing script: %v", runErr)
			return result
		}
		r.logger.Debug("script %s exited with code %d in %v", scriptName, exitErr.ExitCode(), elapsed)
		return result
	}

	r.logger.Debug("script %s succeeded in %v", scriptName, elapsed)
	result.Success = true
	return result
}

// ScriptName builds the collision-free script file stem for one iteration of
// one session. Concurrent sessions can safely share a scripts directory.
func ScriptName(sessionID string, iteration int) string {
	return fmt.Sprintf("query_%s_iteration_%d", sessionID, iteration)
}
