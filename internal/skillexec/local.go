package skillexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/boternity/boternity/internal/skills"
	"github.com/boternity/boternity/pkg/models"
)

// LocalExecutionTimeout bounds a Local skill's wall-clock run time.
const LocalExecutionTimeout = 60 * time.Second

// LocalExecutor runs Local tool skills via host process spawning. Prompt
// skills are short-circuited before any process is spawned.
type LocalExecutor struct{}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Execute runs skill with input on its stdin and returns its stdout.
// Non-Local skills and missing ExecCommand grants are rejected before any
// process is spawned.
func (e *LocalExecutor) Execute(ctx context.Context, skill *models.InstalledSkill, input string, enforcer *skills.CapabilityEnforcer) (*Result, error) {
	if !skill.Source.IsLocal() {
		return nil, ErrNotLocalSkill
	}

	if err := enforcer.Check(skills.CapabilityExecCommand); err != nil {
		return nil, fmt.Errorf("skillexec: local executor requires exec_command: %w", err)
	}

	if skill.SkillType == string(skills.SkillTypePrompt) {
		start := time.Now()
		return &Result{Output: skill.Body, Duration: time.Since(start)}, nil
	}

	scriptPath, err := findScript(skill.InstallPath)
	if err != nil {
		return nil, err
	}

	interpreter := "bash"
	if strings.EqualFold(filepath.Ext(scriptPath), ".py") {
		interpreter = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, LocalExecutionTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreter, scriptPath)
	cmd.Dir = skill.InstallPath
	cmd.Stdin = strings.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, ErrExecutionTimeout
	}
	if runErr != nil {
		return nil, fmt.Errorf("skillexec: skill %q exited with error: %v: %s", skill.Name, runErr, strings.TrimSpace(stderr.String()))
	}

	return &Result{Output: stdout.String(), Duration: duration}, nil
}

// findScript looks for scripts/run.sh first, then scripts/run.py, inside
// installPath.
func findScript(installPath string) (string, error) {
	scriptsDir := filepath.Join(installPath, "scripts")

	runSh := filepath.Join(scriptsDir, "run.sh")
	if _, err := os.Stat(runSh); err == nil {
		return runSh, nil
	}

	runPy := filepath.Join(scriptsDir, "run.py")
	if _, err := os.Stat(runPy); err == nil {
		return runPy, nil
	}

	return "", fmt.Errorf("%w: %s", ErrScriptNotFound, scriptsDir)
}
