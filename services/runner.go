package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"manuscript-converter/logging"
	"manuscript-converter/models"
)

var (
	ErrToolFailed        = errors.New("external tool failed")
	ErrToolTimeout       = errors.New("external tool timed out")
	ErrNoOutput          = errors.New("conversion produced no output")
	ErrUnsupportedFormat = errors.New("unsupported source format")
)

// Command is one external process invocation.
// Dir is the subprocess working directory; the service never changes its own.
type Command struct {
	Stage models.Stage
	Name  string
	Args  []string
	Dir   string
	Env   []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ToolRunner runs external tools. Stages depend on it instead of os/exec so
// they can be tested with a fake.
type ToolRunner interface {
	Run(ctx context.Context, cmd Command) (stdout string, err error)
}

// ExecRunner implements ToolRunner with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s after %s", ErrToolTimeout, c.Name, r.Timeout)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return stdout.String(), fmt.Errorf("%w: %s: %s: %w", ErrToolFailed, c, strings.TrimSpace(stderr.String()), err)
}

// Executor runs commands and applies the stage policy to their failures.
type Executor struct {
	Runner ToolRunner
	Policy models.StagePolicy
	Log    logging.Logger
}

func NewExecutor(runner ToolRunner, policy models.StagePolicy, log logging.Logger) *Executor {
	if policy == nil {
		policy = models.DefaultStagePolicy()
	}
	return &Executor{Runner: runner, Policy: policy, Log: log}
}

func (e *Executor) Run(ctx context.Context, c Command) error {
	_, err := e.Runner.Run(ctx, c)
	return e.Outcome(ctx, c.Stage, c.Name, err)
}

// Outcome classifies err for stage. Failures of best-effort stages are
// logged and dropped; timeouts and cancellation are always fatal.
func (e *Executor) Outcome(ctx context.Context, stage models.Stage, tool string, err error) error {
	if err == nil {
		return nil
	}
	if e.Policy.Mode(stage) == models.BestEffort && !errors.Is(err, ErrToolTimeout) && ctx.Err() == nil {
		e.Log.Warn(ctx, "best-effort stage failed", "stage", string(stage), "tool", tool, "error", err)
		return nil
	}
	return fmt.Errorf("stage %s: %w", stage, err)
}
