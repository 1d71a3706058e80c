package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/retry"
	"github.com/aatumaykin/playq/internal/task"
)

// DefaultTimeout bounds task execution when neither the task nor the
// assignment sets one.
const DefaultTimeout = 300 * time.Second

// Runner executes one assignment and reports back through the result queue.
type Runner struct {
	log      *logger.Logger
	retryCfg retry.Config
}

// NewRunner creates a runner. The retry configuration governs dialing the
// result queue socket, which may not exist yet when the worker starts.
func NewRunner(log *logger.Logger, retryCfg retry.Config) *Runner {
	return &Runner{log: log, retryCfg: retryCfg}
}

// Run connects to the result queue, executes the assignment, and sends
// exactly one task result. Execution problems are reported as a failed
// result, not as an error; an error return means the result could not be
// delivered at all.
func (r *Runner) Run(ctx context.Context, a *Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}

	client, err := queue.Dial(ctx, a.SocketPath, a.WorkerID, r.retryCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to result queue: %w", err)
	}
	defer client.Close()

	if err := client.SendCallback(callback.EventRunnerOnStart,
		task.NewRawResult(a.Host, a.Task, nil)); err != nil {
		return err
	}

	result := r.execute(ctx, a)
	return client.SendTaskResult(result)
}

// execute runs the task action. A panic inside execution is converted into
// a failed result carrying the stack, so the coordinator always receives
// exactly one result per assignment.
func (r *Runner) execute(ctx context.Context, a *Assignment) (result *task.RawTaskResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = task.NewRawResult(a.Host, a.Task, nil)
			result.Exception = &task.ErrorDetail{
				Message:   fmt.Sprintf("worker panic: %v", rec),
				Traceback: string(debug.Stack()),
			}
		}
	}()

	switch a.Task.Action {
	case "command", "shell":
		return r.runCommand(ctx, a)
	default:
		return task.NewRawResult(a.Host, a.Task, map[string]any{
			"failed": true,
			"msg":    fmt.Sprintf("unknown action %q", a.Task.Action),
		})
	}
}

func (r *Runner) runCommand(ctx context.Context, a *Assignment) *task.RawTaskResult {
	command, _ := a.Task.Args["cmd"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return task.NewRawResult(a.Host, a.Task, map[string]any{
			"failed": true,
			"msg":    "no command given",
		})
	}

	validator, err := NewCommandValidator(a.DenyPatterns)
	if err != nil {
		return task.NewRawResult(a.Host, a.Task, map[string]any{
			"failed": true,
			"msg":    err.Error(),
		})
	}
	if err := validator.Validate(command); err != nil {
		r.log.Warn("refusing to execute command",
			logger.Field{Key: "host", Value: a.Host},
			logger.Field{Key: "error", Value: err})
		return task.NewRawResult(a.Host, a.Task, map[string]any{
			"failed": true,
			"msg":    err.Error(),
		})
	}

	timeout := DefaultTimeout
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}
	if a.Task.TimeoutSeconds > 0 {
		timeout = time.Duration(a.Task.TimeoutSeconds) * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// sh -c for shell expansion, matching what operators expect from a
	// command action.
	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	// Bound the wait for descendants holding the output pipes open.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	data := map[string]any{
		"cmd":     command,
		"stdout":  strings.TrimRight(stdout.String(), "\n"),
		"stderr":  strings.TrimRight(stderr.String(), "\n"),
		"delta":   elapsed.String(),
		"rc":      exitCode(runErr),
		"changed": runErr == nil,
	}

	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		data["failed"] = true
		data["msg"] = fmt.Sprintf("command timed out after %s", timeout)
	case runErr != nil:
		data["failed"] = true
		data["msg"] = fmt.Sprintf("non-zero return code %d", exitCode(runErr))
	}

	return task.NewRawResult(a.Host, a.Task, data)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
