// Package worker implements the process that executes one (host, task)
// assignment. The coordinator hands the assignment over stdin; results,
// callback requests, and diagnostics flow back through the result queue
// socket.
package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aatumaykin/playq/internal/retry"
	"github.com/aatumaykin/playq/internal/task"
)

// Assignment is the full unit of work handed to one worker process.
type Assignment struct {
	WorkerID       int        `json:"worker_id"`
	Host           string     `json:"host"`
	Task           *task.Task `json:"task"`
	SocketPath     string     `json:"socket_path"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
	DialAttempts   int        `json:"dial_attempts,omitempty"`
	DialBackoffMS  int        `json:"dial_backoff_ms,omitempty"`
	DenyPatterns   []string   `json:"deny_patterns,omitempty"`
}

// RetryConfig derives the queue dial retry settings. Zero fields fall back
// to the retry package defaults.
func (a *Assignment) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:    a.DialAttempts,
		InitialBackoff: time.Duration(a.DialBackoffMS) * time.Millisecond,
	}
}

// ReadAssignment decodes an assignment from the coordinator.
func ReadAssignment(r io.Reader) (*Assignment, error) {
	var a Assignment
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode assignment: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Encode writes the assignment JSON for a worker's stdin.
func (a *Assignment) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(a)
}

// Validate reports structural problems with the assignment.
func (a *Assignment) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("assignment has no host")
	}
	if a.Task == nil {
		return fmt.Errorf("assignment has no task")
	}
	if a.Task.Action == "" {
		return fmt.Errorf("assignment task has no action")
	}
	if a.SocketPath == "" {
		return fmt.Errorf("assignment has no result queue socket path")
	}
	return nil
}
