// Package workers manages the bounded pool of OS worker processes. Each slot
// holds at most one process executing a single (host, task) unit of work;
// slots are replaced as new work is dispatched and are never removed for the
// duration of a play.
package workers

import (
	"os/exec"
	"time"

	"github.com/aatumaykin/playq/internal/task"
)

// ExecFactory builds the command for one (host, task) assignment. The
// coordinator installs a factory that execs the worker binary; tests inject
// their own.
type ExecFactory func(slot int, host string, t *task.Task) *exec.Cmd

// ShutdownConfig bounds the voluntary-exit poll performed before stragglers
// are force-killed.
type ShutdownConfig struct {
	PollCount int           // number of liveness polls (default: 10)
	PollDelay time.Duration // fixed delay between polls (default: 100ms)
}

const (
	DefaultShutdownPollCount = 10
	DefaultShutdownPollDelay = 100 * time.Millisecond
)

// WorkerInfo is a point-in-time copy of one slot, safe to hand out without
// exposing the live process handle.
type WorkerInfo struct {
	Slot     int
	PID      int
	Host     string
	TaskName string
	Started  bool
	Alive    bool
	ExitCode int // -1 until the process has exited
}
