// Package strategy schedules one play's tasks across the worker pool and
// drains the result queue. Strategies are looked up by name; linear is the
// default and runs every task in lock-step across all hosts.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/stats"
	"github.com/aatumaykin/playq/internal/task"
	"github.com/aatumaykin/playq/internal/workers"
)

// ErrDeadWorker reports that a worker process exited without delivering its
// task result. The pending result will never arrive, so the play aborts.
var ErrDeadWorker = errors.New("worker found in a dead state")

// Run result bits. A play result combines them; the coordinator masks the
// internal bits before anything reaches an OS exit code.
const (
	ResultOK               = 0
	ResultError            = 1
	ResultFailedHosts      = 2
	ResultUnreachableHosts = 4
	ResultFailedBreakPlay  = 8
	ResultUnknownError     = 255
)

// Launcher starts one worker process for a (slot, host, task) assignment.
type Launcher interface {
	SpawnInto(slot int, host string, t *task.Task) (int, error)
}

// Receiver yields the next message produced by any worker.
type Receiver interface {
	Receive(ctx context.Context) (*queue.Message, error)
}

// EventSender fans a callback event out to the loaded plugins.
type EventSender interface {
	Send(event string, ev callback.Event) error
}

// Prompter answers interactive input requests raised by running tasks.
type Prompter interface {
	Prompt(req *queue.PromptRequest) (string, error)
}

// SlotWatcher reports point-in-time liveness of the pool's slots.
type SlotWatcher interface {
	Snapshot() []workers.WorkerInfo
}

// PlayContext bundles the coordinator services a strategy needs for one
// play. MarkUnreachable reports hosts the coordinator must carry forward
// as unreachable beyond this play.
type PlayContext struct {
	Play            *play.Play
	PoolSize        int
	Launcher        Launcher
	Queue           Receiver
	Callbacks       EventSender
	Stats           *stats.AggregateStats
	Prompter        Prompter
	Workers         SlotWatcher
	Logger          *logger.Logger
	MarkUnreachable func(host string)
}

// Strategy runs one play to completion. Run returns a combination of the
// Result* bits; Cleanup always runs afterwards, even when Run errored.
type Strategy interface {
	Run(ctx context.Context, it *play.Iterator, pc *PlayContext) (int, error)
	Cleanup() error
}

// Factory builds a strategy instance for one play.
type Factory func(log *logger.Logger) Strategy

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a strategy factory under a name. Later registrations
// under the same name win, which lets tests shadow builtins.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Get resolves a strategy by name.
func Get(name string, log *logger.Logger) (Strategy, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, Names())
	}
	return f(log), nil
}

// Names lists the registered strategies, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
