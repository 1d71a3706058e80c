// Package callback dispatches run lifecycle and result events to an ordered
// set of plugins. The stdout-category plugin is singular and always first in
// dispatch order; every other plugin follows configuration order. Each plugin
// declares its capabilities once at registration, so no runtime probing is
// needed at dispatch time.
package callback

import (
	"github.com/aatumaykin/playq/internal/stats"
	"github.com/aatumaykin/playq/internal/task"
)

// Event names a plugin can subscribe to.
const (
	EventPlaybookOnPlayStart = "playbook_on_play_start"
	EventPlaybookOnTaskStart = "playbook_on_task_start"
	EventPlaybookOnStats     = "playbook_on_stats"
	EventRunnerOnStart       = "runner_on_start"
	EventRunnerOnOK          = "runner_on_ok"
	EventRunnerOnFailed      = "runner_on_failed"
	EventRunnerOnUnreachable = "runner_on_unreachable"
	EventRunnerOnSkipped     = "runner_on_skipped"

	// EventOnAny is the catch-all delivered after the event-specific method
	// to plugins that opt into it.
	EventOnAny = "on_any"
)

// Category classifies a plugin's output ownership.
type Category string

const (
	CategoryStdout       Category = "stdout"
	CategoryAggregate    Category = "aggregate"
	CategoryNotification Category = "notification"
)

// Capabilities is the static descriptor a plugin registers with. It replaces
// per-dispatch attribute probing: the registry resolves it exactly once at
// load time.
type Capabilities struct {
	Name               string
	Category           Category
	NeedsEnabled       bool
	WantsImplicitTasks bool
	Events             []string // implemented event names
	OnAll              bool     // also receive the catch-all for every event
}

// Implements reports whether the descriptor lists the given event.
func (c Capabilities) Implements(event string) bool {
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Event carries the arguments of one dispatch. The Result field is replaced
// with a fresh copy for every plugin invocation, so a plugin mutating its
// copy cannot affect another plugin or the coordinator's bookkeeping.
type Event struct {
	Play   string
	Host   string
	Task   *task.Task
	Result *task.CallbackTaskResult
	Stats  *stats.AggregateStats
	Args   []any
}

// implicit reports whether the event's task argument is an implicit task.
func (e Event) implicit() bool {
	if e.Task != nil && e.Task.Implicit {
		return true
	}
	if e.Result != nil && e.Result.Implicit {
		return true
	}
	return false
}

// Plugin is one callback observer. HandleEvent is only invoked for event
// names the plugin's capabilities declare (plus the catch-all when OnAll is
// set). Returning an error marks the dispatch as failed for this plugin only;
// a panic is treated as a programming defect and propagates.
type Plugin interface {
	Capabilities() Capabilities
	Disabled() bool
	HandleEvent(event string, ev Event) error
}
