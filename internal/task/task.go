// Package task defines the unit of work applied to a host and the result
// envelope that flows back from workers to the coordinator. A result has
// three views over the same data: the raw form a worker builds right after
// execution, the wire form that crosses the process boundary, and the
// callback form handed to callback plugins.
package task

import "github.com/google/uuid"

// Task is one unit of work applied to a single host.
type Task struct {
	UUID           string         `json:"uuid" yaml:"-"`
	Name           string         `json:"name" yaml:"name"`
	Action         string         `json:"action" yaml:"action"`
	Args           map[string]any `json:"args,omitempty" yaml:"args"`
	Implicit       bool           `json:"implicit,omitempty" yaml:"-"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout"`
}

// New creates a task with a fresh UUID.
func New(name, action string, args map[string]any) *Task {
	return &Task{
		UUID:   uuid.NewString(),
		Name:   name,
		Action: action,
		Args:   args,
	}
}

// NewImplicit creates an internally-synthesized task. Most callback plugins
// never observe events carrying an implicit task.
func NewImplicit(name, action string) *Task {
	t := New(name, action, nil)
	t.Implicit = true
	return t
}

// EnsureUUID assigns a UUID to tasks loaded from a playbook file.
func (t *Task) EnsureUUID() {
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
}
