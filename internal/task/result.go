package task

import (
	"fmt"
	"strings"
)

// Status is the discriminant of a task result.
type Status string

const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"
	StatusUnreachable Status = "unreachable"
	StatusSkipped     Status = "skipped"
)

// ErrorDetail carries structured exception detail attached to a result.
type ErrorDetail struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// Format renders the detail as display text, the shape callback plugins see.
func (e *ErrorDetail) Format() string {
	if e == nil {
		return ""
	}
	if e.Traceback == "" {
		return e.Message
	}
	return e.Message + "\n" + strings.TrimRight(e.Traceback, "\n")
}

// RawTaskResult is the full-fidelity result a worker builds immediately after
// executing a task. It is never sent across the process boundary directly.
type RawTaskResult struct {
	Host       string
	Task       *Task
	ReturnData map[string]any
	Exception  *ErrorDetail
}

// NewRawResult creates a raw result for one (host, task) execution.
func NewRawResult(host string, t *Task, data map[string]any) *RawTaskResult {
	if data == nil {
		data = map[string]any{}
	}
	return &RawTaskResult{Host: host, Task: t, ReturnData: data}
}

// Status derives the result status from the payload and exception detail.
func (r *RawTaskResult) Status() Status {
	if r.Exception != nil {
		return StatusFailed
	}
	return statusOf(r.ReturnData)
}

// AsWire projects the raw result into its serializable wire form. The payload
// is deep-copied so later mutation of the raw result cannot leak across the
// projection.
func (r *RawTaskResult) AsWire() *WireTaskResult {
	w := &WireTaskResult{
		HostName:   r.Host,
		ReturnData: deepCopyMap(r.ReturnData),
		Exception:  copyErrorDetail(r.Exception),
	}
	if r.Task != nil {
		w.TaskUUID = r.Task.UUID
		w.TaskName = r.Task.Name
		w.TaskAction = r.Task.Action
		w.Implicit = r.Task.Implicit
	}
	return w
}

// WireTaskResult is the JSON-safe projection sent through the result queue.
// It carries no live handles and round-trips through encoding/json.
type WireTaskResult struct {
	HostName   string         `json:"host"`
	TaskUUID   string         `json:"task_uuid"`
	TaskName   string         `json:"task_name,omitempty"`
	TaskAction string         `json:"task_action,omitempty"`
	Implicit   bool           `json:"implicit,omitempty"`
	ReturnData map[string]any `json:"return_data"`
	Exception  *ErrorDetail   `json:"exception,omitempty"`
}

// Status derives the result status of the wire form.
func (w *WireTaskResult) Status() Status {
	if w.Exception != nil {
		return StatusFailed
	}
	return statusOf(w.ReturnData)
}

// AsCallback produces the display-oriented form handed to callback plugins.
// The exception detail is flattened into the payload as formatted text under
// the "exception" key.
func (w *WireTaskResult) AsCallback() *CallbackTaskResult {
	c := &CallbackTaskResult{
		HostName:   w.HostName,
		TaskUUID:   w.TaskUUID,
		TaskName:   w.TaskName,
		TaskAction: w.TaskAction,
		Implicit:   w.Implicit,
		ReturnData: deepCopyMap(w.ReturnData),
	}
	if w.Exception != nil {
		c.ReturnData["exception"] = w.Exception.Format()
		if _, ok := c.ReturnData["failed"]; !ok {
			c.ReturnData["failed"] = true
		}
	}
	return c
}

// CallbackTaskResult is the per-dispatch copy exposed to callback plugins.
// Each plugin receives its own clone, so mutation by one plugin is invisible
// to the others and to the coordinator's bookkeeping.
type CallbackTaskResult struct {
	HostName   string
	TaskUUID   string
	TaskName   string
	TaskAction string
	Implicit   bool
	ReturnData map[string]any
}

// Clone returns an independently-mutable deep copy.
func (c *CallbackTaskResult) Clone() *CallbackTaskResult {
	cp := *c
	cp.ReturnData = deepCopyMap(c.ReturnData)
	return &cp
}

// Status derives the result status of the callback form.
func (c *CallbackTaskResult) Status() Status {
	return statusOf(c.ReturnData)
}

func (c *CallbackTaskResult) IsFailed() bool      { return c.Status() == StatusFailed }
func (c *CallbackTaskResult) IsUnreachable() bool { return c.Status() == StatusUnreachable }
func (c *CallbackTaskResult) IsSkipped() bool     { return c.Status() == StatusSkipped }

// IsChanged reports whether the task mutated its target.
func (c *CallbackTaskResult) IsChanged() bool {
	return truthy(c.ReturnData["changed"])
}

// Message returns the human-readable message carried by the payload, if any.
func (c *CallbackTaskResult) Message() string {
	if msg, ok := c.ReturnData["msg"].(string); ok {
		return msg
	}
	if exc, ok := c.ReturnData["exception"].(string); ok {
		return exc
	}
	return ""
}

func statusOf(data map[string]any) Status {
	switch {
	case truthy(data["unreachable"]):
		return StatusUnreachable
	case truthy(data["failed"]):
		return StatusFailed
	case truthy(data["skipped"]):
		return StatusSkipped
	default:
		return StatusOK
	}
}

// truthy interprets payload flags that may arrive as bool or JSON string.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "True" || val == "yes"
	default:
		return false
	}
}

func copyErrorDetail(e *ErrorDetail) *ErrorDetail {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// deepCopyMap copies a payload recursively. Nested maps and slices are
// duplicated; scalars are shared by value.
func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	case *ErrorDetail:
		return copyErrorDetail(val)
	default:
		return v
	}
}

// Describe renders a one-line summary used by display-oriented callbacks.
func (c *CallbackTaskResult) Describe() string {
	return fmt.Sprintf("%s | %s => %s", c.HostName, c.TaskName, c.Status())
}
