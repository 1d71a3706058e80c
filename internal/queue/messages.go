package queue

import "github.com/aatumaykin/playq/internal/task"

// MessageKind discriminates the three producer message types plus display
// forwarding.
type MessageKind string

const (
	KindTaskResult MessageKind = "task_result"
	KindCallback   MessageKind = "callback"
	KindDisplay    MessageKind = "display"
	KindPrompt     MessageKind = "prompt"
)

// Message is the envelope carried over the queue socket. Exactly one of the
// payload fields is set, matching Kind.
type Message struct {
	Kind       MessageKind          `json:"kind"`
	TaskResult *task.WireTaskResult `json:"task_result,omitempty"`
	Callback   *CallbackInvocation  `json:"callback,omitempty"`
	Display    *DisplayRequest      `json:"display,omitempty"`
	Prompt     *PromptRequest       `json:"prompt,omitempty"`
}

// CallbackInvocation asks the coordinator to fan a named event out to every
// callback plugin. A task-result argument travels in wire form.
type CallbackInvocation struct {
	Method     string               `json:"method"`
	TaskResult *task.WireTaskResult `json:"task_result,omitempty"`
	Args       []any                `json:"args,omitempty"`
}

// DisplayRequest forwards worker-side diagnostics to the coordinator's logger.
type DisplayRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// PromptRequest asks the coordinator's UI layer for interactive input on
// behalf of a running task. It is consumed by the prompter, not by callbacks.
type PromptRequest struct {
	WorkerID       int      `json:"worker_id"`
	Prompt         string   `json:"prompt"`
	Private        bool     `json:"private"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	InterruptInput []string `json:"interrupt_input,omitempty"`
	CompleteInput  []string `json:"complete_input,omitempty"`
}
