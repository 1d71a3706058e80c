package strategy

import (
	"fmt"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/task"
)

// processMessage applies one queue message to the play state: task results
// update stats and host bookkeeping and raise runner events, callback
// requests fan out verbatim, display messages go to the coordinator logger,
// and prompts go to the prompter. Returns an error only when the callback
// dispatcher's fatal policy fires.
func processMessage(it hostMarker, pc *PlayContext, msg *queue.Message) error {
	switch msg.Kind {
	case queue.KindTaskResult:
		return processTaskResult(it, pc, msg.TaskResult)
	case queue.KindCallback:
		return processCallback(pc, msg.Callback)
	case queue.KindDisplay:
		processDisplay(pc.Logger, msg.Display)
		return nil
	case queue.KindPrompt:
		return processPrompt(pc, msg.Prompt)
	default:
		return fmt.Errorf("unknown queue message kind %q", msg.Kind)
	}
}

// hostMarker is the slice of iterator state the pump touches.
type hostMarker interface {
	MarkHostFailed(host string)
	RemoveHost(host string)
	SetEndPlay()
}

func processTaskResult(it hostMarker, pc *PlayContext, w *task.WireTaskResult) error {
	if endPlayRequested(w.ReturnData) {
		it.SetEndPlay()
	}

	ev := callback.Event{
		Play:   pc.Play.Name,
		Host:   w.HostName,
		Result: w.AsCallback(),
		Stats:  pc.Stats,
	}

	switch w.Status() {
	case task.StatusUnreachable:
		pc.Stats.RecordUnreachable(w.HostName)
		it.RemoveHost(w.HostName)
		if pc.MarkUnreachable != nil {
			pc.MarkUnreachable(w.HostName)
		}
		return pc.Callbacks.Send(callback.EventRunnerOnUnreachable, ev)
	case task.StatusFailed:
		pc.Stats.RecordFailed(w.HostName)
		it.MarkHostFailed(w.HostName)
		return pc.Callbacks.Send(callback.EventRunnerOnFailed, ev)
	case task.StatusSkipped:
		pc.Stats.RecordSkipped(w.HostName)
		return pc.Callbacks.Send(callback.EventRunnerOnSkipped, ev)
	default:
		pc.Stats.RecordOK(w.HostName, ev.Result.IsChanged())
		return pc.Callbacks.Send(callback.EventRunnerOnOK, ev)
	}
}

// endPlayRequested reports whether a result payload asks to end the play
// after the current task completes everywhere.
func endPlayRequested(data map[string]any) bool {
	switch v := data["end_play"].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes"
	default:
		return false
	}
}

func processCallback(pc *PlayContext, inv *queue.CallbackInvocation) error {
	ev := callback.Event{
		Play:  pc.Play.Name,
		Stats: pc.Stats,
		Args:  inv.Args,
	}
	if inv.TaskResult != nil {
		ev.Host = inv.TaskResult.HostName
		ev.Result = inv.TaskResult.AsCallback()
	}
	return pc.Callbacks.Send(inv.Method, ev)
}

func processDisplay(log *logger.Logger, d *queue.DisplayRequest) {
	fields := make([]logger.Field, 0, len(d.Fields))
	for k, v := range d.Fields {
		fields = append(fields, logger.Field{Key: k, Value: v})
	}

	switch d.Level {
	case "debug":
		log.Debug(d.Message, fields...)
	case "warning", "warn":
		log.Warn(d.Message, fields...)
	case "error":
		log.Error(d.Message, nil, fields...)
	default:
		log.Info(d.Message, fields...)
	}
}

func processPrompt(pc *PlayContext, req *queue.PromptRequest) error {
	if pc.Prompter == nil {
		pc.Logger.Warn("dropping prompt request, no prompter configured",
			logger.Field{Key: "worker_id", Value: req.WorkerID})
		return nil
	}
	answer, err := pc.Prompter.Prompt(req)
	if err != nil {
		pc.Logger.Warn("prompt failed",
			logger.Field{Key: "worker_id", Value: req.WorkerID},
			logger.Field{Key: "error", Value: err})
		return nil
	}
	pc.Logger.Debug("prompt answered",
		logger.Field{Key: "worker_id", Value: req.WorkerID},
		logger.Field{Key: "answer_len", Value: len(answer)})
	return nil
}
