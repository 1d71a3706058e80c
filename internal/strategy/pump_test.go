package strategy

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/task"
)

type fakePrompter struct {
	requests []*queue.PromptRequest
	answer   string
}

func (p *fakePrompter) Prompt(req *queue.PromptRequest) (string, error) {
	p.requests = append(p.requests, req)
	return p.answer, nil
}

func pumpHarness(t *testing.T) (*play.Iterator, *PlayContext, *eventRecorder) {
	t.Helper()
	h := newHarness(t, 1, []string{"only"}, "a", "b")
	return h.it, h.pc, h.recorder
}

func TestPumpForwardsWorkerCallbacks(t *testing.T) {
	it, pc, recorder := pumpHarness(t)

	raw := task.NewRawResult("a", task.New("deploy", "command", nil), map[string]any{"stdout": "hi"})
	err := processMessage(it, pc, &queue.Message{
		Kind: queue.KindCallback,
		Callback: &queue.CallbackInvocation{
			Method:     callback.EventRunnerOnStart,
			TaskResult: raw.AsWire(),
		},
	})
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	got := recorder.events[0]
	assert.Equal(t, callback.EventRunnerOnStart, got.event)
	assert.Equal(t, "a", got.ev.Host)
	assert.Equal(t, "hi", got.ev.Result.ReturnData["stdout"])
}

func TestPumpRoutesDisplayToLogger(t *testing.T) {
	it, pc, _ := pumpHarness(t)

	var buf bytes.Buffer
	pc.Logger = logger.NewWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	for _, level := range []string{"debug", "info", "warning", "error"} {
		require.NoError(t, processMessage(it, pc, &queue.Message{
			Kind:    queue.KindDisplay,
			Display: &queue.DisplayRequest{Level: level, Message: "from worker " + level},
		}))
	}

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "from worker info")
}

func TestPumpHandsPromptsToThePrompter(t *testing.T) {
	it, pc, recorder := pumpHarness(t)

	prompter := &fakePrompter{answer: "secret"}
	pc.Prompter = prompter

	err := processMessage(it, pc, &queue.Message{
		Kind:   queue.KindPrompt,
		Prompt: &queue.PromptRequest{WorkerID: 2, Prompt: "Vault password:", Private: true},
	})
	require.NoError(t, err)

	require.Len(t, prompter.requests, 1)
	assert.Equal(t, "Vault password:", prompter.requests[0].Prompt)
	// Prompts never reach callback plugins.
	assert.Empty(t, recorder.events)
}

func TestPumpDropsPromptWithoutPrompter(t *testing.T) {
	it, pc, _ := pumpHarness(t)
	pc.Prompter = nil

	err := processMessage(it, pc, &queue.Message{
		Kind:   queue.KindPrompt,
		Prompt: &queue.PromptRequest{WorkerID: 1, Prompt: "?"},
	})
	require.NoError(t, err)
}

func TestPumpRejectsUnknownMessageKind(t *testing.T) {
	it, pc, _ := pumpHarness(t)

	err := processMessage(it, pc, &queue.Message{Kind: "telemetry"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown queue message kind")
}

func TestPumpCountsStatsPerStatus(t *testing.T) {
	it, pc, _ := pumpHarness(t)

	send := func(host string, data map[string]any) {
		raw := task.NewRawResult(host, task.New("t", "command", nil), data)
		require.NoError(t, processMessage(it, pc, &queue.Message{
			Kind:       queue.KindTaskResult,
			TaskResult: raw.AsWire(),
		}))
	}

	send("a", map[string]any{"changed": true})
	send("a", map[string]any{"skipped": true})
	send("b", map[string]any{"failed": true})

	sa := pc.Stats.Summarize("a")
	assert.Equal(t, 1, sa.OK)
	assert.Equal(t, 1, sa.Changed)
	assert.Equal(t, 1, sa.Skipped)
	assert.Equal(t, 1, pc.Stats.Summarize("b").Failures)
	assert.Equal(t, []string{"b"}, it.FailedHosts())
}
