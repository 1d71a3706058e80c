package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/stats"
	"github.com/aatumaykin/playq/internal/task"
	"github.com/aatumaykin/playq/internal/workers"
)

type spawnCall struct {
	slot int
	host string
	task string
}

// fakeLauncher plays the part of the worker pool: every successful spawn
// immediately produces a scripted task result on the shared message channel,
// except for hosts marked silent.
type fakeLauncher struct {
	mu        sync.Mutex
	spawns    []spawnCall
	outcomes  map[string]map[string]any // "host/task" or "host" -> payload
	failSpawn map[string]error
	silent    map[string]bool
	messages  chan *queue.Message
	nextPID   int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		outcomes:  map[string]map[string]any{},
		failSpawn: map[string]error{},
		silent:    map[string]bool{},
		messages:  make(chan *queue.Message, 64),
		nextPID:   1000,
	}
}

func (l *fakeLauncher) SpawnInto(slot int, host string, t *task.Task) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.spawns = append(l.spawns, spawnCall{slot: slot, host: host, task: t.Name})
	if err := l.failSpawn[host]; err != nil {
		return 0, err
	}

	l.nextPID++
	if l.silent[host] {
		return l.nextPID, nil
	}

	data, ok := l.outcomes[host+"/"+t.Name]
	if !ok {
		data = l.outcomes[host]
	}
	raw := task.NewRawResult(host, t, data)
	l.messages <- &queue.Message{Kind: queue.KindTaskResult, TaskResult: raw.AsWire()}

	return l.nextPID, nil
}

// staticSlots is a fixed pool snapshot.
type staticSlots []workers.WorkerInfo

func (s staticSlots) Snapshot() []workers.WorkerInfo { return s }

func (l *fakeLauncher) calls() []spawnCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]spawnCall(nil), l.spawns...)
}

// chanReceiver adapts the launcher's message channel to the Receiver shape.
type chanReceiver struct {
	ch chan *queue.Message
}

func (r *chanReceiver) Receive(ctx context.Context) (*queue.Message, error) {
	select {
	case msg := <-r.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type sentEvent struct {
	event string
	ev    callback.Event
}

type eventRecorder struct {
	mu     sync.Mutex
	events []sentEvent
	failOn string
	err    error
}

func (r *eventRecorder) Send(event string, ev callback.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{event: event, ev: ev})
	if event == r.failOn {
		return r.err
	}
	return nil
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.event
	}
	return names
}

func strategyLogger() *logger.Logger {
	return logger.NewWithHandler(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	it          *play.Iterator
	pc          *PlayContext
	launcher    *fakeLauncher
	recorder    *eventRecorder
	unreachable []string
}

func newHarness(t *testing.T, poolSize int, tasks []string, hosts ...string) *harness {
	t.Helper()

	p := &play.Play{Name: "test play", Hosts: hosts}
	for _, name := range tasks {
		p.Tasks = append(p.Tasks, task.New(name, "command", nil))
	}
	require.NoError(t, p.Validate())

	h := &harness{
		it:       play.NewIterator(p),
		launcher: newFakeLauncher(),
		recorder: &eventRecorder{},
	}
	h.pc = &PlayContext{
		Play:      p,
		PoolSize:  poolSize,
		Launcher:  h.launcher,
		Queue:     &chanReceiver{ch: h.launcher.messages},
		Callbacks: h.recorder,
		Stats:     stats.New(),
		Logger:    strategyLogger(),
		MarkUnreachable: func(host string) {
			h.unreachable = append(h.unreachable, host)
		},
	}
	return h
}

func TestLinearRunsTasksInLockStep(t *testing.T) {
	h := newHarness(t, 3, []string{"first", "second"}, "a", "b", "c")

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, result)

	// One task_start then three ok results, twice over; the second task only
	// starts after every host finished the first.
	assert.Equal(t, []string{
		callback.EventPlaybookOnTaskStart,
		callback.EventRunnerOnOK, callback.EventRunnerOnOK, callback.EventRunnerOnOK,
		callback.EventPlaybookOnTaskStart,
		callback.EventRunnerOnOK, callback.EventRunnerOnOK, callback.EventRunnerOnOK,
	}, h.recorder.names())

	for _, host := range []string{"a", "b", "c"} {
		assert.Equal(t, 2, h.pc.Stats.Summarize(host).OK, host)
	}
}

func TestLinearBatchesByPoolSize(t *testing.T) {
	h := newHarness(t, 2, []string{"only"}, "a", "b", "c")

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	_, err = s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)

	calls := h.launcher.calls()
	require.Len(t, calls, 3)
	// First batch fills slots 0 and 1, the trailing host reuses slot 0.
	assert.Equal(t, []spawnCall{
		{slot: 0, host: "a", task: "only"},
		{slot: 1, host: "b", task: "only"},
		{slot: 0, host: "c", task: "only"},
	}, calls)
}

func TestFailedHostStopsReceivingTasks(t *testing.T) {
	h := newHarness(t, 3, []string{"first", "second"}, "a", "b", "c")
	h.launcher.outcomes["b/first"] = map[string]any{"failed": true, "msg": "boom"}

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)
	assert.Equal(t, ResultFailedHosts, result)
	assert.Equal(t, []string{"b"}, h.it.FailedHosts())

	for _, call := range h.launcher.calls() {
		if call.task == "second" {
			assert.NotEqual(t, "b", call.host)
		}
	}
	assert.Equal(t, 1, h.pc.Stats.Summarize("b").Failures)
	assert.Equal(t, 2, h.pc.Stats.Summarize("a").OK)
}

func TestUnreachableHostLeavesThePlay(t *testing.T) {
	h := newHarness(t, 3, []string{"first", "second"}, "a", "b")
	h.launcher.outcomes["b/first"] = map[string]any{"unreachable": true, "msg": "no route"}

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)

	assert.Equal(t, ResultUnreachableHosts, result)
	assert.Equal(t, []string{"b"}, h.unreachable)
	assert.Equal(t, []string{"b"}, h.it.RemovedHosts())
	// Unreachable is not the same as failed.
	assert.Empty(t, h.it.FailedHosts())
	assert.Equal(t, 1, h.pc.Stats.Summarize("b").Unreachable)
	assert.Contains(t, h.recorder.names(), callback.EventRunnerOnUnreachable)
}

func TestSpawnFailureIsChargedToTheHost(t *testing.T) {
	h := newHarness(t, 3, []string{"only"}, "a", "b")
	h.launcher.failSpawn["b"] = errors.New("fork failed")

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)

	assert.Equal(t, ResultFailedHosts, result)
	assert.Equal(t, []string{"b"}, h.it.FailedHosts())
	assert.Equal(t, 1, h.pc.Stats.Summarize("b").Failures)
	assert.Equal(t, 1, h.pc.Stats.Summarize("a").OK)

	var failedEv *sentEvent
	for i := range h.recorder.events {
		if h.recorder.events[i].event == callback.EventRunnerOnFailed {
			failedEv = &h.recorder.events[i]
		}
	}
	require.NotNil(t, failedEv)
	assert.Contains(t, failedEv.ev.Result.Message(), "failed to start worker process")
}

func TestEndPlayRequestStopsRemainingTasks(t *testing.T) {
	h := newHarness(t, 2, []string{"first", "second"}, "a", "b")
	h.launcher.outcomes["a/first"] = map[string]any{"end_play": true}

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)

	assert.Equal(t, ResultFailedBreakPlay, result&ResultFailedBreakPlay)
	for _, call := range h.launcher.calls() {
		assert.NotEqual(t, "second", call.task)
	}
}

func TestWorkerDeathAbortsTheDrain(t *testing.T) {
	h := newHarness(t, 2, []string{"only"}, "a", "b")
	h.launcher.silent["b"] = true
	h.pc.Workers = staticSlots{
		{Slot: 1, PID: 1002, Host: "b", Started: true, Alive: false, ExitCode: 1},
	}

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	start := time.Now()
	result, err := s.Run(context.Background(), h.it, h.pc)
	require.ErrorIs(t, err, ErrDeadWorker)
	assert.Equal(t, ResultError, result&ResultError)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The result that did arrive was still processed before the abort.
	assert.Equal(t, 1, h.pc.Stats.Summarize("a").OK)
}

func TestSlowWorkerIsNotTreatedAsDead(t *testing.T) {
	h := newHarness(t, 1, []string{"only"}, "a")
	h.launcher.silent["a"] = true
	h.pc.Workers = staticSlots{
		{Slot: 0, PID: 1001, Host: "a", Started: true, Alive: true, ExitCode: -1},
	}

	go func() {
		time.Sleep(700 * time.Millisecond)
		raw := task.NewRawResult("a", task.New("only", "command", nil), map[string]any{})
		h.launcher.messages <- &queue.Message{Kind: queue.KindTaskResult, TaskResult: raw.AsWire()}
	}()

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, result)
	assert.Equal(t, 1, h.pc.Stats.Summarize("a").OK)
}

func TestCancellationStopsDispatch(t *testing.T) {
	h := newHarness(t, 2, []string{"only"}, "a", "b")

	cause := errors.New("user interrupt")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(ctx, h.it, h.pc)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, ResultUnknownError, result&ResultUnknownError)
	assert.Empty(t, h.launcher.calls())
}

func TestFatalCallbackErrorSurfaces(t *testing.T) {
	h := newHarness(t, 2, []string{"only"}, "a")
	h.recorder.failOn = callback.EventRunnerOnOK
	h.recorder.err = errors.New("callback dispatch failed hard")

	s, err := Get("linear", strategyLogger())
	require.NoError(t, err)

	result, err := s.Run(context.Background(), h.it, h.pc)
	require.Error(t, err)
	assert.Equal(t, ResultError, result&ResultError)
}

func TestUnknownStrategyIsAnError(t *testing.T) {
	_, err := Get("mystery", strategyLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strategy "mystery"`)
	assert.Contains(t, Names(), "linear")
}
