package worker

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/retry"
	"github.com/aatumaykin/playq/internal/task"
)

func testLogger() *logger.Logger {
	return logger.NewWithHandler(slog.NewTextHandler(io.Discard, nil))
}

func listenTemp(t *testing.T) *queue.ResultQueue {
	t.Helper()
	q, err := queue.Listen(filepath.Join(t.TempDir(), "q.sock"), 16, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func newAssignment(q *queue.ResultQueue, cmd string) *Assignment {
	return &Assignment{
		WorkerID:   1,
		Host:       "web1",
		Task:       task.New("run it", "command", map[string]any{"cmd": cmd}),
		SocketPath: q.SocketPath(),
	}
}

// runAndCollect runs the assignment and returns the messages the
// coordinator side would observe, in order.
func runAndCollect(t *testing.T, q *queue.ResultQueue, a *Assignment) []*queue.Message {
	t.Helper()

	r := NewRunner(testLogger(), retry.Config{})
	require.NoError(t, r.Run(context.Background(), a))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msgs []*queue.Message
	for len(msgs) < 2 {
		msg, err := q.Receive(ctx)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRunReportsStartThenResult(t *testing.T) {
	q := listenTemp(t)
	msgs := runAndCollect(t, q, newAssignment(q, "echo hello"))

	require.Equal(t, queue.KindCallback, msgs[0].Kind)
	assert.Equal(t, callback.EventRunnerOnStart, msgs[0].Callback.Method)
	assert.Equal(t, "web1", msgs[0].Callback.TaskResult.HostName)

	require.Equal(t, queue.KindTaskResult, msgs[1].Kind)
	res := msgs[1].TaskResult
	assert.Equal(t, task.StatusOK, res.Status())
	assert.Equal(t, "hello", res.ReturnData["stdout"])
	assert.Equal(t, float64(0), toFloat(res.ReturnData["rc"]))
	assert.Equal(t, true, res.ReturnData["changed"])
}

func TestRunReportsNonZeroExitAsFailed(t *testing.T) {
	q := listenTemp(t)
	msgs := runAndCollect(t, q, newAssignment(q, "echo oops >&2; exit 3"))

	res := msgs[1].TaskResult
	assert.Equal(t, task.StatusFailed, res.Status())
	assert.Equal(t, "oops", res.ReturnData["stderr"])
	assert.Equal(t, float64(3), toFloat(res.ReturnData["rc"]))
	msg, _ := res.ReturnData["msg"].(string)
	assert.Contains(t, msg, "non-zero return code 3")
}

func TestRunTimesOutLongCommands(t *testing.T) {
	q := listenTemp(t)
	a := newAssignment(q, "sleep 30")
	a.Task.TimeoutSeconds = 1

	start := time.Now()
	msgs := runAndCollect(t, q, a)
	assert.Less(t, time.Since(start), 10*time.Second)

	res := msgs[1].TaskResult
	assert.Equal(t, task.StatusFailed, res.Status())
	msg, _ := res.ReturnData["msg"].(string)
	assert.Contains(t, msg, "timed out")
}

func TestRunDeniesMatchingCommands(t *testing.T) {
	q := listenTemp(t)
	a := newAssignment(q, "rm -rf /var/data")
	a.DenyPatterns = []string{`rm\s+-rf`}

	msgs := runAndCollect(t, q, a)

	res := msgs[1].TaskResult
	assert.Equal(t, task.StatusFailed, res.Status())
	msg, _ := res.ReturnData["msg"].(string)
	assert.Contains(t, msg, "command denied by pattern")
}

func TestRunRejectsUnknownActions(t *testing.T) {
	q := listenTemp(t)
	a := newAssignment(q, "")
	a.Task = task.New("odd", "teleport", nil)

	msgs := runAndCollect(t, q, a)

	res := msgs[1].TaskResult
	assert.Equal(t, task.StatusFailed, res.Status())
	msg, _ := res.ReturnData["msg"].(string)
	assert.Contains(t, msg, `unknown action "teleport"`)
}

func TestCommandValidator(t *testing.T) {
	v, err := NewCommandValidator([]string{`(?i)shutdown`, `mkfs\.`})
	require.NoError(t, err)

	assert.NoError(t, v.Validate("echo shutting"))
	assert.Error(t, v.Validate("ShUtDoWn -h now"))
	assert.Error(t, v.Validate("mkfs.ext4 /dev/sda1"))

	_, err = NewCommandValidator([]string{"("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid deny pattern")
}

func TestAssignmentRoundTrip(t *testing.T) {
	a := &Assignment{
		WorkerID:      3,
		Host:          "db1",
		Task:          task.New("backup", "command", map[string]any{"cmd": "true"}),
		SocketPath:    "/tmp/q.sock",
		DialAttempts:  7,
		DialBackoffMS: 25,
	}

	var buf strings.Builder
	require.NoError(t, a.Encode(&buf))

	got, err := ReadAssignment(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, a.Host, got.Host)
	assert.Equal(t, a.Task.UUID, got.Task.UUID)

	// The dial retry knobs govern the worker's queue connection.
	cfg := got.RetryConfig()
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.InitialBackoff)
}

func TestAssignmentValidation(t *testing.T) {
	tests := []struct {
		name string
		a    Assignment
		want string
	}{
		{"no host", Assignment{Task: task.New("t", "command", nil), SocketPath: "/s"}, "no host"},
		{"no task", Assignment{Host: "h", SocketPath: "/s"}, "no task"},
		{"no socket", Assignment{Host: "h", Task: task.New("t", "command", nil)}, "socket path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// toFloat normalizes numbers that crossed the JSON boundary.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return -999
	}
}
