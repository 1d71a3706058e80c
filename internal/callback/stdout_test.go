package callback

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/task"
)

func TestDefaultStdoutPrintsHostResults(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewDefaultStdout(Deps{Stdout: &buf})
	require.NoError(t, err)

	ok := task.NewRawResult("web1", task.New("deploy", "command", nil), map[string]any{}).AsWire().AsCallback()
	changed := task.NewRawResult("web2", task.New("deploy", "command", nil), map[string]any{"changed": true}).AsWire().AsCallback()
	failed := task.NewRawResult("db1", task.New("deploy", "command", nil), map[string]any{"failed": true, "msg": "boom"}).AsWire().AsCallback()

	require.NoError(t, p.HandleEvent(EventRunnerOnOK, Event{Result: ok}))
	require.NoError(t, p.HandleEvent(EventRunnerOnOK, Event{Result: changed}))
	require.NoError(t, p.HandleEvent(EventRunnerOnFailed, Event{Result: failed}))

	out := buf.String()
	assert.Contains(t, out, "ok: [web1]")
	assert.Contains(t, out, "changed: [web2]")
	assert.Contains(t, out, "fatal: [db1]: FAILED!")
	assert.Contains(t, out, "boom")
}

func TestDefaultStdoutRejectsMissingResult(t *testing.T) {
	p, err := NewDefaultStdout(Deps{Stdout: &bytes.Buffer{}})
	require.NoError(t, err)

	// A worker callback can name a runner event without attaching a result;
	// that must surface as an error, not a panic.
	for _, event := range []string{
		EventRunnerOnOK,
		EventRunnerOnFailed,
		EventRunnerOnUnreachable,
		EventRunnerOnSkipped,
	} {
		err := p.HandleEvent(event, Event{Host: "web1"})
		require.Error(t, err, event)
		assert.Contains(t, err.Error(), "no task result")
	}
}
