package signals

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/playq/internal/logger"
)

type staticPIDs []int

func (s staticPIDs) LivePIDs() []int { return s }

func captureLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.NewWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestFanoutTerminatesLiveWorker(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	require.NoError(t, cmd.Start())

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	log, _ := captureLogger()
	r := NewRouter(staticPIDs{cmd.Process.Pid}, func(error) {}, log)

	r.Fanout(syscall.SIGTERM)

	select {
	case <-exited:
		require.NotNil(t, cmd.ProcessState)
		assert.Equal(t, syscall.SIGTERM, cmd.ProcessState.Sys().(syscall.WaitStatus).Signal())
	case <-time.After(2 * time.Second):
		cmd.Process.Kill()
		t.Fatal("worker did not receive forwarded signal")
	}
}

func TestFanoutToleratesAlreadyExitedWorker(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())

	log, buf := captureLogger()
	r := NewRouter(staticPIDs{cmd.Process.Pid}, func(error) {}, log)

	// The PID is gone (ESRCH); this must be logged as a benign race, not an
	// error.
	r.Fanout(syscall.SIGTERM)

	out := buf.String()
	assert.NotContains(t, out, "level=ERROR")
}

func TestInterruptRaisesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())

	log, _ := captureLogger()
	r := NewRouter(staticPIDs{}, cancel, log)

	r.handle(syscall.SIGINT)

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("SIGINT did not raise the cancellation condition")
	}
}

func TestInstallAndStop(t *testing.T) {
	_, cancel := context.WithCancelCause(context.Background())

	log, _ := captureLogger()
	r := NewRouter(staticPIDs{}, cancel, log)

	r.Install()
	r.Stop()
	// Stop is idempotent.
	r.Stop()
}
