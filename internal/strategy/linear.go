package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/task"
	"github.com/aatumaykin/playq/internal/workers"
)

// deadWorkerPollInterval bounds how long a drain blocks on an empty queue
// before checking slot liveness.
const deadWorkerPollInterval = 500 * time.Millisecond

func init() {
	Register(play.DefaultStrategy, func(log *logger.Logger) Strategy {
		return &linear{log: log}
	})
}

// linear runs the play's tasks in lock-step: every eligible host finishes
// the current task before any host starts the next one. Hosts are dispatched
// in batches bounded by the pool size.
type linear struct {
	log *logger.Logger
}

func (s *linear) Run(ctx context.Context, it *play.Iterator, pc *PlayContext) (int, error) {
	var fatal error

	for _, tk := range it.Tasks() {
		hosts := it.RemainingHosts()
		if len(hosts) == 0 {
			s.log.Debug("no hosts remaining, ending play early",
				logger.Field{Key: "play", Value: pc.Play.Name})
			break
		}

		if err := pc.Callbacks.Send(callback.EventPlaybookOnTaskStart, callback.Event{
			Play:  pc.Play.Name,
			Task:  tk,
			Stats: pc.Stats,
		}); err != nil {
			return ResultError, err
		}

		size := pc.PoolSize
		if size <= 0 {
			size = 1
		}

		for start := 0; start < len(hosts); start += size {
			end := min(start+size, len(hosts))

			pending := 0
			for slot, host := range hosts[start:end] {
				if err := ctx.Err(); err != nil {
					// Stop dispatching; in-flight workers are torn down by
					// the coordinator's cleanup.
					return resultBits(it) | ResultUnknownError, context.Cause(ctx)
				}
				if it.IsFailed(host) {
					// A failure reported earlier in this same batch window.
					continue
				}
				if err := s.launch(it, pc, slot, host, tk); err == nil {
					pending++
				}
			}

			if err := s.drain(ctx, it, pc, pending); err != nil {
				if ctx.Err() != nil {
					return resultBits(it) | ResultUnknownError, context.Cause(ctx)
				}
				if errors.Is(err, ErrDeadWorker) {
					return resultBits(it) | ResultError, err
				}
				fatal = errors.Join(fatal, err)
			}
		}

		if it.EndPlay() {
			s.log.Info("play ended early by request",
				logger.Field{Key: "play", Value: pc.Play.Name})
			return resultBits(it) | ResultFailedBreakPlay, fatal
		}
	}

	if fatal != nil {
		return resultBits(it) | ResultError, fatal
	}
	return resultBits(it), nil
}

// launch starts a worker for one assignment. A spawn failure is charged to
// the host as a failed result rather than aborting the play.
func (s *linear) launch(it *play.Iterator, pc *PlayContext, slot int, host string, tk *task.Task) error {
	pid, err := pc.Launcher.SpawnInto(slot, host, tk)
	if err != nil {
		s.log.Error("failed to start worker process", err,
			logger.Field{Key: "host", Value: host},
			logger.Field{Key: "task", Value: tk.Name})

		pc.Stats.RecordFailed(host)
		it.MarkHostFailed(host)

		raw := task.NewRawResult(host, tk, map[string]any{
			"failed": true,
			"msg":    "failed to start worker process: " + err.Error(),
		})
		sendErr := pc.Callbacks.Send(callback.EventRunnerOnFailed, callback.Event{
			Play:   pc.Play.Name,
			Host:   host,
			Task:   tk,
			Result: raw.AsWire().AsCallback(),
			Stats:  pc.Stats,
		})
		if sendErr != nil {
			s.log.Warn("failed to report spawn failure to callbacks",
				logger.Field{Key: "host", Value: host},
				logger.Field{Key: "error", Value: sendErr})
		}
		return err
	}

	s.log.Debug("worker started",
		logger.Field{Key: "host", Value: host},
		logger.Field{Key: "task", Value: tk.Name},
		logger.Field{Key: "slot", Value: slot},
		logger.Field{Key: "pid", Value: pid})
	return nil
}

// drain consumes queue messages until `pending` task results have arrived.
// Non-result messages (callbacks, display, prompts) do not count toward the
// total. Each receive is bounded so a worker that exited without reporting is
// noticed instead of blocking the play forever; buffered messages are always
// consumed before slot liveness is consulted.
func (s *linear) drain(ctx context.Context, it *play.Iterator, pc *PlayContext, pending int) error {
	var fatal error
	for pending > 0 {
		pollCtx, cancel := context.WithTimeout(ctx, deadWorkerPollInterval)
		msg, err := pc.Queue.Receive(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
				return errors.Join(fatal, err)
			}
			if dead := s.deadWorkers(pc); len(dead) > 0 {
				for _, info := range dead {
					s.log.Error("worker exited without delivering a result", ErrDeadWorker,
						logger.Field{Key: "host", Value: info.Host},
						logger.Field{Key: "pid", Value: info.PID},
						logger.Field{Key: "exit_code", Value: info.ExitCode})
				}
				return errors.Join(fatal, ErrDeadWorker)
			}
			continue
		}
		if msg.Kind == queue.KindTaskResult {
			pending--
		}
		if err := processMessage(it, pc, msg); err != nil {
			fatal = errors.Join(fatal, err)
		}
	}
	return fatal
}

// deadWorkers lists slots whose process exited abnormally. A worker always
// exits zero after delivering its result, so a non-zero exit means the
// result is never coming.
func (s *linear) deadWorkers(pc *PlayContext) []workers.WorkerInfo {
	if pc.Workers == nil {
		return nil
	}
	var dead []workers.WorkerInfo
	for _, info := range pc.Workers.Snapshot() {
		if info.Started && !info.Alive && info.ExitCode != 0 {
			dead = append(dead, info)
		}
	}
	return dead
}

func (s *linear) Cleanup() error { return nil }

// resultBits derives the play-level result from the iterator's host state.
func resultBits(it *play.Iterator) int {
	result := ResultOK
	if len(it.FailedHosts()) > 0 {
		result |= ResultFailedHosts
	}
	if len(it.RemovedHosts()) > 0 {
		result |= ResultUnreachableHosts
	}
	return result
}
