// Package signals propagates coordinator-level termination signals to every
// live worker process. Workers become session leaders when spawned (to
// isolate their connection subprocesses), so signals sent to the
// coordinator's process group never reach them automatically; delivery must
// be per-PID.
package signals

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aatumaykin/playq/internal/logger"
)

// ErrInterrupted is the cancellation cause recorded when an interactive
// interrupt arrives. The coordinator observes it at its blocking points and
// unwinds the play in an orderly fashion.
var ErrInterrupted = errors.New("run interrupted by signal")

// PIDLister exposes the live worker PIDs of the pool.
type PIDLister interface {
	LivePIDs() []int
}

// Router converts OS termination signals into worker fan-out plus either a
// cancellation (SIGINT) or default self-redelivery (any other signal).
type Router struct {
	pool   PIDLister
	logger *logger.Logger
	cancel context.CancelCauseFunc

	ch   chan os.Signal
	once sync.Once
}

// NewRouter creates a router. cancel is invoked with ErrInterrupted when an
// interactive interrupt is received.
func NewRouter(pool PIDLister, cancel context.CancelCauseFunc, log *logger.Logger) *Router {
	return &Router{
		pool:   pool,
		logger: log,
		cancel: cancel,
	}
}

// Install registers the SIGTERM/SIGINT handlers and starts the routing
// goroutine.
func (r *Router) Install() {
	r.ch = make(chan os.Signal, 2)
	signal.Notify(r.ch, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		for sig := range r.ch {
			if s, ok := sig.(syscall.Signal); ok {
				r.handle(s)
			}
		}
	}()
}

// Stop unregisters the handlers.
func (r *Router) Stop() {
	r.once.Do(func() {
		if r.ch != nil {
			signal.Stop(r.ch)
			close(r.ch)
		}
	})
}

// handle processes one received signal: restore the default disposition so a
// second occurrence is not routed again, fan the signal out to all live
// workers, then either raise the cancellation condition (SIGINT) or
// re-deliver to our own process so default OS handling occurs.
func (r *Router) handle(sig syscall.Signal) {
	signal.Reset(sig)

	r.Fanout(sig)

	if sig == syscall.SIGINT {
		r.cancel(ErrInterrupted)
		return
	}

	pid := os.Getpid()
	if err := syscall.Kill(pid, sig); err != nil {
		r.logger.Error("unable to re-deliver signal to self", err,
			logger.Field{Key: "signal", Value: sig.String()},
			logger.Field{Key: "pid", Value: pid})
	}
}

// Fanout delivers sig to every live worker process individually. A target
// that exited between the liveness check and the kill is a benign race and is
// only logged; any other delivery error is surfaced to the logger.
func (r *Router) Fanout(sig syscall.Signal) {
	for _, pid := range r.pool.LivePIDs() {
		if err := syscall.Kill(pid, sig); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				r.logger.Debug("worker already exited before signal delivery",
					logger.Field{Key: "pid", Value: pid})
				continue
			}
			r.logger.Error("unable to deliver signal to worker", err,
				logger.Field{Key: "signal", Value: sig.String()},
				logger.Field{Key: "pid", Value: pid})
		}
	}
}
