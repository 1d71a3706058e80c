// Package coordinator owns one run: it creates the result queue and the
// worker pool, loads callback plugins, runs each play through its strategy,
// and carries failed and unreachable hosts forward across plays. The run's
// final code is an accumulation of per-play outcome bits.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/queue"
	"github.com/aatumaykin/playq/internal/stats"
	"github.com/aatumaykin/playq/internal/strategy"
	"github.com/aatumaykin/playq/internal/workers"
)

// Options configures a Manager.
type Options struct {
	Forks           int
	SocketPath      string
	QueueBufferSize int
	Shutdown        workers.ShutdownConfig
	ExecFactory     workers.ExecFactory

	Registry      *callback.Registry
	StdoutName    string
	RunAdditional bool
	Enabled       []string
	RunDiag       bool
	ErrorPolicy   callback.ErrorPolicy
	CallbackDeps  callback.Deps

	Prompter        strategy.Prompter
	MonitorSchedule string

	Logger           *logger.Logger
	Metrics          prometheus.Registerer
	MetricsNamespace string
}

// Manager coordinates worker processes, the result queue, and callback
// dispatch for a sequence of plays.
type Manager struct {
	opts Options
	log  *logger.Logger

	queue   *queue.ResultQueue
	pool    *workers.Pool
	monitor *HealthMonitor
	stats   *stats.AggregateStats

	mu          sync.Mutex
	dispatcher  *callback.Dispatcher
	failed      map[string]struct{}
	unreachable map[string]struct{}
	terminated  bool

	cleanupOnce sync.Once
}

// New creates the run infrastructure. Failure to create the result queue
// socket is fatal for the whole run and is reported as a ResourceError.
func New(opts Options) (*Manager, error) {
	if opts.Forks < 1 {
		return nil, fmt.Errorf("forks must be >= 1, got %d", opts.Forks)
	}
	if opts.ExecFactory == nil {
		return nil, fmt.Errorf("an exec factory is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("a logger is required")
	}

	var queueMetrics *queue.Metrics
	var poolMetrics *workers.Metrics
	if opts.Metrics != nil {
		namespace := opts.MetricsNamespace
		if namespace == "" {
			namespace = "playq"
		}
		queueMetrics = queue.NewMetrics(namespace, opts.Metrics)
		poolMetrics = workers.NewMetrics(namespace, opts.Metrics)
	}

	q, err := queue.Listen(opts.SocketPath, opts.QueueBufferSize, opts.Logger, queueMetrics)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		opts:        opts,
		log:         opts.Logger,
		queue:       q,
		pool:        workers.NewPool(opts.ExecFactory, opts.Shutdown, opts.Logger, poolMetrics),
		stats:       stats.New(),
		failed:      map[string]struct{}{},
		unreachable: map[string]struct{}{},
	}

	if opts.MonitorSchedule != "" {
		monitor, err := NewHealthMonitor(m.pool, opts.MonitorSchedule, opts.Logger)
		if err != nil {
			q.Close()
			return nil, err
		}
		m.monitor = monitor
		m.monitor.Start()
	}

	return m, nil
}

// LoadCallbacks resolves and constructs the callback plugins. A missing or
// broken stdout plugin is fatal; everything else degrades to a warning.
func (m *Manager) LoadCallbacks() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatcher != nil {
		return nil
	}

	registry := m.opts.Registry
	if registry == nil {
		registry = callback.NewRegistry()
		if err := callback.RegisterBuiltins(registry); err != nil {
			return err
		}
	}

	deps := m.opts.CallbackDeps
	if deps.Logger == nil {
		deps.Logger = m.log
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}

	plugins, err := registry.Load(callback.LoadOptions{
		StdoutName:    m.opts.StdoutName,
		RunAdditional: m.opts.RunAdditional,
		Enabled:       m.opts.Enabled,
		RunDiag:       m.opts.RunDiag,
		Deps:          deps,
	}, m.log)
	if err != nil {
		return err
	}

	policy := m.opts.ErrorPolicy
	if policy == "" {
		policy = callback.PolicyWarn
	}
	m.dispatcher = callback.NewDispatcher(plugins, policy, m.log)
	return nil
}

// SendCallback fans one event out to the loaded plugins.
func (m *Manager) SendCallback(event string, ev callback.Event) error {
	m.mu.Lock()
	d := m.dispatcher
	m.mu.Unlock()

	if d == nil {
		return fmt.Errorf("callbacks are not loaded")
	}
	return d.Send(event, ev)
}

// RunPlay executes one play and returns its explicit outcome. Hosts that
// failed or became unreachable in earlier plays are excluded up front; new
// failures are absorbed for the next play. Cleanup of the strategy and the
// worker pool runs even when the strategy errors, and the original error
// wins.
func (m *Manager) RunPlay(ctx context.Context, p *play.Play) (PlayOutcome, error) {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		return PlayOutcome{Code: RunError}, fmt.Errorf("coordinator has been terminated")
	}
	m.mu.Unlock()

	if err := m.LoadCallbacks(); err != nil {
		return PlayOutcome{Code: RunError}, err
	}
	if err := p.Validate(); err != nil {
		return PlayOutcome{Code: RunError}, err
	}

	if err := m.SendCallback(callback.EventPlaybookOnPlayStart, callback.Event{
		Play:  p.Name,
		Stats: m.stats,
	}); err != nil {
		return PlayOutcome{Code: RunError}, err
	}

	it := play.NewIterator(p)
	m.seedIterator(it, p)

	// Failures recorded for earlier plays have been consumed by the seed;
	// the map restarts for this play's own failures.
	m.ClearFailedHosts()

	poolSize := min(m.opts.Forks, it.BatchSize())
	m.pool.Resize(poolSize)

	strat, err := strategy.Get(p.Strategy, m.log)
	if err != nil {
		return PlayOutcome{Code: RunError}, err
	}

	pc := &strategy.PlayContext{
		Play:            p,
		PoolSize:        poolSize,
		Launcher:        m.pool,
		Queue:           m.queue,
		Callbacks:       m.dispatcherSender(),
		Stats:           m.stats,
		Prompter:        m.opts.Prompter,
		Workers:         m.pool,
		Logger:          m.log,
		MarkUnreachable: m.markUnreachable,
	}

	code, runErr := strat.Run(ctx, it, pc)

	if cerr := strat.Cleanup(); cerr != nil {
		if runErr == nil {
			runErr = cerr
		} else {
			m.log.Warn("strategy cleanup failed",
				logger.Field{Key: "error", Value: cerr})
		}
	}
	m.pool.Shutdown()

	m.absorbFailures(it)

	return PlayOutcome{
		Code:       code,
		EndedEarly: code&RunFailedBreakPlay != 0,
	}, runErr
}

// seedIterator pre-marks hosts that failed or went unreachable in earlier
// plays so they never receive work again.
func (m *Manager) seedIterator(it *play.Iterator, p *play.Play) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, host := range p.Hosts {
		if _, gone := m.unreachable[host]; gone {
			it.RemoveHost(host)
			continue
		}
		if _, bad := m.failed[host]; bad {
			it.MarkHostFailed(host)
		}
	}
}

func (m *Manager) absorbFailures(it *play.Iterator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, host := range it.FailedHosts() {
		m.failed[host] = struct{}{}
	}
}

func (m *Manager) markUnreachable(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable[host] = struct{}{}
}

// dispatcherSender snapshots the dispatcher behind the strategy-facing
// interface.
func (m *Manager) dispatcherSender() strategy.EventSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatcher
}

// SendStats fires the final stats event after the last play.
func (m *Manager) SendStats() error {
	return m.SendCallback(callback.EventPlaybookOnStats, callback.Event{Stats: m.stats})
}

// Stats exposes the run's aggregate counters.
func (m *Manager) Stats() *stats.AggregateStats { return m.stats }

// FailedHosts returns the hosts currently carried as failed, sorted.
func (m *Manager) FailedHosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.failed)
}

// UnreachableHosts returns the hosts carried as unreachable, sorted.
func (m *Manager) UnreachableHosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.unreachable)
}

// ClearFailedHosts forgets carried failures. Unreachable hosts stay
// excluded for the life of the coordinator.
func (m *Manager) ClearFailedHosts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = map[string]struct{}{}
}

// Terminate marks the coordinator as shutting down; subsequent RunPlay
// calls are rejected.
func (m *Manager) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
}

// GetWorkers reports a snapshot of the worker pool.
func (m *Manager) GetWorkers() []workers.WorkerInfo { return m.pool.Snapshot() }

// HasDeadWorkers reports whether any pool slot exited abnormally.
func (m *Manager) HasDeadWorkers() bool { return m.pool.HasDeadWorkers() }

// Pool exposes the worker pool for signal fan-out wiring.
func (m *Manager) Pool() *workers.Pool { return m.pool }

// SocketPath returns the result queue socket path workers connect to.
func (m *Manager) SocketPath() string { return m.queue.SocketPath() }

// Cleanup tears the run down: terminates, closes the queue socket, shuts
// down remaining workers, and flushes the standard streams. Safe to call
// more than once.
func (m *Manager) Cleanup() {
	m.cleanupOnce.Do(func() {
		m.Terminate()

		if m.monitor != nil {
			m.monitor.Stop()
		}
		if err := m.queue.Close(); err != nil {
			m.log.Warn("failed to close result queue",
				logger.Field{Key: "error", Value: err})
		}
		m.pool.Shutdown()

		os.Stdout.Sync()
		os.Stderr.Sync()
	})
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
