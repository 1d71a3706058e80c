package workers

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/task"
)

// workerSlot tracks one pool position and its current process, if any.
type workerSlot struct {
	mu       sync.Mutex
	pid      int
	host     string
	taskName string
	started  bool
	exited   bool
	exitCode int
	kill     func() error
}

func (s *workerSlot) info(index int) WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := -1
	if s.exited {
		code = s.exitCode
	}
	return WorkerInfo{
		Slot:     index,
		PID:      s.pid,
		Host:     s.host,
		TaskName: s.taskName,
		Started:  s.started,
		Alive:    s.started && !s.exited,
		ExitCode: code,
	}
}

func (s *workerSlot) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.exited
}

// Pool is the fixed-size ordered collection of worker slots.
type Pool struct {
	mu       sync.Mutex
	slots    []*workerSlot
	factory  ExecFactory
	shutdown ShutdownConfig
	logger   *logger.Logger
	metrics  *Metrics
}

// NewPool creates an empty pool. Resize must be called before dispatching.
func NewPool(factory ExecFactory, cfg ShutdownConfig, log *logger.Logger, metrics *Metrics) *Pool {
	if cfg.PollCount <= 0 {
		cfg.PollCount = DefaultShutdownPollCount
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultShutdownPollDelay
	}
	return &Pool{
		factory:  factory,
		shutdown: cfg,
		logger:   log,
		metrics:  metrics,
	}
}

// Resize sets the pool to exactly n empty slots, discarding prior slot
// contents. It is called once per play, never concurrently with an active
// pool.
func (p *Pool) Resize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := make([]*workerSlot, n)
	for i := range slots {
		slots[i] = &workerSlot{}
	}
	p.slots = slots

	p.logger.Debug("worker pool resized", logger.Field{Key: "slots", Value: n})
}

// Size returns the current number of slots.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// SpawnInto starts a worker process at the given slot bound to one
// (host, task) unit of work. The child is made a session leader so that
// subprocesses it spawns are isolated from the coordinator's process group.
func (p *Pool) SpawnInto(slot int, host string, t *task.Task) (int, error) {
	p.mu.Lock()
	if slot < 0 || slot >= len(p.slots) {
		p.mu.Unlock()
		return 0, fmt.Errorf("worker slot %d out of range (pool size %d)", slot, len(p.slots))
	}

	s := &workerSlot{}
	p.slots[slot] = s
	p.mu.Unlock()

	cmd := p.factory(slot, host, t)
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to spawn worker for host %s: %w", host, err)
	}

	s.mu.Lock()
	s.pid = cmd.Process.Pid
	s.host = host
	if t != nil {
		s.taskName = t.Name
	}
	s.started = true
	s.kill = cmd.Process.Kill
	s.mu.Unlock()

	p.metrics.incSpawned()
	p.metrics.setAlive(p.aliveCount())

	p.logger.Debug("worker spawned",
		logger.Field{Key: "slot", Value: slot},
		logger.Field{Key: "pid", Value: s.pid},
		logger.Field{Key: "host", Value: host})

	go func() {
		err := cmd.Wait()

		s.mu.Lock()
		s.exited = true
		if cmd.ProcessState != nil {
			s.exitCode = cmd.ProcessState.ExitCode()
		} else if err != nil {
			s.exitCode = -1
		}
		s.mu.Unlock()

		p.metrics.setAlive(p.aliveCount())
	}()

	return s.pid, nil
}

// Snapshot returns point-in-time copies of all slot handles.
func (p *Pool) Snapshot() []WorkerInfo {
	p.mu.Lock()
	slots := make([]*workerSlot, len(p.slots))
	copy(slots, p.slots)
	p.mu.Unlock()

	infos := make([]WorkerInfo, len(slots))
	for i, s := range slots {
		infos[i] = s.info(i)
	}
	return infos
}

// LivePIDs returns the PIDs of all slots whose process is still alive.
func (p *Pool) LivePIDs() []int {
	var pids []int
	for _, info := range p.Snapshot() {
		if info.Alive {
			pids = append(pids, info.PID)
		}
	}
	return pids
}

// HasDeadWorkers reports whether any slot's process exited abnormally.
func (p *Pool) HasDeadWorkers() bool {
	for _, info := range p.Snapshot() {
		if info.Started && !info.Alive && info.ExitCode != 0 {
			return true
		}
	}
	return false
}

func (p *Pool) aliveCount() int {
	count := 0
	for _, info := range p.Snapshot() {
		if info.Alive {
			count++
		}
	}
	return count
}

// Shutdown polls all slots for voluntary exit up to the configured budget,
// then force-kills every slot that is still alive. It never waits
// indefinitely on a hung worker, and it never skips the grace period for
// workers with in-flight I/O.
func (p *Pool) Shutdown() {
	for attemptsRemaining := p.shutdown.PollCount - 1; attemptsRemaining >= 0; attemptsRemaining-- {
		if p.aliveCount() == 0 {
			break
		}

		if attemptsRemaining > 0 {
			time.Sleep(p.shutdown.PollDelay)
		} else {
			p.logger.Warn("one or more worker processes are still running and will be terminated")
		}
	}

	p.mu.Lock()
	slots := make([]*workerSlot, len(p.slots))
	copy(slots, p.slots)
	p.mu.Unlock()

	for i, s := range slots {
		if !s.alive() {
			continue
		}

		s.mu.Lock()
		kill := s.kill
		s.mu.Unlock()

		if kill == nil {
			continue
		}
		// Kill failure means the process is already gone.
		if err := kill(); err == nil {
			p.metrics.incForceKilled()
			p.logger.Debug("worker force-killed", logger.Field{Key: "slot", Value: i})
		}
	}
}
