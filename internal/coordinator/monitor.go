package coordinator

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/workers"
)

// HealthMonitor periodically sweeps the worker pool and reports workers
// that exited abnormally between result drains. It only observes; recovery
// is the strategy's job.
type HealthMonitor struct {
	cron *cron.Cron
	pool *workers.Pool
	log  *logger.Logger
}

// NewHealthMonitor schedules a sweep using a cron expression, including
// descriptors like "@every 5s".
func NewHealthMonitor(pool *workers.Pool, schedule string, log *logger.Logger) (*HealthMonitor, error) {
	m := &HealthMonitor{
		cron: cron.New(),
		pool: pool,
		log:  log,
	}

	if _, err := m.cron.AddFunc(schedule, m.sweep); err != nil {
		return nil, fmt.Errorf("invalid health monitor schedule %q: %w", schedule, err)
	}
	return m, nil
}

// Start begins the periodic sweep.
func (m *HealthMonitor) Start() {
	m.cron.Start()
}

// Stop halts the sweep and waits for an in-flight run to finish.
func (m *HealthMonitor) Stop() {
	<-m.cron.Stop().Done()
}

func (m *HealthMonitor) sweep() {
	if !m.pool.HasDeadWorkers() {
		return
	}

	for _, info := range m.pool.Snapshot() {
		if info.Started && !info.Alive && info.ExitCode != 0 {
			m.log.Warn("worker process exited abnormally",
				logger.Field{Key: "slot", Value: info.Slot},
				logger.Field{Key: "pid", Value: info.PID},
				logger.Field{Key: "host", Value: info.Host},
				logger.Field{Key: "exit_code", Value: info.ExitCode})
		}
	}
}
