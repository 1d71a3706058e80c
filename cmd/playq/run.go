package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/playq/internal/callback"
	"github.com/aatumaykin/playq/internal/config"
	"github.com/aatumaykin/playq/internal/coordinator"
	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/play"
	"github.com/aatumaykin/playq/internal/signals"
	"github.com/aatumaykin/playq/internal/task"
	"github.com/aatumaykin/playq/internal/worker"
	"github.com/aatumaykin/playq/internal/workers"
)

var (
	runConfigPath string
	runForks      int
	runDebug      bool
	runDiag       bool
)

var runCmd = &cobra.Command{
	Use:   "run <playbook>",
	Short: "Run a playbook",
	Long: `Run every play in a YAML playbook. Hosts that fail or become
unreachable in one play are excluded from the following plays. The exit
code combines the per-play outcomes: 0 on success, 1 on errors, 2 when
hosts failed, 4 when hosts were unreachable.`,
	Args: cobra.ExactArgs(1),
	Run:  runHandler,
}

func runHandler(cmd *cobra.Command, args []string) {
	configPath := runConfigPath
	if configPath == "" {
		configPath = "playq.toml"
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Println("Configuration validation failed:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	if runDebug {
		cfg.Logging.Level = "debug"
	}
	if runForks > 0 {
		cfg.Runner.Forks = runForks
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	playbook, err := play.LoadPlaybook(args[0])
	if err != nil {
		log.Error("failed to load playbook", err,
			logger.Field{Key: "path", Value: args[0]})
		os.Exit(1)
	}

	policy, err := callback.ParseErrorPolicy(cfg.Callbacks.ErrorPolicy)
	if err != nil {
		log.Error("invalid callback error policy", err)
		os.Exit(1)
	}

	var registerer prometheus.Registerer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer = registry

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Warn("metrics endpoint stopped",
					logger.Field{Key: "error", Value: err})
			}
		}()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Queue.SocketPath), 0o755); err != nil {
		log.Error("failed to create socket directory", err)
		os.Exit(1)
	}

	monitorSchedule := ""
	if cfg.Monitor.Enabled {
		monitorSchedule = cfg.Monitor.Schedule
	}

	mgr, err := coordinator.New(coordinator.Options{
		Forks:           cfg.Runner.Forks,
		SocketPath:      cfg.Queue.SocketPath,
		QueueBufferSize: cfg.Queue.BufferSize,
		Shutdown: workers.ShutdownConfig{
			PollCount: cfg.Runner.ShutdownPollCount,
			PollDelay: time.Duration(cfg.Runner.ShutdownPollDelayMS) * time.Millisecond,
		},
		ExecFactory:      workerFactory(cfg),
		StdoutName:       cfg.Callbacks.Stdout,
		RunAdditional:    cfg.Callbacks.RunAdditional,
		Enabled:          cfg.Callbacks.Enabled,
		RunDiag:          runDiag,
		ErrorPolicy:      policy,
		Prompter:         coordinator.NewStdioPrompter(os.Stdin, os.Stdout),
		MonitorSchedule:  monitorSchedule,
		Logger:           log,
		Metrics:          registerer,
		MetricsNamespace: cfg.Metrics.Namespace,
	})
	if err != nil {
		log.Error("failed to initialize coordinator", err)
		os.Exit(1)
	}
	defer mgr.Cleanup()

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	router := signals.NewRouter(mgr.Pool(), cancel, log)
	router.Install()
	defer router.Stop()

	code := coordinator.RunOK
	for _, p := range playbook {
		outcome, err := mgr.RunPlay(ctx, p)
		code |= outcome.Code

		if err != nil {
			if errors.Is(err, signals.ErrInterrupted) {
				log.Warn("run interrupted by user")
				code |= coordinator.RunUnknownError
				break
			}
			log.Error("play failed", err,
				logger.Field{Key: "play", Value: p.Name})
			code |= coordinator.RunError
			break
		}

		if outcome.EndedEarly {
			log.Info("play ended early",
				logger.Field{Key: "play", Value: p.Name})
		}
	}

	if err := mgr.SendStats(); err != nil {
		log.Warn("failed to dispatch final stats",
			logger.Field{Key: "error", Value: err})
	}

	mgr.Cleanup()
	os.Exit(coordinator.ExitCode(code))
}

// workerFactory builds the command for one assignment: the worker binary
// with the assignment JSON on stdin.
func workerFactory(cfg *config.Config) workers.ExecFactory {
	return func(slot int, host string, t *task.Task) *exec.Cmd {
		a := &worker.Assignment{
			WorkerID:       slot,
			Host:           host,
			Task:           t,
			SocketPath:     cfg.Queue.SocketPath,
			TimeoutSeconds: cfg.Worker.DefaultTimeoutSeconds,
			DialAttempts:   cfg.Queue.DialAttempts,
			DialBackoffMS:  cfg.Queue.DialBackoffMS,
			DenyPatterns:   cfg.Worker.DenyPatterns,
		}

		var buf bytes.Buffer
		// Encoding a validated assignment cannot fail; a broken one will
		// surface as a worker-side decode error instead.
		_ = a.Encode(&buf)

		cmd := exec.Command(cfg.Worker.Binary)
		cmd.Stdin = &buf
		cmd.Stderr = os.Stderr
		return cmd
	}
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to configuration file (default: ./playq.toml)")
	runCmd.Flags().IntVarP(&runForks, "forks", "f", 0, "Maximum number of concurrent worker processes (overrides config)")
	runCmd.Flags().BoolVarP(&runDebug, "debug", "d", false, "Enable debug logging")
	runCmd.Flags().BoolVar(&runDiag, "timing", false, "Enable the run timing diagnostic callback")
}
