// playq-worker executes a single (host, task) assignment. The coordinator
// starts one per pool slot, writes the assignment JSON to stdin, and reads
// results back over the result queue socket named in the assignment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aatumaykin/playq/internal/logger"
	"github.com/aatumaykin/playq/internal/worker"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:  envOr("PLAYQ_WORKER_LOG_LEVEL", "warn"),
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "playq-worker: %v\n", err)
		os.Exit(1)
	}

	a, err := worker.ReadAssignment(os.Stdin)
	if err != nil {
		log.Error("invalid assignment", err)
		os.Exit(1)
	}

	// The coordinator's signal router forwards SIGTERM/SIGINT here; treat
	// either as a request to stop the running task.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	r := worker.NewRunner(log, a.RetryConfig())
	if err := r.Run(ctx, a); err != nil {
		log.Error("failed to deliver task result", err,
			logger.Field{Key: "host", Value: a.Host})
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
