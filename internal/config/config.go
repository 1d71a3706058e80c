package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file, applies defaults, and expands
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	expandEnvVars(&cfg)
	return &cfg
}

// Validate checks the configuration and collects every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Runner.Forks < 1 {
		errs = append(errs, fmt.Errorf("runner.forks must be >= 1"))
	}
	if c.Runner.ShutdownPollCount < 1 {
		errs = append(errs, fmt.Errorf("runner.shutdown_poll_count must be >= 1"))
	}
	if c.Runner.ShutdownPollDelayMS < 1 {
		errs = append(errs, fmt.Errorf("runner.shutdown_poll_delay_ms must be >= 1"))
	}

	if c.Queue.SocketPath == "" {
		errs = append(errs, fmt.Errorf("queue.socket_path is required"))
	}
	if c.Queue.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("queue.buffer_size must be >= 1"))
	}

	if c.Callbacks.Stdout == "" {
		errs = append(errs, fmt.Errorf("callbacks.stdout is required"))
	}
	switch c.Callbacks.ErrorPolicy {
	case "ignore", "warn", "fatal":
	default:
		errs = append(errs, fmt.Errorf("invalid callbacks.error_policy: %s (expected: ignore, warn, fatal)", c.Callbacks.ErrorPolicy))
	}

	if c.Worker.Binary == "" {
		errs = append(errs, fmt.Errorf("worker.binary is required"))
	}
	if c.Worker.DefaultTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("worker.default_timeout_seconds must be >= 1"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}
	if c.Logging.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, fmt.Errorf("metrics.listen is required when metrics.enabled=true"))
	}
	if c.Monitor.Enabled && c.Monitor.Schedule == "" {
		errs = append(errs, fmt.Errorf("monitor.schedule is required when monitor.enabled=true"))
	}

	return errs
}

// expandEnvVars expands environment variable references and home-relative
// paths in the configuration.
func expandEnvVars(c *Config) {
	c.Queue.SocketPath = expandHome(expandEnv(c.Queue.SocketPath))
	c.Worker.Binary = expandHome(expandEnv(c.Worker.Binary))
	c.Logging.Output = expandEnv(c.Logging.Output)
	c.Metrics.Listen = expandEnv(c.Metrics.Listen)
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
