// Package config provides configuration loading and validation for playq.
// It supports TOML configuration files with environment variable expansion,
// default values, and comprehensive validation.
//
// Configuration structure:
//   - [runner]: Worker pool sizing and shutdown behavior
//   - [queue]: Result queue socket and buffering
//   - [callbacks]: Callback plugin selection and error policy
//   - [worker]: Worker binary, timeouts, and command deny patterns
//   - [logging]: Logging level, format, and output
//   - [metrics]: Prometheus metrics endpoint
//   - [monitor]: Periodic worker health sweep
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: socket_path = "${PLAYQ_SOCKET:/tmp/playq.sock}"
package config

// Config represents the main application configuration.
type Config struct {
	Runner    RunnerConfig    `toml:"runner"`
	Queue     QueueConfig     `toml:"queue"`
	Callbacks CallbacksConfig `toml:"callbacks"`
	Worker    WorkerConfig    `toml:"worker"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Monitor   MonitorConfig   `toml:"monitor"`
}

// RunnerConfig sizes the worker pool and bounds its shutdown.
type RunnerConfig struct {
	Forks               int `toml:"forks"`
	ShutdownPollCount   int `toml:"shutdown_poll_count"`
	ShutdownPollDelayMS int `toml:"shutdown_poll_delay_ms"`
}

// QueueConfig describes the result queue socket.
type QueueConfig struct {
	SocketPath    string `toml:"socket_path"`
	BufferSize    int    `toml:"buffer_size"`
	DialAttempts  int    `toml:"dial_attempts"`
	DialBackoffMS int    `toml:"dial_backoff_ms"`
}

// CallbacksConfig selects callback plugins and their failure handling.
type CallbacksConfig struct {
	Stdout        string   `toml:"stdout"`
	RunAdditional bool     `toml:"run_additional"`
	Enabled       []string `toml:"enabled"`
	ErrorPolicy   string   `toml:"error_policy"`
}

// WorkerConfig describes how worker processes execute tasks.
type WorkerConfig struct {
	Binary                string   `toml:"binary"`
	DefaultTimeoutSeconds int      `toml:"default_timeout_seconds"`
	DenyPatterns          []string `toml:"deny_patterns"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// MetricsConfig describes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

// MonitorConfig describes the periodic worker health sweep.
type MonitorConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}
