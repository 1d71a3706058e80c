package config

// applyDefaults fills in every unset field with its default value.
func applyDefaults(c *Config) {
	if c.Runner.Forks == 0 {
		c.Runner.Forks = 5
	}
	if c.Runner.ShutdownPollCount == 0 {
		c.Runner.ShutdownPollCount = 10
	}
	if c.Runner.ShutdownPollDelayMS == 0 {
		c.Runner.ShutdownPollDelayMS = 100
	}

	if c.Queue.SocketPath == "" {
		c.Queue.SocketPath = "~/.playq/run/result-queue.sock"
	}
	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = 256
	}
	if c.Queue.DialAttempts == 0 {
		c.Queue.DialAttempts = 5
	}
	if c.Queue.DialBackoffMS == 0 {
		c.Queue.DialBackoffMS = 50
	}

	if c.Callbacks.Stdout == "" {
		c.Callbacks.Stdout = "default"
	}
	if c.Callbacks.ErrorPolicy == "" {
		c.Callbacks.ErrorPolicy = "warn"
	}

	if c.Worker.Binary == "" {
		c.Worker.Binary = "playq-worker"
	}
	if c.Worker.DefaultTimeoutSeconds == 0 {
		c.Worker.DefaultTimeoutSeconds = 300
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9190"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "playq"
	}

	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "@every 5s"
	}
}
