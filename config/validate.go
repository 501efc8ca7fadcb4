package config

import (
	"fmt"
	"strings"

	"github.com/BranchIntl/bullworker/errors"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateStats(); err != nil {
		return err
	}
	return c.validateLogging()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) validateQueue() error {
	if c.QueueName() == "" {
		return fmt.Errorf("%w: set MODEL_TYPE or QUEUE_NAME", errors.ErrEmptyQueueName)
	}
	if c.Queue.Prefix == "" {
		return invalid("queue.prefix must be set")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		return invalid("redis.url must be set")
	}
	if c.Queue.MaxRequeues < 0 {
		return invalid("queue.max_requeues must not be negative")
	}
	if c.Queue.RequeueBackoffMs < 0 || c.Queue.PollIntervalMs < 0 {
		return invalid("queue intervals must not be negative")
	}
	return nil
}

func (c *Config) validateWorker() error {
	w := c.Worker
	if w.PollTimeoutSeconds <= 0 {
		return invalid("worker.poll_timeout_seconds must be positive")
	}
	if w.MaxIdleSeconds < 0 {
		return invalid("worker.max_idle_seconds must not be negative")
	}
	if w.MaxIdleSeconds > 0 && w.MaxIdleSeconds < w.PollTimeoutSeconds {
		return invalid("worker.max_idle_seconds (%d) must be at least poll_timeout_seconds (%d)",
			w.MaxIdleSeconds, w.PollTimeoutSeconds)
	}
	if w.ExecutorTimeoutSeconds < 0 || w.NotifyTimeoutSeconds < 0 {
		return invalid("worker timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if c.UsesR2() {
		if s.R2Bucket == "" {
			return invalid("storage.r2_bucket must be set when r2_endpoint is set")
		}
		if s.PresignHours <= 0 && s.R2PublicURL == "" {
			return invalid("storage.presign_hours must be positive without r2_public_url")
		}
		return nil
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		return invalid("no result storage configured: set R2_ENDPOINT or OUTPUT_DIR")
	}
	return nil
}

func (c *Config) validateStats() error {
	switch c.Stats.Backend {
	case "redis", "noop":
		return nil
	default:
		return invalid("stats.backend %q must be redis or noop", c.Stats.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return invalid("logging.format %q must be auto, text or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
