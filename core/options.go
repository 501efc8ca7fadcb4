package core

import (
	"time"
)

// Config holds engine configuration
type Config struct {
	// PollTimeout bounds each Claim call and is the idle increment per miss
	PollTimeout time.Duration
	// MaxIdle is the accumulated idle time after which the worker shuts
	// down. Zero disables idle shutdown.
	MaxIdle time.Duration
	// ExecutorTimeout bounds a single Execute call. Zero means no limit.
	ExecutorTimeout time.Duration
	// NotifyTimeout bounds each notifier call. Zero means no limit.
	NotifyTimeout time.Duration
	// ScratchRoot is the directory under which per-job scratch
	// directories are created
	ScratchRoot string
	// ContentType overrides the queue's default artifact content type
	ContentType string
	// Plan overrides the queue's default progress plan
	Plan *ProgressPlan
}

// EngineOption is a function that modifies engine configuration
type EngineOption func(*Config)

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		PollTimeout:     5 * time.Second,
		MaxIdle:         300 * time.Second,
		ExecutorTimeout: 30 * time.Minute,
		NotifyTimeout:   10 * time.Second,
	}
}

// WithPollTimeout sets the claim timeout
func WithPollTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		c.PollTimeout = d
	}
}

// WithMaxIdle sets the idle duration before self-shutdown
func WithMaxIdle(d time.Duration) EngineOption {
	return func(c *Config) {
		c.MaxIdle = d
	}
}

// WithExecutorTimeout sets the wall-clock limit for one job's execution
func WithExecutorTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		c.ExecutorTimeout = d
	}
}

// WithNotifyTimeout sets the per-call notifier deadline
func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(c *Config) {
		c.NotifyTimeout = d
	}
}

// WithScratchRoot sets where per-job scratch directories live
func WithScratchRoot(dir string) EngineOption {
	return func(c *Config) {
		c.ScratchRoot = dir
	}
}

// WithContentType overrides the artifact content type
func WithContentType(contentType string) EngineOption {
	return func(c *Config) {
		c.ContentType = contentType
	}
}

// WithProgressPlan overrides the progress plan
func WithProgressPlan(plan ProgressPlan) EngineOption {
	return func(c *Config) {
		c.Plan = &plan
	}
}
