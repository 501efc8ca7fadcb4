package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BranchIntl/bullworker/errors"
	"github.com/BranchIntl/bullworker/internal/scratch"
	"github.com/google/uuid"
)

// Engine wires a queue, an executor and its collaborators into one worker
type Engine struct {
	queue    Queue
	stats    Statistics
	registry Registry
	sink     Sink
	notifier Notifier
	config   *Config

	worker *Worker
}

// NewEngine creates a new engine with dependency injection
func NewEngine(
	queue Queue,
	stats Statistics,
	registry Registry,
	sink Sink,
	notifier Notifier,
	options ...EngineOption,
) *Engine {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &Engine{
		queue:    queue,
		stats:    stats,
		registry: registry,
		sink:     sink,
		notifier: notifier,
		config:   config,
	}
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return *e.config
}

// Run validates the executor, connects, and processes jobs until the worker
// idles out, ctx is cancelled, or SIGINT/SIGTERM arrives. An in-flight job is
// settled before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	executor, ok := e.registry.Get(e.queue.QueueName())
	if !ok {
		return fmt.Errorf("%w for queue %q", errors.ErrExecutorNotFound, e.queue.QueueName())
	}
	if v, ok := executor.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("executor validation failed: %w", err)
		}
	}

	if err := e.queue.Connect(ctx); err != nil {
		return errors.NewConnectionError("",
			fmt.Errorf("failed to connect queue: %w", err))
	}
	defer func() {
		if err := e.queue.Close(); err != nil {
			slog.Error("Error closing queue", "error", err)
		}
	}()

	if err := e.stats.Connect(ctx); err != nil {
		return errors.NewConnectionError("",
			fmt.Errorf("failed to connect statistics: %w", err))
	}
	defer func() {
		if err := e.stats.Close(); err != nil {
			slog.Error("Error closing statistics", "error", err)
		}
	}()

	root := e.config.ScratchRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), "bullworker")
	}
	dirs, err := scratch.Open(root)
	if err != nil {
		return err
	}
	defer func() {
		if err := dirs.Close(); err != nil {
			slog.Error("Error removing scratch directory", "error", err)
		}
	}()
	if n, err := dirs.Sweep(); err != nil {
		slog.Warn("Failed to sweep scratch directories", "root", root, "error", err)
	} else if n > 0 {
		slog.Info("Swept stale scratch directories", "count", n)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.worker = NewWorker(
		uuid.NewString()[:8],
		e.queue,
		executor,
		e.sink,
		e.notifier,
		e.stats,
		dirs,
		e.config,
	)

	slog.Info("Engine started", "queue", e.queue.QueueName(), "scratch", dirs.Path())
	err = e.worker.Run(ctx)
	slog.Info("Engine stopped", "processed", e.worker.GetStats().Processed, "failed", e.worker.GetStats().Failed)
	return err
}

// Health returns the current health status
func (e *Engine) Health() HealthStatus {
	queueHealth := e.queue.Health()
	statsHealth := e.stats.Health()

	status := HealthStatus{
		Healthy:     queueHealth == nil && statsHealth == nil,
		QueueHealth: queueHealth,
		StatsHealth: statsHealth,
		LastCheck:   time.Now(),
	}
	if e.worker != nil {
		stats := e.worker.GetStats()
		status.Processed = stats.Processed
		status.Failed = stats.Failed
	}
	return status
}

// Register adds an executor for a queue name
func (e *Engine) Register(queue string, executor Executor) error {
	return e.registry.Register(queue, executor)
}
