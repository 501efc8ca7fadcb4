package core

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/bullworker/errors"
	"github.com/BranchIntl/bullworker/job"
)

// Worker claims and processes jobs from one queue, one at a time
type Worker struct {
	id       string
	hostname string
	pid      int
	queue    Queue
	executor Executor
	sink     Sink
	notifier Notifier
	stats    Statistics
	scratch  Scratch
	config   *Config

	// Statistics
	processed int64
	failed    int64
	lastJob   atomic.Int64
	startTime time.Time
}

// NewWorker creates a new worker
func NewWorker(
	id string,
	queue Queue,
	executor Executor,
	sink Sink,
	notifier Notifier,
	stats Statistics,
	scratch Scratch,
	config *Config,
) *Worker {
	hostname, _ := os.Hostname()
	if config == nil {
		config = defaultConfig()
	}

	return &Worker{
		id:        id,
		hostname:  hostname,
		pid:       os.Getpid(),
		queue:     queue,
		executor:  executor,
		sink:      sink,
		notifier:  notifier,
		stats:     stats,
		scratch:   scratch,
		config:    config,
		startTime: time.Now(),
	}
}

// GetID returns the worker's unique ID
func (w *Worker) GetID() string {
	return fmt.Sprintf("%s:%d-%s", w.hostname, w.pid, w.id)
}

func (w *Worker) info() WorkerInfo {
	return WorkerInfo{
		ID:       w.GetID(),
		Hostname: w.hostname,
		Pid:      w.pid,
		Queue:    w.queue.QueueName(),
		Started:  w.startTime,
	}
}

// Run polls until the accumulated idle time reaches MaxIdle or ctx is
// cancelled. A job claimed before cancellation is processed and settled
// before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stats.RegisterWorker(ctx, w.info()); err != nil {
		slog.Error("Failed to register worker", "error", err)
	}

	defer func() {
		if err := w.stats.UnregisterWorker(context.WithoutCancel(ctx), w.GetID()); err != nil {
			slog.Error("Failed to unregister worker", "error", err)
		}
	}()

	slog.Info("Worker started", "id", w.GetID(), "queue", w.queue.QueueName(),
		"pollTimeout", w.config.PollTimeout, "maxIdle", w.config.MaxIdle)

	var idle time.Duration
	for {
		if ctx.Err() != nil {
			slog.Info("Worker stopping", "id", w.GetID())
			return nil
		}

		j, err := w.queue.Claim(ctx, w.config.PollTimeout)
		if err != nil {
			slog.Error("Failed to claim job", "queue", w.queue.QueueName(), "error", err)
			w.pause(ctx)
		}

		if j == nil {
			idle += w.config.PollTimeout
			if w.config.MaxIdle > 0 && idle >= w.config.MaxIdle {
				slog.Info("Max idle time reached, shutting down", "id", w.GetID(), "idle", idle)
				return nil
			}
			continue
		}

		idle = 0
		w.processJob(context.WithoutCancel(ctx), j)
	}
}

// pause waits out one poll interval after a store error so a broken
// connection does not turn into a busy loop
func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.config.PollTimeout):
	}
}

// processJob settles j exactly once and removes its scratch directory
func (w *Worker) processJob(ctx context.Context, j *job.Job) {
	startTime := time.Now()
	workerInfo := w.info()
	w.lastJob.Store(startTime.UnixNano())

	if err := w.stats.RecordJobStarted(ctx, j, workerInfo); err != nil {
		slog.Error("Failed to record job start", "error", err)
	}

	plan := PlanFor(j.Type)
	if w.config.Plan != nil {
		plan = *w.config.Plan
	}
	progress := newProgressTracker(ctx, w.queue, j.ID, plan)
	progress.set(0)

	dir, err := w.scratch.JobDir(j.ID)
	if err != nil {
		w.handleJobError(ctx, j, workerInfo, fmt.Errorf("failed to create scratch directory: %w", err), startTime)
		return
	}
	defer func() {
		if err := w.scratch.Remove(dir); err != nil {
			slog.Error("Failed to remove scratch directory", "job", j.ID, "dir", dir, "error", err)
		}
	}()

	result, err := w.generate(ctx, j, dir, progress, startTime)
	if err != nil {
		w.handleJobError(ctx, j, workerInfo, err, startTime)
		return
	}

	w.handleJobSuccess(ctx, j, workerInfo, result, startTime)
}

// generate runs the executor and uploads its artifact
func (w *Worker) generate(ctx context.Context, j *job.Job, dir string, progress *progressTracker, startTime time.Time) (job.Result, error) {
	progress.set(progress.plan.ExecStart)

	task := &Task{
		JobID:      j.ID,
		Queue:      j.Type,
		Payload:    j.Payload,
		ScratchDir: dir,
		Progress:   progress.executor,
	}
	artifact, err := w.executeJob(ctx, task)
	progress.seal()
	if err != nil {
		return job.Result{}, err
	}

	progress.set(progress.plan.ExecEnd)

	contentType := artifact.ContentType
	if contentType == "" {
		contentType = w.config.ContentType
	}
	if contentType == "" {
		contentType = ContentTypeFor(j.Type)
	}

	size, err := w.sink.Size(artifact.Path)
	if err != nil {
		return job.Result{}, err
	}

	url, err := w.sink.Upload(ctx, j.ID, artifact.Path, contentType)
	if err != nil {
		return job.Result{}, err
	}

	progress.set(100)

	return job.Result{
		URL:              url,
		ContentType:      contentType,
		FileSizeBytes:    size,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		Metadata:         artifact.Metadata,
	}, nil
}

// executeJob runs the executor with panic recovery and the configured
// deadline. The executor goroutine may outlive a timeout; its progress is
// sealed off by the caller.
func (w *Worker) executeJob(ctx context.Context, task *Task) (*Artifact, error) {
	if w.executor == nil {
		return nil, errors.NewExecutorError(task.Queue, task.JobID, errors.ErrNilExecutor)
	}

	var (
		execCtx context.Context
		cancel  context.CancelFunc
	)
	if w.config.ExecutorTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, w.config.ExecutorTimeout)
	} else {
		execCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		artifact *Artifact
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		artifact, err := w.executor.Execute(execCtx, task)
		done <- outcome{artifact: artifact, err: err}
	}()

	var result outcome
	select {
	case result = <-done:
	case <-execCtx.Done():
		result = outcome{err: execCtx.Err()}
	}

	if result.err != nil {
		if stdErrors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewExecutorError(task.Queue, task.JobID,
				fmt.Errorf("executor timed out after %s: %w", w.config.ExecutorTimeout, errors.ErrTimeout))
		}
		return nil, errors.NewExecutorError(task.Queue, task.JobID, result.err)
	}
	if result.artifact == nil || result.artifact.Path == "" {
		return nil, errors.NewExecutorError(task.Queue, task.JobID, errors.ErrEmptyArtifactPath)
	}

	return result.artifact, nil
}

// handleJobSuccess settles a completed job and notifies
func (w *Worker) handleJobSuccess(ctx context.Context, j *job.Job, worker WorkerInfo, result job.Result, startTime time.Time) {
	duration := time.Since(startTime)

	if err := w.queue.SettleCompleted(ctx, j.ID, result); err != nil {
		slog.Error("Failed to settle completed job", "job", j.ID, "error", err)
		return
	}

	atomic.AddInt64(&w.processed, 1)

	if err := w.stats.RecordJobCompleted(ctx, j, worker, duration); err != nil {
		slog.Error("Failed to record job completion", "error", err)
	}

	w.notify(ctx, j, func(ctx context.Context) error {
		return w.notifier.NotifyComplete(ctx, j, ModelName(j.Type), result)
	})

	slog.Info("Job completed", "job", j.ID, "url", result.URL, "duration", duration)
}

// handleJobError settles a failed job and notifies
func (w *Worker) handleJobError(ctx context.Context, j *job.Job, worker WorkerInfo, err error, startTime time.Time) {
	duration := time.Since(startTime)
	reason := job.FailureReason(err)

	slog.Error("Job failed", "job", j.ID, "error", err)

	if settleErr := w.queue.SettleFailed(ctx, j.ID, reason); settleErr != nil {
		slog.Error("Failed to settle failed job", "job", j.ID, "error", settleErr)
		return
	}

	atomic.AddInt64(&w.failed, 1)

	if err := w.stats.RecordJobFailed(ctx, j, worker, err, duration); err != nil {
		slog.Error("Failed to record job failure", "error", err)
	}

	w.notify(ctx, j, func(ctx context.Context) error {
		return w.notifier.NotifyFailed(ctx, j, ModelName(j.Type), reason)
	})
}

func (w *Worker) notify(ctx context.Context, j *job.Job, send func(context.Context) error) {
	if w.notifier == nil {
		return
	}

	var (
		notifyCtx context.Context
		cancel    context.CancelFunc
	)
	if w.config.NotifyTimeout > 0 {
		notifyCtx, cancel = context.WithTimeout(ctx, w.config.NotifyTimeout)
	} else {
		notifyCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := send(notifyCtx); err != nil {
		slog.Warn("Failed to notify", "job", j.ID, "error", err)
	}
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() WorkerStats {
	stats := WorkerStats{
		ID:        w.GetID(),
		Processed: atomic.LoadInt64(&w.processed),
		Failed:    atomic.LoadInt64(&w.failed),
		StartTime: w.startTime,
	}
	if last := w.lastJob.Load(); last > 0 {
		stats.LastJob = time.Unix(0, last)
	}
	return stats
}
