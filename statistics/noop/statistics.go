package noop

import (
	"context"
	"time"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/job"
)

// NoOpStatistics implements core.Statistics with no-op operations
type NoOpStatistics struct{}

// NewStatistics creates a new no-op statistics backend
func NewStatistics() *NoOpStatistics {
	return &NoOpStatistics{}
}

// Connect establishes connection (no-op)
func (n *NoOpStatistics) Connect(ctx context.Context) error {
	return nil
}

// Close closes the connection (no-op)
func (n *NoOpStatistics) Close() error {
	return nil
}

// Health checks connection health
func (n *NoOpStatistics) Health() error {
	return nil
}

// Type returns the statistics backend type
func (n *NoOpStatistics) Type() string {
	return "noop"
}

// RegisterWorker registers a worker (no-op)
func (n *NoOpStatistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	return nil
}

// UnregisterWorker removes a worker (no-op)
func (n *NoOpStatistics) UnregisterWorker(ctx context.Context, workerID string) error {
	return nil
}

func (n *NoOpStatistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	return nil
}

func (n *NoOpStatistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	return nil
}

func (n *NoOpStatistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, err error, duration time.Duration) error {
	return nil
}

// GetWorkerStats returns empty statistics
func (n *NoOpStatistics) GetWorkerStats(ctx context.Context, workerID string) (core.WorkerStats, error) {
	return core.WorkerStats{ID: workerID}, nil
}

// GetQueueStats returns empty statistics
func (n *NoOpStatistics) GetQueueStats(ctx context.Context, queue string) (core.QueueStats, error) {
	return core.QueueStats{Name: queue}, nil
}

// GetGlobalStats returns empty statistics
func (n *NoOpStatistics) GetGlobalStats(ctx context.Context) (core.GlobalStats, error) {
	return core.GlobalStats{
		QueueStats: make(map[string]core.QueueStats),
	}, nil
}
