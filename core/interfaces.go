package core

import (
	"context"
	"time"

	"github.com/BranchIntl/bullworker/job"
)

// Queue interface defines what core needs from the queue client
type Queue interface {
	// Job lifecycle
	Claim(ctx context.Context, timeout time.Duration) (*job.Job, error)
	ReportProgress(ctx context.Context, id string, percent int) error
	SettleCompleted(ctx context.Context, id string, result job.Result) error
	SettleFailed(ctx context.Context, id string, reason string) error

	// QueueName is the job type claimed by this queue
	QueueName() string

	// Connection management
	Connect(ctx context.Context) error
	Close() error
	Health() error
}

// Executor performs the generation work for one claimed job
type Executor interface {
	Execute(ctx context.Context, task *Task) (*Artifact, error)
}

// Validator is implemented by executors that can check their prerequisites
// (model files, binaries) before the worker starts polling
type Validator interface {
	Validate() error
}

// Sink persists an artifact and returns a retrievable URL
type Sink interface {
	Upload(ctx context.Context, jobID, localPath, contentType string) (string, error)
	Size(localPath string) (int64, error)
}

// Notifier delivers job outcome events. Errors are logged by the worker and
// never change a job's outcome.
type Notifier interface {
	NotifyComplete(ctx context.Context, j *job.Job, model string, result job.Result) error
	NotifyFailed(ctx context.Context, j *job.Job, model string, message string) error
}

// Scratch hands out per-job working directories
type Scratch interface {
	JobDir(jobID string) (string, error)
	Remove(dir string) error
}

// Statistics interface defines what core needs from a statistics backend
type Statistics interface {
	// Worker lifecycle
	RegisterWorker(ctx context.Context, worker WorkerInfo) error
	UnregisterWorker(ctx context.Context, workerID string) error

	// Job metrics
	RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error
	RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error
	RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error

	// Statistics queries
	GetWorkerStats(ctx context.Context, workerID string) (WorkerStats, error)
	GetQueueStats(ctx context.Context, queue string) (QueueStats, error)
	GetGlobalStats(ctx context.Context) (GlobalStats, error)

	// Health and connection
	Connect(ctx context.Context) error
	Close() error
	Health() error
	Type() string
}

// Registry interface defines what core needs from an executor registry
type Registry interface {
	// Register adds an executor for a queue name
	Register(queue string, executor Executor) error

	// Get retrieves the executor for a queue name
	Get(queue string) (Executor, bool)
}

// Task is the input handed to an Executor
type Task struct {
	JobID   string
	Queue   string
	Payload job.Payload

	// ScratchDir is owned by this task and removed once the job settles
	ScratchDir string

	// Progress accepts the executor's own 0-100 progress. Values are
	// rescaled into the job's executor sub-range.
	Progress func(percent int)
}

// ReportProgress calls Progress when set
func (t *Task) ReportProgress(percent int) {
	if t.Progress != nil {
		t.Progress(percent)
	}
}

// Artifact is the output of an Executor
type Artifact struct {
	Path string

	// ContentType overrides the queue's default content type when set
	ContentType string

	// Metadata is merged into the job's result record
	Metadata map[string]interface{}
}

// WorkerInfo describes a worker
type WorkerInfo struct {
	ID       string
	Hostname string
	Pid      int
	Queue    string
	Started  time.Time
}

// WorkerStats contains statistics for a worker
type WorkerStats struct {
	ID        string
	Processed int64
	Failed    int64
	StartTime time.Time
	LastJob   time.Time
}

// QueueStats contains statistics for a queue
type QueueStats struct {
	Name      string
	Processed int64
	Failed    int64
	Workers   int64
}

// GlobalStats contains global statistics
type GlobalStats struct {
	TotalProcessed int64
	TotalFailed    int64
	ActiveWorkers  int64
	QueueStats     map[string]QueueStats
}

// HealthStatus represents the health of the engine
type HealthStatus struct {
	Healthy     bool
	QueueHealth error
	StatsHealth error
	Processed   int64
	Failed      int64
	LastCheck   time.Time
}
