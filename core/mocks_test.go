package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BranchIntl/bullworker/job"
)

// Mock implementations for testing

// MockQueue implements the Queue interface for testing
type MockQueue struct {
	mu           sync.RWMutex
	name         string
	connected    bool
	connectError error
	healthError  error
	claimError   error
	settleError  error
	jobs         []*job.Job
	claims       int
	progress     map[string][]int
	completed    map[string]job.Result
	failed       map[string]string
}

func NewMockQueue(name string) *MockQueue {
	return &MockQueue{
		name:      name,
		progress:  make(map[string][]int),
		completed: make(map[string]job.Result),
		failed:    make(map[string]string),
	}
}

func (m *MockQueue) Push(jobs ...*job.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, jobs...)
}

func (m *MockQueue) Claim(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.claims++
	if m.claimError != nil {
		return nil, m.claimError
	}
	if len(m.jobs) == 0 {
		return nil, nil
	}

	j := m.jobs[0]
	m.jobs = m.jobs[1:]
	j.State = job.StateActive
	return j, nil
}

func (m *MockQueue) ReportProgress(ctx context.Context, id string, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[id] = append(m.progress[id], percent)
	return nil
}

func (m *MockQueue) SettleCompleted(ctx context.Context, id string, result job.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settleError != nil {
		return m.settleError
	}
	m.completed[id] = result
	return nil
}

func (m *MockQueue) SettleFailed(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settleError != nil {
		return m.settleError
	}
	m.failed[id] = reason
	return nil
}

func (m *MockQueue) QueueName() string { return m.name }

func (m *MockQueue) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockQueue) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

func (m *MockQueue) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.healthError != nil {
		return m.healthError
	}
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	return nil
}

// Test helper methods
func (m *MockQueue) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockQueue) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockQueue) SetClaimError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimError = err
}

func (m *MockQueue) SetSettleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleError = err
}

func (m *MockQueue) GetClaims() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claims
}

func (m *MockQueue) GetProgress(id string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.progress[id]...)
}

func (m *MockQueue) GetCompleted() map[string]job.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]job.Result, len(m.completed))
	for k, v := range m.completed {
		out[k] = v
	}
	return out
}

func (m *MockQueue) GetFailed() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.failed))
	for k, v := range m.failed {
		out[k] = v
	}
	return out
}

// MockExecutor runs a configurable function
type MockExecutor struct {
	mu          sync.Mutex
	fn          func(ctx context.Context, task *Task) (*Artifact, error)
	validateErr error
	tasks       []*Task
}

func NewMockExecutor(fn func(ctx context.Context, task *Task) (*Artifact, error)) *MockExecutor {
	return &MockExecutor{fn: fn}
}

// WritingExecutor writes a file into the task's scratch directory and
// reports the given executor progress values
func WritingExecutor(name string, steps ...int) *MockExecutor {
	return NewMockExecutor(func(ctx context.Context, task *Task) (*Artifact, error) {
		for _, p := range steps {
			task.ReportProgress(p)
		}
		path := filepath.Join(task.ScratchDir, name)
		if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
			return nil, err
		}
		return &Artifact{Path: path, Metadata: map[string]interface{}{"width": 1024}}, nil
	})
}

func (m *MockExecutor) Execute(ctx context.Context, task *Task) (*Artifact, error) {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	fn := m.fn
	m.mu.Unlock()

	return fn(ctx, task)
}

func (m *MockExecutor) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateErr
}

func (m *MockExecutor) SetValidateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateErr = err
}

func (m *MockExecutor) GetTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Task(nil), m.tasks...)
}

// MockSink records uploads
type MockSink struct {
	mu        sync.Mutex
	uploadErr error
	uploads   []string
	types     []string
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Upload(ctx context.Context, jobID, localPath, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	m.uploads = append(m.uploads, localPath)
	m.types = append(m.types, contentType)
	return "https://cdn.test/outputs/" + jobID + "/" + filepath.Base(localPath), nil
}

func (m *MockSink) Size(localPath string) (int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (m *MockSink) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
}

func (m *MockSink) GetContentTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.types...)
}

// MockNotifier records notifications
type MockNotifier struct {
	mu        sync.Mutex
	err       error
	completed []string
	failed    []string
	messages  []string
	models    []string
	ctxErrs   []error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) NotifyComplete(ctx context.Context, j *job.Job, model string, result job.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed = append(m.completed, j.ID)
	m.models = append(m.models, model)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *MockNotifier) NotifyFailed(ctx context.Context, j *job.Job, model string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append(m.failed, j.ID)
	m.messages = append(m.messages, message)
	m.models = append(m.models, model)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockNotifier) GetCompleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.completed...)
}

func (m *MockNotifier) GetFailed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.failed...)
}

func (m *MockNotifier) GetContextErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.ctxErrs...)
}

func (m *MockNotifier) GetMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func (m *MockNotifier) GetModels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.models...)
}

// MockScratch hands out directories under a temp root
type MockScratch struct {
	mu      sync.Mutex
	root    string
	dirErr  error
	created []string
	removed []string
}

func NewMockScratch(root string) *MockScratch {
	return &MockScratch{root: root}
}

func (m *MockScratch) JobDir(jobID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirErr != nil {
		return "", m.dirErr
	}
	dir := filepath.Join(m.root, "job-"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	m.created = append(m.created, dir)
	return dir, nil
}

func (m *MockScratch) Remove(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removed = append(m.removed, dir)
	return os.RemoveAll(dir)
}

func (m *MockScratch) SetDirError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirErr = err
}

func (m *MockScratch) GetCreated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

func (m *MockScratch) GetRemoved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// MockStatistics implements the Statistics interface for testing
type MockStatistics struct {
	mu           sync.RWMutex
	connected    bool
	connectError error
	healthError  error
	registered   []WorkerInfo
	unregistered []string
	started      []string
	completed    []string
	failed       []string
}

func NewMockStatistics() *MockStatistics {
	return &MockStatistics{}
}

func (m *MockStatistics) RegisterWorker(ctx context.Context, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, worker)
	return nil
}

func (m *MockStatistics) UnregisterWorker(ctx context.Context, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, workerID)
	return nil
}

func (m *MockStatistics) RecordJobStarted(ctx context.Context, j *job.Job, worker WorkerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, j.ID)
	return nil
}

func (m *MockStatistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker WorkerInfo, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, j.ID)
	return nil
}

func (m *MockStatistics) RecordJobFailed(ctx context.Context, j *job.Job, worker WorkerInfo, err error, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, j.ID)
	return nil
}

func (m *MockStatistics) GetWorkerStats(ctx context.Context, workerID string) (WorkerStats, error) {
	return WorkerStats{ID: workerID}, nil
}

func (m *MockStatistics) GetQueueStats(ctx context.Context, queue string) (QueueStats, error) {
	return QueueStats{Name: queue}, nil
}

func (m *MockStatistics) GetGlobalStats(ctx context.Context) (GlobalStats, error) {
	return GlobalStats{QueueStats: make(map[string]QueueStats)}, nil
}

func (m *MockStatistics) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockStatistics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockStatistics) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.healthError != nil {
		return m.healthError
	}
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	return nil
}

func (m *MockStatistics) Type() string { return "mock" }

func (m *MockStatistics) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockStatistics) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockStatistics) GetRegistered() []WorkerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WorkerInfo(nil), m.registered...)
}

func (m *MockStatistics) GetUnregistered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.unregistered...)
}

func (m *MockStatistics) GetCompleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.completed...)
}

func (m *MockStatistics) GetFailed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.failed...)
}

// MockRegistry implements the Registry interface for testing
type MockRegistry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{executors: make(map[string]Executor)}
}

func (m *MockRegistry) Register(queue string, executor Executor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[queue] = executor
	return nil
}

func (m *MockRegistry) Get(queue string) (Executor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	executor, ok := m.executors[queue]
	return executor, ok
}
