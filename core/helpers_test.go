package core

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BranchIntl/bullworker/job"
)

// TestSetup provides common test dependencies
type TestSetup struct {
	Queue    *MockQueue
	Executor *MockExecutor
	Sink     *MockSink
	Notifier *MockNotifier
	Stats    *MockStatistics
	Scratch  *MockScratch
	Registry *MockRegistry
}

// NewTestSetup creates a standard test setup with all mocks
func NewTestSetup(t *testing.T, queue string) *TestSetup {
	// Set up a discard logger for tests to avoid noise
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
	slog.SetDefault(logger)

	return &TestSetup{
		Queue:    NewMockQueue(queue),
		Executor: WritingExecutor("output.png"),
		Sink:     NewMockSink(),
		Notifier: NewMockNotifier(),
		Stats:    NewMockStatistics(),
		Scratch:  NewMockScratch(t.TempDir()),
		Registry: NewMockRegistry(),
	}
}

// NewWorker builds a worker over the setup's mocks
func (s *TestSetup) NewWorker(options ...EngineOption) *Worker {
	config := defaultConfig()
	config.PollTimeout = 10 * time.Millisecond
	config.MaxIdle = 20 * time.Millisecond
	for _, opt := range options {
		opt(config)
	}
	return NewWorker("test", s.Queue, s.Executor, s.Sink, s.Notifier, s.Stats, s.Scratch, config)
}

// NewEngine builds an engine over the setup's mocks
func (s *TestSetup) NewEngine(t *testing.T, options ...EngineOption) *Engine {
	options = append([]EngineOption{
		WithPollTimeout(10 * time.Millisecond),
		WithMaxIdle(20 * time.Millisecond),
		WithScratchRoot(t.TempDir()),
	}, options...)
	return NewEngine(s.Queue, s.Stats, s.Registry, s.Sink, s.Notifier, options...)
}

// ContextWithTimeout creates a context with standard timeout for tests
func ContextWithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// NewJob creates a claimed-looking job of the given type
func NewJob(id, jobType string, payload job.Payload) *job.Job {
	if payload == nil {
		payload = job.Payload{}
	}
	return &job.Job{
		ID:      id,
		Type:    jobType,
		Payload: payload,
		State:   job.StateWaiting,
	}
}
