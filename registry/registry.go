package registry

import (
	"sort"
	"sync"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/errors"
)

// Registry is a thread-safe map from queue name to executor
type Registry struct {
	mu        sync.RWMutex
	executors map[string]core.Executor
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]core.Executor),
	}
}

// Register adds an executor for a queue name, replacing any earlier one
func (r *Registry) Register(queue string, executor core.Executor) error {
	if queue == "" {
		return errors.ErrEmptyQueueName
	}

	if executor == nil {
		return errors.ErrNilExecutor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[queue] = executor
	return nil
}

// Get retrieves the executor for a queue name
func (r *Registry) Get(queue string) (core.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[queue]
	return executor, ok
}

// List returns all registered queue names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queues := make([]string, 0, len(r.executors))
	for queue := range r.executors {
		queues = append(queues, queue)
	}
	sort.Strings(queues)

	return queues
}

// Remove unregisters an executor
func (r *Registry) Remove(queue string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.executors, queue)
}
