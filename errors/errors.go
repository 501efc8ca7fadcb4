// Package errors provides error types and utilities for the bullworker library.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotConnected      = errors.New("not connected")
	ErrJobNotFound       = errors.New("job not found")
	ErrMalformedJob      = errors.New("malformed job data")
	ErrNotActive         = errors.New("job is not active")
	ErrTimeout           = errors.New("operation timed out")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmptyQueueName    = errors.New("queue name cannot be empty")
	ErrNilExecutor       = errors.New("executor cannot be nil")
	ErrExecutorNotFound  = errors.New("executor not found")
	ErrMissingInput      = errors.New("missing required input")
	ErrEmptyArtifactPath = errors.New("executor returned no artifact")
)

// QueueError represents a failed queue store operation
type QueueError struct {
	Op    string // operation being performed
	JobID string // job id (if applicable)
	Err   error  // underlying error
}

func (e *QueueError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("queue %s for job %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// ExecutorError represents a failure while generating a job's artifact
type ExecutorError struct {
	Queue string // queue the job was claimed from
	JobID string // job id
	Err   error  // underlying error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor for %s job %s: %v", e.Queue, e.JobID, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the executor exceeded its deadline
func (e *ExecutorError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// SinkError represents a failure persisting an artifact
type SinkError struct {
	Op   string // upload, size
	Path string // local artifact path
	Err  error  // underlying error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// SerializationError represents serialization/deserialization errors
type SerializationError struct {
	Field string // job hash field
	Err   error  // underlying error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization (%s): %v", e.Field, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ConnectionError represents connection-related errors
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Temporary() bool {
	if t, ok := e.Err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}

func (e *ConnectionError) Timeout() bool {
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// NewQueueError creates a new queue error
func NewQueueError(op, jobID string, err error) error {
	return &QueueError{Op: op, JobID: jobID, Err: err}
}

// NewExecutorError creates a new executor error
func NewExecutorError(queue, jobID string, err error) error {
	return &ExecutorError{Queue: queue, JobID: jobID, Err: err}
}

// NewSinkError creates a new sink error
func NewSinkError(op, path string, err error) error {
	return &SinkError{Op: op, Path: path, Err: err}
}

// NewSerializationError creates a new serialization error
func NewSerializationError(field string, err error) error {
	return &SerializationError{Field: field, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// IsTemporary checks if an error is temporary and retryable
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return errors.Is(err, ErrTimeout)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return errors.Is(err, ErrTimeout)
}
