// Package job defines the unit of work shared with the producer and the
// encoding of its Redis hash.
package job

import (
	"encoding/json"
	"strconv"
)

// State is the lifecycle position of a job
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateUnknown   State = "unknown"
)

// Terminal reports whether no further transitions are expected
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job hash fields written by the producer and by workers
const (
	FieldType         = "type"
	FieldData         = "data"
	FieldProgress     = "progress"
	FieldReturnValue  = "returnvalue"
	FieldFailedReason = "failedReason"
	FieldProcessedOn  = "processedOn"
	FieldFinishedOn   = "finishedOn"
)

// Job represents a job read from the queue store
type Job struct {
	ID           string
	Type         string
	Payload      Payload
	State        State
	Progress     int
	ReturnValue  map[string]interface{}
	FailedReason string
	ProcessedOn  int64 // epoch milliseconds
	FinishedOn   int64 // epoch milliseconds
}

// WebhookURL returns the per-job webhook requested by the producer, if any
func (j *Job) WebhookURL() string {
	return j.Payload.String("webhookUrl")
}

// Payload is the producer-defined job data. Only the executor interprets it.
type Payload map[string]interface{}

// String returns the string value for key or "" when absent or not a string
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the integer value for key, or def when absent or not numeric
func (p Payload) Int(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns the float value for key, or def when absent or not numeric
func (p Payload) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Has reports whether key is present with a non-empty value
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}
