package queue

import (
	"time"

	redisUtils "github.com/BranchIntl/bullworker/internal/redis"
)

// DefaultPrefix is the key prefix used by the producer's queue
const DefaultPrefix = "bull:ffmpeg-jobs"

// Options for the queue client
type Options struct {
	// URI is the Redis connection URI
	URI string

	// Prefix is prepended to every key (<prefix>:wait, <prefix>:<id>, ...)
	Prefix string

	// QueueName is the job type this client claims, e.g. "generate:zimage"
	QueueName string

	// MaxRequeues is how many foreign jobs one Claim may put back on the
	// wait list before it yields
	MaxRequeues int

	// RequeueBackoff is how long a yielding Claim waits before returning
	RequeueBackoff time.Duration

	// PollInterval switches Claim from a blocking BRPOPLPUSH to repeated
	// RPOPLPUSH calls at this interval. Zero keeps the blocking command.
	PollInterval time.Duration

	// DisableScripts runs settlement and requeue as ordered plain commands
	// for stores that do not support EVAL. Repeated settlement is still
	// refused with ErrNotActive, but only checked, not atomically.
	DisableScripts bool

	// UseNumber decodes payload numbers as json.Number
	UseNumber bool

	// MaxConnections is the maximum number of connections in the pool
	MaxConnections int

	// MaxIdle is the maximum number of idle connections
	MaxIdle int

	// IdleTimeout is the timeout for idle connections
	IdleTimeout time.Duration

	// ConnectTimeout is the timeout for establishing connections
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for non-blocking read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration

	// TLS options
	TLSSkipVerify bool
	TLSCertPath   string
}

// DefaultOptions returns default queue client options
func DefaultOptions() Options {
	conn := redisUtils.DefaultOptions()
	return Options{
		URI:            conn.URI,
		Prefix:         DefaultPrefix,
		MaxRequeues:    3,
		RequeueBackoff: time.Second,
		MaxConnections: conn.MaxConnections,
		MaxIdle:        conn.MaxIdle,
		IdleTimeout:    conn.IdleTimeout,
		ConnectTimeout: conn.ConnectTimeout,
		ReadTimeout:    conn.ReadTimeout,
		WriteTimeout:   conn.WriteTimeout,
	}
}

func (o Options) connection() redisUtils.Options {
	return redisUtils.Options{
		URI:            o.URI,
		MaxConnections: o.MaxConnections,
		MaxIdle:        o.MaxIdle,
		IdleTimeout:    o.IdleTimeout,
		ConnectTimeout: o.ConnectTimeout,
		ReadTimeout:    o.ReadTimeout,
		WriteTimeout:   o.WriteTimeout,
		TLSSkipVerify:  o.TLSSkipVerify,
		TLSCertPath:    o.TLSCertPath,
	}
}

// keys renders the producer's key layout
type keys struct {
	prefix string
}

func (k keys) wait() string      { return k.prefix + ":wait" }
func (k keys) active() string    { return k.prefix + ":active" }
func (k keys) completed() string { return k.prefix + ":completed" }
func (k keys) failed() string    { return k.prefix + ":failed" }

func (k keys) job(id string) string {
	return k.prefix + ":" + id
}
