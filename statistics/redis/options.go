package redis

import (
	"time"

	redisUtils "github.com/BranchIntl/bullworker/internal/redis"
)

// DefaultNamespace keeps statistics apart from the producer's queue keys
const DefaultNamespace = "bullworker:"

// Options for Redis statistics
type Options struct {
	// URI is the Redis connection URI
	URI string

	// Namespace is the key prefix in Redis
	Namespace string

	// MaxFailures caps the failure log list. Zero keeps every entry.
	MaxFailures int64

	// MaxConnections is the maximum number of connections in the pool
	MaxConnections int

	// MaxIdle is the maximum number of idle connections
	MaxIdle int

	// IdleTimeout is the timeout for idle connections
	IdleTimeout time.Duration

	// ConnectTimeout is the timeout for establishing connections
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration

	// TLS options
	TLSSkipVerify bool
	TLSCertPath   string
}

// DefaultOptions returns default Redis statistics options
func DefaultOptions() Options {
	conn := redisUtils.DefaultOptions()
	return Options{
		URI:            conn.URI,
		Namespace:      DefaultNamespace,
		MaxFailures:    1000,
		MaxConnections: 2,
		MaxIdle:        1,
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
