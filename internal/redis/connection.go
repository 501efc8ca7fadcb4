// Package redis holds the redigo connection plumbing shared by the queue
// client and the statistics backend.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	bwErrors "github.com/BranchIntl/bullworker/errors"
	"github.com/gomodule/redigo/redis"
)

var (
	// ErrInvalidScheme is returned when the Redis URI scheme is invalid
	ErrInvalidScheme = errors.New("invalid Redis database URI scheme")
)

// Options configures a Redis connection pool
type Options struct {
	URI            string
	MaxConnections int
	MaxIdle        int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLSSkipVerify  bool
	TLSCertPath    string
}

// DefaultOptions returns pool defaults suitable for a single sequential worker
func DefaultOptions() Options {
	return Options{
		URI:            "redis://localhost:6379/",
		MaxConnections: 4,
		MaxIdle:        2,
		IdleTimeout:    240 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// CreatePool creates a Redis connection pool. No connection is made until
// the pool is first used.
func CreatePool(options Options) *redis.Pool {
	return &redis.Pool{
		MaxActive:   options.MaxConnections,
		MaxIdle:     options.MaxIdle,
		IdleTimeout: options.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return DialRedis(ctx, options)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// DialRedis establishes a Redis connection for redis://, rediss:// and
// unix:// URIs
func DialRedis(ctx context.Context, options Options) (redis.Conn, error) {
	uri, err := url.Parse(options.URI)
	if err != nil {
		return nil, bwErrors.NewConnectionError(Redact(options.URI),
			fmt.Errorf("invalid URI: %w", err))
	}

	dialOptions := []redis.DialOption{
		redis.DialConnectTimeout(options.ConnectTimeout),
		redis.DialReadTimeout(options.ReadTimeout),
		redis.DialWriteTimeout(options.WriteTimeout),
	}

	var conn redis.Conn
	switch uri.Scheme {
	case "redis", "rediss":
		if uri.Scheme == "rediss" {
			cfg, err := tlsConfig(options)
			if err != nil {
				return nil, bwErrors.NewConnectionError(Redact(options.URI), err)
			}
			dialOptions = append(dialOptions, redis.DialTLSConfig(cfg))
		}
		conn, err = redis.DialURLContext(ctx, options.URI, dialOptions...)
	case "unix":
		conn, err = redis.DialContext(ctx, "unix", uri.Path, dialOptions...)
	default:
		return nil, bwErrors.NewConnectionError(Redact(options.URI), ErrInvalidScheme)
	}
	if err != nil {
		return nil, bwErrors.NewConnectionError(Redact(options.URI),
			fmt.Errorf("failed to connect: %w", err))
	}

	return conn, nil
}

func tlsConfig(options Options) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: options.TLSSkipVerify,
	}
	if options.TLSCertPath != "" {
		pool, err := LoadCertPool(options.TLSCertPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// LoadCertPool loads a certificate pool from a file
func LoadCertPool(certPath string) (*x509.CertPool, error) {
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	certs, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert file %q: %w", certPath, err)
	}

	if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
		return nil, fmt.Errorf("failed to append certs from %q", certPath)
	}

	return rootCAs, nil
}

// Redact strips the password from a connection URI for logs and errors
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
