// Package queue implements the worker side of the producer's Redis job
// queue: claiming jobs of one type from the shared wait list, reporting
// progress, and settling jobs into the completed or failed sets.
package queue

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/BranchIntl/bullworker/errors"
	redisUtils "github.com/BranchIntl/bullworker/internal/redis"
	"github.com/BranchIntl/bullworker/job"
	"github.com/gomodule/redigo/redis"
)

// Counts holds the size of each queue structure
type Counts struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
}

// Client claims and settles jobs of a single type
type Client struct {
	pool    *redis.Pool
	options Options
	keys    keys
	codec   *job.Codec
	now     func() time.Time
}

// NewClient creates a new queue client. Connect must be called before use.
func NewClient(options Options) (*Client, error) {
	if options.QueueName == "" {
		return nil, errors.ErrEmptyQueueName
	}
	if options.Prefix == "" {
		options.Prefix = DefaultPrefix
	}
	if options.MaxRequeues < 1 {
		options.MaxRequeues = 1
	}

	codec := job.NewCodec()
	codec.SetUseNumber(options.UseNumber)

	return &Client{
		options: options,
		keys:    keys{prefix: options.Prefix},
		codec:   codec,
		now:     time.Now,
	}, nil
}

// QueueName returns the job type this client claims
func (c *Client) QueueName() string {
	return c.options.QueueName
}

// Connect establishes the connection pool and verifies the store is reachable
func (c *Client) Connect(ctx context.Context) error {
	c.pool = redisUtils.CreatePool(c.options.connection())

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return errors.NewConnectionError(redisUtils.Redact(c.options.URI), err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(redisUtils.Redact(c.options.URI),
			fmt.Errorf("ping failed: %w", err))
	}

	slog.Info("Connected to queue", "queue", c.options.QueueName, "prefix", c.options.Prefix)
	return nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	if c.pool != nil {
		return c.pool.Close()
	}
	return nil
}

// Health checks the store connection
func (c *Client) Health() error {
	if c.pool == nil {
		return errors.ErrNotConnected
	}

	conn := c.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(redisUtils.Redact(c.options.URI),
			fmt.Errorf("health check failed: %w", err))
	}
	return nil
}

// Claim moves the next job from wait to active and returns it when its type
// matches this client's queue name. It blocks up to timeout while the wait
// list is empty. A nil job with a nil error means nothing was claimed.
//
// Jobs of another type are pushed back to the head of wait. Claim requeues at
// most MaxRequeues of them, or stops at the first one it sees twice, and then
// waits RequeueBackoff (bounded by the timeout) before returning nothing.
func (c *Client) Claim(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, errors.NewQueueError("claim", "", err)
	}
	defer conn.Close()

	deadline := c.now().Add(timeout)
	requeued := make(map[string]struct{})

	for {
		id, err := c.pop(ctx, conn, deadline)
		if err != nil {
			return nil, errors.NewQueueError("claim", "", err)
		}
		if id == "" {
			return nil, nil
		}

		j, err := c.load(conn, id)
		switch {
		case stdErrors.Is(err, errors.ErrJobNotFound):
			slog.Warn("Claimed job has no data, dropping from active", "job", id)
			if _, err := conn.Do("LREM", c.keys.active(), 1, id); err != nil {
				return nil, errors.NewQueueError("abandon", id, err)
			}
			return nil, nil
		case err != nil:
			// Left in active on purpose: a job we cannot read is not ours to
			// requeue or settle.
			slog.Error("Claimed job is malformed, leaving it in active", "job", id, "error", err)
			return nil, nil
		}

		if j.Type == c.options.QueueName {
			now := strconv.FormatInt(c.now().UnixMilli(), 10)
			if _, err := conn.Do("HSET", c.keys.job(id), job.FieldProcessedOn, now); err != nil {
				slog.Warn("Failed to stamp processedOn", "job", id, "error", err)
			}
			j.State = job.StateActive
			slog.Info("Got job", "job", id, "type", j.Type)
			return j, nil
		}

		if err := c.requeue(conn, id); err != nil {
			return nil, errors.NewQueueError("requeue", id, err)
		}
		slog.Debug("Requeued job of another type", "job", id, "type", j.Type, "queue", c.options.QueueName)

		_, seen := requeued[id]
		requeued[id] = struct{}{}
		if seen || len(requeued) >= c.options.MaxRequeues {
			c.yield(ctx, deadline)
			return nil, nil
		}
	}
}

// ReportProgress sets the job's progress, clamped to [0,100]
func (c *Client) ReportProgress(ctx context.Context, id string, percent int) error {
	conn, err := c.conn(ctx)
	if err != nil {
		return errors.NewQueueError("progress", id, err)
	}
	defer conn.Close()

	percent = clampPercent(percent)
	if _, err := conn.Do("HSET", c.keys.job(id), job.FieldProgress, percent); err != nil {
		return errors.NewQueueError("progress", id, err)
	}
	return nil
}

// SettleCompleted stores the result and moves the job from active to completed
func (c *Client) SettleCompleted(ctx context.Context, id string, result job.Result) error {
	value, err := c.codec.EncodeResult(result)
	if err != nil {
		return errors.NewQueueError("complete", id, err)
	}
	if err := c.settle(ctx, id, job.FieldReturnValue, value, c.keys.completed(), c.keys.failed()); err != nil {
		return errors.NewQueueError("complete", id, err)
	}
	slog.Info("Job marked as completed", "job", id)
	return nil
}

// SettleFailed stores the failure reason and moves the job from active to failed
func (c *Client) SettleFailed(ctx context.Context, id string, reason string) error {
	if err := c.settle(ctx, id, job.FieldFailedReason, reason, c.keys.failed(), c.keys.completed()); err != nil {
		return errors.NewQueueError("fail", id, err)
	}
	slog.Info("Job marked as failed", "job", id, "reason", reason)
	return nil
}

// Get returns a job with its state derived from list and set membership.
// Settled jobs stay readable indefinitely.
func (c *Client) Get(ctx context.Context, id string) (*job.Job, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return nil, errors.NewQueueError("get", id, err)
	}
	defer conn.Close()

	j, err := c.load(conn, id)
	if err != nil {
		return nil, errors.NewQueueError("get", id, err)
	}

	state, err := c.state(conn, id)
	if err != nil {
		return nil, errors.NewQueueError("get", id, err)
	}
	j.State = state
	return j, nil
}

// Counts returns the size of the wait, active, completed and failed structures
func (c *Client) Counts(ctx context.Context) (Counts, error) {
	conn, err := c.conn(ctx)
	if err != nil {
		return Counts{}, errors.NewQueueError("counts", "", err)
	}
	defer conn.Close()

	conn.Send("LLEN", c.keys.wait())
	conn.Send("LLEN", c.keys.active())
	conn.Send("ZCARD", c.keys.completed())
	conn.Send("ZCARD", c.keys.failed())
	values, err := redis.Int64s(conn.Do(""))
	if err != nil {
		return Counts{}, errors.NewQueueError("counts", "", err)
	}
	if len(values) != 4 {
		return Counts{}, errors.NewQueueError("counts", "", fmt.Errorf("unexpected reply length %d", len(values)))
	}

	return Counts{
		Waiting:   values[0],
		Active:    values[1],
		Completed: values[2],
		Failed:    values[3],
	}, nil
}

func (c *Client) conn(ctx context.Context) (redis.Conn, error) {
	if c.pool == nil {
		return nil, errors.ErrNotConnected
	}
	return c.pool.GetContext(ctx)
}

// pop moves one id from wait to active, waiting until deadline at most.
// It returns "" when nothing arrived in time.
func (c *Client) pop(ctx context.Context, conn redis.Conn, deadline time.Time) (string, error) {
	if c.options.PollInterval > 0 {
		return c.pollPop(ctx, conn, deadline)
	}

	remaining := deadline.Sub(c.now())
	if remaining <= 0 {
		return replyID(conn.Do("RPOPLPUSH", c.keys.wait(), c.keys.active()))
	}

	// BRPOPLPUSH treats 0 as "block forever", so round up to whole seconds.
	seconds := int(math.Ceil(remaining.Seconds()))
	return replyID(redis.DoWithTimeout(conn, remaining+c.options.ReadTimeout,
		"BRPOPLPUSH", c.keys.wait(), c.keys.active(), seconds))
}

func (c *Client) pollPop(ctx context.Context, conn redis.Conn, deadline time.Time) (string, error) {
	for {
		id, err := replyID(conn.Do("RPOPLPUSH", c.keys.wait(), c.keys.active()))
		if err != nil || id != "" {
			return id, err
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", nil
		case <-time.After(minDuration(c.options.PollInterval, remaining)):
		}
	}
}

func (c *Client) load(conn redis.Conn, id string) (*job.Job, error) {
	fields, err := redis.StringMap(conn.Do("HGETALL", c.keys.job(id)))
	if err != nil {
		return nil, err
	}
	return c.codec.FromHash(id, fields)
}

func (c *Client) requeue(conn redis.Conn, id string) error {
	if c.options.DisableScripts {
		// Push before removing: a crash in between leaves the id in both
		// lists instead of in neither.
		if _, err := conn.Do("LPUSH", c.keys.wait(), id); err != nil {
			return err
		}
		_, err := conn.Do("LREM", c.keys.active(), 1, id)
		return err
	}

	_, err := requeueScript.Do(conn, c.keys.active(), c.keys.wait(), id)
	return err
}

func (c *Client) settle(ctx context.Context, id, field, value, target, other string) error {
	conn, err := c.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	now := c.now()
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)
	score := strconv.FormatFloat(float64(now.UnixMilli())/1000, 'f', 3, 64)

	if c.options.DisableScripts {
		// A job already in a terminal set is not settled again. The check is
		// not atomic with the writes below; two racing settles of one id can
		// still both pass it.
		for _, set := range []string{target, other} {
			if _, err := redis.Float64(conn.Do("ZSCORE", set, id)); err == nil {
				if _, err := conn.Do("LREM", c.keys.active(), 1, id); err != nil {
					return err
				}
				return errors.ErrNotActive
			} else if err != redis.ErrNil {
				return err
			}
		}

		// Terminal set before LREM so a crash leaves the job visible in active.
		if _, err := conn.Do("HSET", c.keys.job(id), field, value, job.FieldFinishedOn, nowMs); err != nil {
			return err
		}
		if _, err := conn.Do("HSETNX", c.keys.job(id), job.FieldProcessedOn, nowMs); err != nil {
			return err
		}
		if _, err := conn.Do("ZADD", target, score, id); err != nil {
			return err
		}
		_, err := conn.Do("LREM", c.keys.active(), 1, id)
		return err
	}

	settled, err := redis.Int(settleScript.Do(conn,
		c.keys.job(id), c.keys.active(), target, other,
		id, field, value, nowMs, score))
	if err != nil {
		return err
	}
	if settled == 0 {
		return errors.ErrNotActive
	}
	return nil
}

func (c *Client) state(conn redis.Conn, id string) (job.State, error) {
	if _, err := redis.Float64(conn.Do("ZSCORE", c.keys.completed(), id)); err == nil {
		return job.StateCompleted, nil
	} else if err != redis.ErrNil {
		return job.StateUnknown, err
	}

	if _, err := redis.Float64(conn.Do("ZSCORE", c.keys.failed(), id)); err == nil {
		return job.StateFailed, nil
	} else if err != redis.ErrNil {
		return job.StateUnknown, err
	}

	for _, list := range []struct {
		key   string
		state job.State
	}{
		{c.keys.active(), job.StateActive},
		{c.keys.wait(), job.StateWaiting},
	} {
		ids, err := redis.Strings(conn.Do("LRANGE", list.key, 0, -1))
		if err != nil {
			return job.StateUnknown, err
		}
		for _, member := range ids {
			if member == id {
				return list.state, nil
			}
		}
	}

	return job.StateUnknown, nil
}

func (c *Client) yield(ctx context.Context, deadline time.Time) {
	wait := minDuration(c.options.RequeueBackoff, deadline.Sub(c.now()))
	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func replyID(reply interface{}, err error) (string, error) {
	id, err := redis.String(reply, err)
	if err == redis.ErrNil {
		return "", nil
	}
	return id, err
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
