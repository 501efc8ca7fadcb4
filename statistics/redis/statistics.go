// Package redis keeps worker and job counters in Redis under their own
// namespace, separate from the queue keys the producer owns.
package redis

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/errors"
	redisUtils "github.com/BranchIntl/bullworker/internal/redis"
	"github.com/BranchIntl/bullworker/job"
	"github.com/gomodule/redigo/redis"
)

// RedisStatistics implements core.Statistics
type RedisStatistics struct {
	pool      *redis.Pool
	namespace string
	options   Options
	now       func() time.Time
}

// NewStatistics creates a new Redis statistics backend
func NewStatistics(options Options) *RedisStatistics {
	if options.Namespace == "" {
		options.Namespace = DefaultNamespace
	}
	return &RedisStatistics{
		namespace: options.Namespace,
		options:   options,
		now:       time.Now,
	}
}

// Connect establishes connection to Redis
func (r *RedisStatistics) Connect(ctx context.Context) error {
	r.pool = redisUtils.CreatePool(r.options.connection())

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return errors.NewConnectionError(redisUtils.Redact(r.options.URI), err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(redisUtils.Redact(r.options.URI),
			fmt.Errorf("ping failed: %w", err))
	}

	return nil
}

// Close closes the Redis connection pool
func (r *RedisStatistics) Close() error {
	if r.pool != nil {
		return r.pool.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *RedisStatistics) Health() error {
	if r.pool == nil {
		return errors.ErrNotConnected
	}

	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(redisUtils.Redact(r.options.URI),
			fmt.Errorf("health check failed: %w", err))
	}

	return nil
}

// Type returns the statistics backend type
func (r *RedisStatistics) Type() string {
	return "redis"
}

func (r *RedisStatistics) conn(ctx context.Context) (redis.Conn, error) {
	if r.pool == nil {
		return nil, errors.ErrNotConnected
	}
	return r.pool.GetContext(ctx)
}

// RegisterWorker registers a worker and resets its counters
func (r *RedisStatistics) RegisterWorker(ctx context.Context, worker core.WorkerInfo) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	workerData, err := json.Marshal(worker)
	if err != nil {
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	conn.Send("MULTI")
	conn.Send("SADD", r.workersKey(), worker.ID)
	conn.Send("SADD", r.queuesKey(), worker.Queue)
	conn.Send("SADD", r.queueWorkersKey(worker.Queue), worker.ID)
	conn.Send("SET", r.workerKey(worker.ID), workerData)
	conn.Send("SET", r.statProcessedKey(worker.ID), "0")
	conn.Send("SET", r.statFailedKey(worker.ID), "0")
	conn.Send("SET", r.workerStartedKey(worker.ID), worker.Started.Format(time.RFC3339))
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	return nil
}

// UnregisterWorker removes a worker and its per-worker keys
func (r *RedisStatistics) UnregisterWorker(ctx context.Context, workerID string) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var info core.WorkerInfo
	if data, err := redis.Bytes(conn.Do("GET", r.workerKey(workerID))); err == nil {
		_ = json.Unmarshal(data, &info)
	}

	conn.Send("MULTI")
	conn.Send("SREM", r.workersKey(), workerID)
	if info.Queue != "" {
		conn.Send("SREM", r.queueWorkersKey(info.Queue), workerID)
	}
	conn.Send("DEL",
		r.workerKey(workerID),
		r.statProcessedKey(workerID),
		r.statFailedKey(workerID),
		r.workerStartedKey(workerID),
		r.workerJobKey(workerID),
		r.workerLastKey(workerID),
	)
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to unregister worker: %w", err)
	}

	return nil
}

// RecordJobStarted stores the job a worker is processing
func (r *RedisStatistics) RecordJobStarted(ctx context.Context, j *job.Job, worker core.WorkerInfo) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	workData := map[string]interface{}{
		"id":     j.ID,
		"queue":  j.Type,
		"run_at": r.now().Format(time.RFC3339),
	}

	workJSON, err := json.Marshal(workData)
	if err != nil {
		return fmt.Errorf("failed to marshal work data: %w", err)
	}

	if _, err := conn.Do("SET", r.workerJobKey(worker.ID), workJSON); err != nil {
		return fmt.Errorf("failed to set worker job: %w", err)
	}

	return nil
}

// RecordJobCompleted records successful job completion
func (r *RedisStatistics) RecordJobCompleted(ctx context.Context, j *job.Job, worker core.WorkerInfo, duration time.Duration) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.Send("MULTI")
	conn.Send("INCR", r.statProcessedKey(""))
	conn.Send("INCR", r.statProcessedKey(worker.ID))
	conn.Send("INCR", r.queueProcessedKey(j.Type))
	conn.Send("SET", r.workerLastKey(worker.ID), r.now().UnixMilli())
	conn.Send("DEL", r.workerJobKey(worker.ID))
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to record completed job: %w", err)
	}

	return nil
}

// RecordJobFailed records job failure and appends it to the failure log
func (r *RedisStatistics) RecordJobFailed(ctx context.Context, j *job.Job, worker core.WorkerInfo, jobErr error, duration time.Duration) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	message := ""
	if jobErr != nil {
		message = jobErr.Error()
	}
	failure := map[string]interface{}{
		"failed_at":  r.now().Format(time.RFC3339),
		"job":        j.ID,
		"queue":      j.Type,
		"error":      message,
		"worker":     worker,
		"durationMs": duration.Milliseconds(),
	}

	failureJSON, jsonErr := json.Marshal(failure)
	if jsonErr != nil {
		return fmt.Errorf("failed to marshal failure data: %w", jsonErr)
	}

	conn.Send("MULTI")
	conn.Send("RPUSH", r.failedKey(), failureJSON)
	if r.options.MaxFailures > 0 {
		conn.Send("LTRIM", r.failedKey(), -r.options.MaxFailures, -1)
	}
	conn.Send("INCR", r.statFailedKey(""))
	conn.Send("INCR", r.statFailedKey(worker.ID))
	conn.Send("INCR", r.queueFailedKey(j.Type))
	conn.Send("SET", r.workerLastKey(worker.ID), r.now().UnixMilli())
	conn.Send("DEL", r.workerJobKey(worker.ID))
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}

	return nil
}

// GetWorkerStats returns statistics for a specific worker
func (r *RedisStatistics) GetWorkerStats(ctx context.Context, workerID string) (core.WorkerStats, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return core.WorkerStats{}, err
	}
	defer conn.Close()

	values, err := redis.Strings(conn.Do("MGET",
		r.statProcessedKey(workerID),
		r.statFailedKey(workerID),
		r.workerStartedKey(workerID),
		r.workerLastKey(workerID),
	))
	if err != nil {
		return core.WorkerStats{}, fmt.Errorf("failed to get worker stats: %w", err)
	}

	stats := core.WorkerStats{
		ID:        workerID,
		Processed: parseInt(values[0]),
		Failed:    parseInt(values[1]),
	}
	if started, err := time.Parse(time.RFC3339, values[2]); err == nil {
		stats.StartTime = started
	}
	if last := parseInt(values[3]); last > 0 {
		stats.LastJob = time.UnixMilli(last)
	}
	return stats, nil
}

// GetQueueStats returns statistics for a queue
func (r *RedisStatistics) GetQueueStats(ctx context.Context, queue string) (core.QueueStats, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return core.QueueStats{}, err
	}
	defer conn.Close()

	return r.queueStats(conn, queue)
}

func (r *RedisStatistics) queueStats(conn redis.Conn, queue string) (core.QueueStats, error) {
	values, err := redis.Strings(conn.Do("MGET", r.queueProcessedKey(queue), r.queueFailedKey(queue)))
	if err != nil {
		return core.QueueStats{}, fmt.Errorf("failed to get queue stats: %w", err)
	}

	workers, err := redis.Int64(conn.Do("SCARD", r.queueWorkersKey(queue)))
	if err != nil {
		return core.QueueStats{}, fmt.Errorf("failed to get queue workers: %w", err)
	}

	return core.QueueStats{
		Name:      queue,
		Processed: parseInt(values[0]),
		Failed:    parseInt(values[1]),
		Workers:   workers,
	}, nil
}

// GetGlobalStats returns global statistics, including every queue a worker
// has registered for
func (r *RedisStatistics) GetGlobalStats(ctx context.Context) (core.GlobalStats, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return core.GlobalStats{}, err
	}
	defer conn.Close()

	processed, err := redis.Int64(conn.Do("GET", r.statProcessedKey("")))
	if err != nil && !stdErrors.Is(err, redis.ErrNil) {
		return core.GlobalStats{}, fmt.Errorf("failed to get global processed: %w", err)
	}

	failed, err := redis.Int64(conn.Do("GET", r.statFailedKey("")))
	if err != nil && !stdErrors.Is(err, redis.ErrNil) {
		return core.GlobalStats{}, fmt.Errorf("failed to get global failed: %w", err)
	}

	activeWorkers, err := redis.Int64(conn.Do("SCARD", r.workersKey()))
	if err != nil {
		return core.GlobalStats{}, fmt.Errorf("failed to get active workers: %w", err)
	}

	queues, err := redis.Strings(conn.Do("SMEMBERS", r.queuesKey()))
	if err != nil {
		return core.GlobalStats{}, fmt.Errorf("failed to list queues: %w", err)
	}
	sort.Strings(queues)

	queueStats := make(map[string]core.QueueStats, len(queues))
	for _, queue := range queues {
		stats, err := r.queueStats(conn, queue)
		if err != nil {
			return core.GlobalStats{}, err
		}
		queueStats[queue] = stats
	}

	return core.GlobalStats{
		TotalProcessed: processed,
		TotalFailed:    failed,
		ActiveWorkers:  activeWorkers,
		QueueStats:     queueStats,
	}, nil
}

// Failures returns the most recent failure records, newest last
func (r *RedisStatistics) Failures(ctx context.Context, limit int64) ([]map[string]interface{}, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := redis.ByteSlices(conn.Do("LRANGE", r.failedKey(), start, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}

	failures := make([]map[string]interface{}, 0, len(raw))
	for _, data := range raw {
		var record map[string]interface{}
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		failures = append(failures, record)
	}
	return failures, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// Helper methods for Redis keys

func (r *RedisStatistics) workerKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s", r.namespace, workerID)
}

func (r *RedisStatistics) workersKey() string {
	return fmt.Sprintf("%sworkers", r.namespace)
}

func (r *RedisStatistics) queuesKey() string {
	return fmt.Sprintf("%squeues", r.namespace)
}

func (r *RedisStatistics) statProcessedKey(workerID string) string {
	if workerID == "" {
		return fmt.Sprintf("%sstat:processed", r.namespace)
	}
	return fmt.Sprintf("%sstat:processed:%s", r.namespace, workerID)
}

func (r *RedisStatistics) statFailedKey(workerID string) string {
	if workerID == "" {
		return fmt.Sprintf("%sstat:failed", r.namespace)
	}
	return fmt.Sprintf("%sstat:failed:%s", r.namespace, workerID)
}

func (r *RedisStatistics) workerStartedKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s:started", r.namespace, workerID)
}

func (r *RedisStatistics) workerJobKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s:job", r.namespace, workerID)
}

func (r *RedisStatistics) workerLastKey(workerID string) string {
	return fmt.Sprintf("%sworker:%s:last", r.namespace, workerID)
}

func (r *RedisStatistics) queueProcessedKey(queue string) string {
	return fmt.Sprintf("%squeue:%s:processed", r.namespace, queue)
}

func (r *RedisStatistics) queueFailedKey(queue string) string {
	return fmt.Sprintf("%squeue:%s:failed", r.namespace, queue)
}

func (r *RedisStatistics) queueWorkersKey(queue string) string {
	return fmt.Sprintf("%squeue:%s:workers", r.namespace, queue)
}

func (r *RedisStatistics) failedKey() string {
	return fmt.Sprintf("%sfailed", r.namespace)
}
