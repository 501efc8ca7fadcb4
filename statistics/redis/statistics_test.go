package redis

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/errors"
	"github.com/BranchIntl/bullworker/job"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableOpts(uri string) Options {
	opts := DefaultOptions()
	opts.URI = uri
	opts.ConnectTimeout = 100 * time.Millisecond
	return opts
}

func newTestStatistics(t *testing.T) (*RedisStatistics, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	opts := DefaultOptions()
	opts.URI = "redis://" + mr.Addr()
	opts.MaxFailures = 2

	stats := NewStatistics(opts)
	stats.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, stats.Connect(context.Background()))
	t.Cleanup(func() { stats.Close() })
	return stats, mr
}

func testWorker() core.WorkerInfo {
	return core.WorkerInfo{
		ID:       "w1",
		Hostname: "gpu-1",
		Pid:      42,
		Queue:    "generate:zimage",
		Started:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStatistics_Connect(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"unreachable redis", unreachableOpts("redis://unreachable-host:6379")},
		{"invalid URI", unreachableOpts(":/invalid-uri")},
		{"unsupported scheme", unreachableOpts("http://localhost:6379")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStatistics(tt.opts)
			err := stats.Connect(context.Background())
			require.Error(t, err)
			var connErr *errors.ConnectionError
			assert.ErrorAs(t, err, &connErr)
		})
	}
}

func TestRedisStatistics_NotConnected(t *testing.T) {
	stats := NewStatistics(Options{})
	assert.Equal(t, DefaultNamespace, stats.namespace)
	assert.Equal(t, "redis", stats.Type())
	assert.ErrorIs(t, stats.Health(), errors.ErrNotConnected)

	err := stats.RegisterWorker(context.Background(), testWorker())
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	_, err = stats.GetGlobalStats(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestRedisStatistics_WorkerLifecycle(t *testing.T) {
	stats, mr := newTestStatistics(t)
	ctx := context.Background()
	worker := testWorker()

	require.NoError(t, stats.Health())
	require.NoError(t, stats.RegisterWorker(ctx, worker))

	members, err := mr.Members("bullworker:workers")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, members)

	j := &job.Job{ID: "j1", Type: "generate:zimage"}
	require.NoError(t, stats.RecordJobStarted(ctx, j, worker))
	assert.True(t, mr.Exists("bullworker:worker:w1:job"))

	require.NoError(t, stats.RecordJobCompleted(ctx, j, worker, time.Second))
	assert.False(t, mr.Exists("bullworker:worker:w1:job"))

	require.NoError(t, stats.RecordJobFailed(ctx, &job.Job{ID: "j2", Type: "generate:zimage"}, worker,
		stdErrors.New("boom"), time.Second))

	ws, err := stats.GetWorkerStats(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ws.Processed)
	assert.Equal(t, int64(1), ws.Failed)
	assert.True(t, ws.StartTime.Equal(worker.Started))
	assert.Equal(t, int64(1700000000000), ws.LastJob.UnixMilli())

	qs, err := stats.GetQueueStats(ctx, "generate:zimage")
	require.NoError(t, err)
	assert.Equal(t, core.QueueStats{Name: "generate:zimage", Processed: 1, Failed: 1, Workers: 1}, qs)

	global, err := stats.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), global.TotalProcessed)
	assert.Equal(t, int64(1), global.TotalFailed)
	assert.Equal(t, int64(1), global.ActiveWorkers)
	assert.Contains(t, global.QueueStats, "generate:zimage")

	require.NoError(t, stats.UnregisterWorker(ctx, "w1"))
	assert.False(t, mr.Exists("bullworker:worker:w1"))
	assert.False(t, mr.Exists("bullworker:stat:processed:w1"))

	global, err = stats.GetGlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), global.ActiveWorkers)
	assert.Equal(t, int64(1), global.TotalProcessed)
	assert.Equal(t, int64(0), global.QueueStats["generate:zimage"].Workers)
}

func TestRedisStatistics_Failures(t *testing.T) {
	stats, _ := newTestStatistics(t)
	ctx := context.Background()
	worker := testWorker()
	require.NoError(t, stats.RegisterWorker(ctx, worker))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, stats.RecordJobFailed(ctx, &job.Job{ID: id, Type: worker.Queue}, worker,
			stdErrors.New("failed "+id), 10*time.Millisecond))
	}

	failures, err := stats.Failures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "b", failures[0]["job"])
	assert.Equal(t, "failed c", failures[1]["error"])
	assert.Equal(t, float64(10), failures[1]["durationMs"])

	failures, err = stats.Failures(ctx, 1)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "c", failures[0]["job"])
}

func TestRedisStatistics_UnknownWorker(t *testing.T) {
	stats, _ := newTestStatistics(t)

	ws, err := stats.GetWorkerStats(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, core.WorkerStats{ID: "missing"}, ws)
}
