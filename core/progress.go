package core

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// QueuePrefix is the prefix the producer puts in front of model names
const QueuePrefix = "generate:"

// ProgressPlan places the executor's 0-100 range inside the job's visible
// progress. The job reports 0 on claim, ExecStart before execution,
// ExecEnd once the artifact exists and 100 after upload.
type ProgressPlan struct {
	ExecStart int
	ExecEnd   int
}

var plans = map[string]ProgressPlan{
	"zimage":  {ExecStart: 5, ExecEnd: 90},
	"wav2lip": {ExecStart: 20, ExecEnd: 90},
	"ltx2":    {ExecStart: 10, ExecEnd: 90},
}

var defaultPlan = ProgressPlan{ExecStart: 10, ExecEnd: 90}

var contentTypes = map[string]string{
	"zimage":         "image/png",
	"wav2lip":        "video/mp4",
	"ltx2":           "video/mp4",
	"infinitetalk":   "video/mp4",
	"longcat-avatar": "video/mp4",
}

// ModelName strips the queue prefix: "generate:zimage" -> "zimage"
func ModelName(queue string) string {
	return strings.TrimPrefix(queue, QueuePrefix)
}

// PlanFor returns the progress plan for a queue
func PlanFor(queue string) ProgressPlan {
	if plan, ok := plans[ModelName(queue)]; ok {
		return plan
	}
	return defaultPlan
}

// ContentTypeFor returns the artifact content type produced by a queue
func ContentTypeFor(queue string) string {
	if ct, ok := contentTypes[ModelName(queue)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Scale maps the executor's percent into the plan's sub-range
func (p ProgressPlan) Scale(percent int) int {
	percent = clamp(percent)
	return clamp(p.ExecStart + percent*(p.ExecEnd-p.ExecStart)/100)
}

// progressTracker reports a job's progress and drops values that would go
// backwards. Executor callbacks arrive from the executor goroutine and are
// ignored once the tracker is sealed.
type progressTracker struct {
	ctx   context.Context
	queue Queue
	jobID string
	plan  ProgressPlan

	mu     sync.Mutex
	last   int
	sealed bool
}

func newProgressTracker(ctx context.Context, queue Queue, jobID string, plan ProgressPlan) *progressTracker {
	return &progressTracker{
		ctx:   ctx,
		queue: queue,
		jobID: jobID,
		plan:  plan,
		last:  -1,
	}
}

// set reports an absolute job percentage
func (t *progressTracker) set(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(clamp(percent))
}

// executor reports a percentage from the executor's own range
func (t *progressTracker) executor(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.report(t.plan.Scale(percent))
}

// seal stops executor callbacks from reaching the store
func (t *progressTracker) seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

func (t *progressTracker) report(percent int) {
	if percent <= t.last {
		return
	}
	t.last = percent
	if err := t.queue.ReportProgress(t.ctx, t.jobID, percent); err != nil {
		slog.Warn("Failed to report progress", "job", t.jobID, "progress", percent, "error", err)
	}
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
