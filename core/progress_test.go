package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanFor(t *testing.T) {
	tests := []struct {
		queue string
		want  ProgressPlan
	}{
		{"generate:zimage", ProgressPlan{ExecStart: 5, ExecEnd: 90}},
		{"generate:wav2lip", ProgressPlan{ExecStart: 20, ExecEnd: 90}},
		{"generate:ltx2", ProgressPlan{ExecStart: 10, ExecEnd: 90}},
		{"generate:infinitetalk", defaultPlan},
		{"ltx2", ProgressPlan{ExecStart: 10, ExecEnd: 90}},
	}

	for _, tt := range tests {
		t.Run(tt.queue, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanFor(tt.queue))
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("generate:zimage"))
	assert.Equal(t, "video/mp4", ContentTypeFor("generate:wav2lip"))
	assert.Equal(t, "video/mp4", ContentTypeFor("generate:longcat-avatar"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("generate:unknown"))
}

func TestProgressPlan_Scale(t *testing.T) {
	plan := ProgressPlan{ExecStart: 10, ExecEnd: 90}

	tests := []struct {
		in   int
		want int
	}{
		{-5, 10},
		{0, 10},
		{50, 50},
		{100, 90},
		{250, 90},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, plan.Scale(tt.in), "scale(%d)", tt.in)
	}
}

func TestProgressTracker(t *testing.T) {
	queue := NewMockQueue("generate:ltx2")
	tracker := newProgressTracker(context.Background(), queue, "j1", PlanFor("generate:ltx2"))

	tracker.set(0)
	tracker.set(0)
	tracker.set(10)
	tracker.executor(50)
	tracker.executor(25)
	tracker.seal()
	tracker.executor(100)
	tracker.set(90)
	tracker.set(120)

	assert.Equal(t, []int{0, 10, 50, 90, 100}, queue.GetProgress("j1"))
}
