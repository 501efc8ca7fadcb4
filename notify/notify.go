// Package notify fans job outcome events out to the configured notifiers.
package notify

import (
	"context"
	stdErrors "errors"
	"sync"

	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/job"
)

// Event names shared by notifier implementations
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Multi delivers every event to each notifier concurrently, so a slow
// notifier does not eat into the deadline of the others. One notifier
// failing does not stop the rest; the errors are joined in notifier order.
type Multi []core.Notifier

// New returns a notifier for the given set, skipping nils. It returns Noop
// when nothing remains.
func New(notifiers ...core.Notifier) core.Notifier {
	var multi Multi
	for _, n := range notifiers {
		if n != nil {
			multi = append(multi, n)
		}
	}
	switch len(multi) {
	case 0:
		return Noop{}
	case 1:
		return multi[0]
	}
	return multi
}

// NotifyComplete implements core.Notifier
func (m Multi) NotifyComplete(ctx context.Context, j *job.Job, model string, result job.Result) error {
	return m.each(func(n core.Notifier) error {
		return n.NotifyComplete(ctx, j, model, result)
	})
}

// NotifyFailed implements core.Notifier
func (m Multi) NotifyFailed(ctx context.Context, j *job.Job, model, message string) error {
	return m.each(func(n core.Notifier) error {
		return n.NotifyFailed(ctx, j, model, message)
	})
}

func (m Multi) each(send func(core.Notifier) error) error {
	errs := make([]error, len(m))
	var wg sync.WaitGroup
	for i, n := range m {
		wg.Add(1)
		go func(i int, n core.Notifier) {
			defer wg.Done()
			errs[i] = send(n)
		}(i, n)
	}
	wg.Wait()
	return stdErrors.Join(errs...)
}

// Noop discards events
type Noop struct{}

func (Noop) NotifyComplete(context.Context, *job.Job, string, job.Result) error { return nil }
func (Noop) NotifyFailed(context.Context, *job.Job, string, string) error       { return nil }
