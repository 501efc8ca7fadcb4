// Package webhook posts job outcomes as JSON to HTTP endpoints.
//
// Every event goes to the configured API endpoint, and also to the job's own
// "webhookUrl" payload field when the producer set one.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BranchIntl/bullworker/job"
	"github.com/BranchIntl/bullworker/notify"
)

// DefaultTimeout bounds a single webhook request
const DefaultTimeout = 10 * time.Second

const userAgent = "bullworker/1.0"

// Options configures the webhook notifier
type Options struct {
	// URL receives every event. May be empty when only per-job webhooks are used.
	URL string
	// Secret is sent in the X-Webhook-Secret header
	Secret string
	// Timeout per request, DefaultTimeout when zero
	Timeout time.Duration
	// PerJob enables delivery to the job's webhookUrl payload field
	PerJob bool
}

// Notifier posts events to webhooks
type Notifier struct {
	options Options
	client  *http.Client
	now     func() time.Time
}

// New creates a webhook notifier
func New(options Options) *Notifier {
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	options.URL = strings.TrimSpace(options.URL)
	return &Notifier{
		options: options,
		client:  &http.Client{Timeout: options.Timeout},
		now:     time.Now,
	}
}

type event struct {
	JobID            string                 `json:"jobId"`
	Status           string                 `json:"status"`
	Result           map[string]interface{} `json:"result,omitempty"`
	ProcessingTimeMs *int64                 `json:"processingTimeMs,omitempty"`
	Error            string                 `json:"error,omitempty"`
	Timestamp        string                 `json:"timestamp"`
}

// NotifyComplete posts a completed event
func (n *Notifier) NotifyComplete(ctx context.Context, j *job.Job, _ string, result job.Result) error {
	elapsed := result.ProcessingTimeMs
	return n.deliver(ctx, j, event{
		JobID:            j.ID,
		Status:           notify.StatusCompleted,
		Result:           result.Map(),
		ProcessingTimeMs: &elapsed,
		Timestamp:        n.timestamp(),
	})
}

// NotifyFailed posts a failed event
func (n *Notifier) NotifyFailed(ctx context.Context, j *job.Job, _ string, message string) error {
	return n.deliver(ctx, j, event{
		JobID:     j.ID,
		Status:    notify.StatusFailed,
		Error:     message,
		Timestamp: n.timestamp(),
	})
}

func (n *Notifier) timestamp() string {
	return n.now().UTC().Format(time.RFC3339Nano)
}

func (n *Notifier) targets(j *job.Job) []string {
	var urls []string
	if n.options.URL != "" {
		urls = append(urls, n.options.URL)
	}
	if n.options.PerJob {
		if u := strings.TrimSpace(j.WebhookURL()); u != "" && u != n.options.URL {
			urls = append(urls, u)
		}
	}
	return urls
}

func (n *Notifier) deliver(ctx context.Context, j *job.Job, e event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	targets := n.targets(j)
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			if err := n.post(ctx, target, body); err != nil {
				slog.Error("Webhook failed", "job", j.ID, "url", target, "error", err)
				errs[i] = err
				return
			}
			slog.Debug("Webhook sent", "job", j.ID, "url", target, "status", e.Status)
		}(i, target)
	}
	wg.Wait()
	return stdErrors.Join(errs...)
}

func (n *Notifier) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if n.options.Secret != "" {
		req.Header.Set("X-Webhook-Secret", n.options.Secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook %s returned %d: %s", target, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
