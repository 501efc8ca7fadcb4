// Package engines provides a pre-configured engine for BullMQ-compatible
// generation workers. It combines the queue client, statistics backend,
// result sink and notifiers selected by a config.Config.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine, err := engines.NewBullEngine(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine.Run(ctx)
//
// The command executor from cfg.Executor is registered for the configured
// queue. Register replaces it with an in-process executor.
package engines

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BranchIntl/bullworker/config"
	"github.com/BranchIntl/bullworker/core"
	"github.com/BranchIntl/bullworker/executor/command"
	"github.com/BranchIntl/bullworker/notify"
	"github.com/BranchIntl/bullworker/notify/amqp"
	"github.com/BranchIntl/bullworker/notify/webhook"
	"github.com/BranchIntl/bullworker/queue"
	"github.com/BranchIntl/bullworker/registry"
	"github.com/BranchIntl/bullworker/sink/filesystem"
	"github.com/BranchIntl/bullworker/sink/s3"
	"github.com/BranchIntl/bullworker/statistics/noop"
	redisStats "github.com/BranchIntl/bullworker/statistics/redis"
)

// BullEngine provides a pre-configured engine for one generation queue
type BullEngine struct {
	engine    *core.Engine
	queue     *queue.Client
	stats     core.Statistics
	registry  *registry.Registry
	sink      core.Sink
	notifier  core.Notifier
	publisher *amqp.Publisher
}

// NewBullEngine creates an engine from cfg. Extra engine options are
// applied after the ones derived from cfg.
func NewBullEngine(cfg *config.Config, engineOptions ...core.EngineOption) (*BullEngine, error) {
	client, err := queue.NewClient(QueueOptions(cfg))
	if err != nil {
		return nil, err
	}

	sink, err := NewSink(cfg)
	if err != nil {
		return nil, err
	}

	e := &BullEngine{
		queue:    client,
		stats:    NewStatistics(cfg),
		registry: registry.NewRegistry(),
		sink:     sink,
	}

	notifiers := []core.Notifier{}
	if cfg.Webhook.URL != "" || cfg.Webhook.PerJob {
		notifiers = append(notifiers, webhook.New(webhook.Options{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Timeout: time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second,
			PerJob:  cfg.Webhook.PerJob,
		}))
	}
	if cfg.AMQP.URL != "" {
		options := amqp.DefaultOptions()
		options.URI = cfg.AMQP.URL
		options.Exchange = cfg.AMQP.Exchange
		e.publisher = amqp.New(options)
		notifiers = append(notifiers, e.publisher)
	}
	e.notifier = notify.New(notifiers...)

	if len(cfg.Executor.Command) > 0 {
		executor := command.New(cfg.QueueName(), CommandOptions(cfg))
		if err := e.registry.Register(cfg.QueueName(), executor); err != nil {
			return nil, err
		}
	}

	options := append(EngineOptions(cfg), engineOptions...)
	e.engine = core.NewEngine(client, e.stats, e.registry, e.sink, e.notifier, options...)
	return e, nil
}

// QueueOptions maps cfg onto queue client options
func QueueOptions(cfg *config.Config) queue.Options {
	options := queue.DefaultOptions()
	options.URI = cfg.Redis.URL
	options.Prefix = cfg.Queue.Prefix
	options.QueueName = cfg.QueueName()
	options.MaxRequeues = cfg.Queue.MaxRequeues
	options.RequeueBackoff = cfg.Queue.RequeueBackoff()
	options.PollInterval = cfg.Queue.PollInterval()
	options.DisableScripts = cfg.Queue.DisableScripts
	options.UseNumber = cfg.Queue.UseNumber
	options.TLSSkipVerify = cfg.Redis.TLSSkipVerify
	options.TLSCertPath = cfg.Redis.TLSCertPath
	if cfg.Redis.MaxConnections > 0 {
		options.MaxConnections = cfg.Redis.MaxConnections
	}
	return options
}

// NewStatistics returns the configured statistics backend
func NewStatistics(cfg *config.Config) core.Statistics {
	if cfg.Stats.Backend == "noop" {
		return noop.NewStatistics()
	}
	options := redisStats.DefaultOptions()
	options.URI = cfg.Redis.URL
	options.Namespace = cfg.Stats.Namespace
	options.TLSSkipVerify = cfg.Redis.TLSSkipVerify
	options.TLSCertPath = cfg.Redis.TLSCertPath
	return redisStats.NewStatistics(options)
}

// NewSink returns the R2 sink when an endpoint is configured, otherwise the
// filesystem sink
func NewSink(cfg *config.Config) (core.Sink, error) {
	if cfg.UsesR2() {
		store, err := s3.New(s3.Options{
			Endpoint:      cfg.Storage.R2Endpoint,
			AccessKey:     cfg.Storage.R2AccessKey,
			SecretKey:     cfg.Storage.R2SecretKey,
			Bucket:        cfg.Storage.R2Bucket,
			PublicURL:     cfg.Storage.R2PublicURL,
			PresignExpiry: time.Duration(cfg.Storage.PresignHours) * time.Hour,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := filesystem.New(cfg.Storage.OutputDir, cfg.Storage.OutputBaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// CommandOptions maps cfg onto command executor options
func CommandOptions(cfg *config.Config) command.Options {
	env := make([]string, 0, len(cfg.Executor.Env))
	for k, v := range cfg.Executor.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return command.Options{
		Command:   cfg.Executor.Command,
		ModelPath: cfg.Executor.ModelPath,
		Env:       env,
		Required:  cfg.Executor.Required,
	}
}

// EngineOptions maps cfg onto worker loop options
func EngineOptions(cfg *config.Config) []core.EngineOption {
	options := []core.EngineOption{
		core.WithPollTimeout(cfg.Worker.PollTimeout()),
		core.WithMaxIdle(cfg.Worker.MaxIdle()),
		core.WithExecutorTimeout(cfg.Worker.ExecutorTimeout()),
		core.WithNotifyTimeout(cfg.Worker.NotifyTimeout()),
	}
	if cfg.Worker.ScratchDir != "" {
		options = append(options, core.WithScratchRoot(cfg.Worker.ScratchDir))
	}
	if cfg.Worker.ContentType != "" {
		options = append(options, core.WithContentType(cfg.Worker.ContentType))
	}
	return options
}

// Register replaces the executor for a queue
func (e *BullEngine) Register(queueName string, executor core.Executor) error {
	return e.registry.Register(queueName, executor)
}

// Run starts the engine and blocks until shutdown. A broker that cannot be
// reached only disables event publishing.
func (e *BullEngine) Run(ctx context.Context) error {
	if e.publisher != nil {
		if err := e.publisher.Connect(ctx); err != nil {
			slog.Warn("Event publishing unavailable, retrying in background", "error", err)
		}
		defer func() {
			if err := e.publisher.Close(); err != nil {
				slog.Error("Error closing event publisher", "error", err)
			}
		}()
	}
	return e.engine.Run(ctx)
}

// MustRun starts the engine and panics on error
func (e *BullEngine) MustRun(ctx context.Context) {
	if err := e.Run(ctx); err != nil {
		panic(fmt.Sprintf("BullEngine.Run failed: %v", err))
	}
}

// Health returns the engine health status
func (e *BullEngine) Health() core.HealthStatus {
	return e.engine.Health()
}

// Component accessors

// GetQueue returns the queue client
func (e *BullEngine) GetQueue() *queue.Client {
	return e.queue
}

// GetStats returns the statistics backend
func (e *BullEngine) GetStats() core.Statistics {
	return e.stats
}

// GetRegistry returns the executor registry
func (e *BullEngine) GetRegistry() *registry.Registry {
	return e.registry
}

// GetSink returns the result sink
func (e *BullEngine) GetSink() core.Sink {
	return e.sink
}

// GetNotifier returns the combined notifier
func (e *BullEngine) GetNotifier() core.Notifier {
	return e.notifier
}
