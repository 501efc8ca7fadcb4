package config

const (
	defaultRedisURL               = "redis://localhost:6379/"
	defaultRedisMaxConnections    = 4
	defaultQueuePrefix            = "bull:ffmpeg-jobs"
	defaultModelType              = "wav2lip"
	defaultMaxRequeues            = 3
	defaultRequeueBackoffMs       = 1000
	defaultMaxIdleSeconds         = 300
	defaultPollTimeoutSeconds     = 5
	defaultExecutorTimeoutSeconds = 1800
	defaultNotifyTimeoutSeconds   = 10
	defaultR2Bucket               = "ffmpeg-rest"
	defaultPresignHours           = 7 * 24
	defaultWebhookTimeoutSeconds  = 10
	defaultAMQPExchange           = "bullworker.events"
	defaultStatsBackend           = "redis"
	defaultStatsNamespace         = "bullworker:"
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Redis: Redis{
			URL:            defaultRedisURL,
			MaxConnections: defaultRedisMaxConnections,
		},
		Queue: Queue{
			Prefix:           defaultQueuePrefix,
			ModelType:        defaultModelType,
			MaxRequeues:      defaultMaxRequeues,
			RequeueBackoffMs: defaultRequeueBackoffMs,
		},
		Worker: Worker{
			MaxIdleSeconds:         defaultMaxIdleSeconds,
			PollTimeoutSeconds:     defaultPollTimeoutSeconds,
			ExecutorTimeoutSeconds: defaultExecutorTimeoutSeconds,
			NotifyTimeoutSeconds:   defaultNotifyTimeoutSeconds,
		},
		Storage: Storage{
			R2Bucket:     defaultR2Bucket,
			PresignHours: defaultPresignHours,
		},
		Webhook: Webhook{
			TimeoutSeconds: defaultWebhookTimeoutSeconds,
			PerJob:         true,
		},
		AMQP: AMQP{
			Exchange: defaultAMQPExchange,
		},
		Stats: Stats{
			Backend:   defaultStatsBackend,
			Namespace: defaultStatsNamespace,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
