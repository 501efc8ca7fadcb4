package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BranchIntl/bullworker/errors"
)

type lookupFunc func(string) (string, bool)

// applyEnv overrides fields from environment variables. Unset and empty
// variables leave the current value in place.
func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	// REDIS_PROVIDER names the variable that holds the URL
	if provider := env.str("REDIS_PROVIDER"); provider != "" {
		env.setString(&c.Redis.URL, provider)
	} else {
		env.setString(&c.Redis.URL, "REDIS_URL")
	}
	env.setString(&c.Redis.TLSCertPath, "REDIS_TLS_CERT")
	env.setBool(&c.Redis.TLSSkipVerify, "REDIS_INSECURE_TLS")

	env.setString(&c.Queue.Prefix, "QUEUE_PREFIX")
	env.setString(&c.Queue.ModelType, "MODEL_TYPE")
	env.setString(&c.Queue.Name, "QUEUE_NAME")
	env.setInt(&c.Queue.MaxRequeues, "MAX_REQUEUES")
	env.setBool(&c.Queue.DisableScripts, "QUEUE_DISABLE_SCRIPTS")

	env.setInt(&c.Worker.MaxIdleSeconds, "MAX_IDLE_SECONDS")
	env.setInt(&c.Worker.PollTimeoutSeconds, "POLL_TIMEOUT_SECONDS")
	env.setInt(&c.Worker.ExecutorTimeoutSeconds, "EXECUTOR_TIMEOUT_SECONDS")
	env.setString(&c.Worker.ScratchDir, "SCRATCH_DIR")
	env.setString(&c.Worker.ContentType, "CONTENT_TYPE")

	if command := env.str("EXECUTOR_COMMAND"); command != "" {
		c.Executor.Command = strings.Fields(command)
	}
	env.setString(&c.Executor.ModelPath, "MODEL_PATH")
	if c.Executor.ModelPath == "" && c.Queue.ModelType != "" {
		env.setString(&c.Executor.ModelPath, modelPathVar(c.Queue.ModelType))
	}

	env.setString(&c.Storage.R2Endpoint, "R2_ENDPOINT")
	env.setString(&c.Storage.R2AccessKey, "R2_ACCESS_KEY")
	env.setString(&c.Storage.R2SecretKey, "R2_SECRET_KEY")
	env.setString(&c.Storage.R2Bucket, "R2_BUCKET")
	env.setString(&c.Storage.R2PublicURL, "R2_PUBLIC_URL")
	env.setString(&c.Storage.OutputDir, "OUTPUT_DIR")
	env.setString(&c.Storage.OutputBaseURL, "OUTPUT_BASE_URL")

	env.setString(&c.Webhook.URL, "API_WEBHOOK_URL")
	env.setString(&c.Webhook.Secret, "WEBHOOK_SECRET")

	env.setString(&c.AMQP.URL, "AMQP_URL")
	env.setString(&c.AMQP.Exchange, "AMQP_EXCHANGE")

	env.setString(&c.Stats.Backend, "STATS_BACKEND")
	env.setString(&c.Stats.Namespace, "STATS_NAMESPACE")

	env.setString(&c.Logging.Level, "LOG_LEVEL")
	env.setString(&c.Logging.Format, "LOG_FORMAT")

	return env.err()
}

// modelPathVar returns the per-model variable name, e.g. ZIMAGE_MODEL_PATH
func modelPathVar(modelType string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(modelType))
	return name + "_MODEL_PATH"
}

type envReader struct {
	lookup lookupFunc
	errs   []string
}

func (e *envReader) str(key string) string {
	value, ok := e.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func (e *envReader) setString(dst *string, key string) {
	if value := e.str(key); value != "" {
		*dst = value
	}
}

func (e *envReader) setInt(dst *int, key string) {
	value := e.str(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not an integer", key, value))
		return
	}
	*dst = n
}

func (e *envReader) setBool(dst *bool, key string) {
	value := e.str(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a boolean", key, value))
		return
	}
	*dst = b
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(e.errs, "; "))
}
