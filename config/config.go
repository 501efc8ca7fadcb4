package config

import (
	_ "embed"
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Redis contains the queue store connection.
type Redis struct {
	URL            string `toml:"url"`
	MaxConnections int    `toml:"max_connections"`
	TLSSkipVerify  bool   `toml:"tls_skip_verify"`
	TLSCertPath    string `toml:"tls_cert_path"`
}

// Queue contains the producer's key layout and the claim behavior.
type Queue struct {
	Prefix string `toml:"prefix"`

	// ModelType selects the queue "generate:<model_type>" unless Name is set
	ModelType        string `toml:"model_type"`
	Name             string `toml:"name"`
	MaxRequeues      int    `toml:"max_requeues"`
	RequeueBackoffMs int    `toml:"requeue_backoff_ms"`
	PollIntervalMs   int    `toml:"poll_interval_ms"`
	DisableScripts   bool   `toml:"disable_scripts"`
	UseNumber        bool   `toml:"use_number"`
}

// Worker contains the worker loop timing.
type Worker struct {
	MaxIdleSeconds         int    `toml:"max_idle_seconds"`
	PollTimeoutSeconds     int    `toml:"poll_timeout_seconds"`
	ExecutorTimeoutSeconds int    `toml:"executor_timeout_seconds"`
	NotifyTimeoutSeconds   int    `toml:"notify_timeout_seconds"`
	ScratchDir             string `toml:"scratch_dir"`
	ContentType            string `toml:"content_type"`
}

// Executor contains the generation command.
type Executor struct {
	Command   []string          `toml:"command"`
	ModelPath string            `toml:"model_path"`
	Env       map[string]string `toml:"env"`
	Required  []string          `toml:"required"`
}

// Storage contains the result sink. R2 is used when an endpoint is set,
// otherwise artifacts are copied to OutputDir.
type Storage struct {
	R2Endpoint    string `toml:"r2_endpoint"`
	R2AccessKey   string `toml:"r2_access_key"`
	R2SecretKey   string `toml:"r2_secret_key"`
	R2Bucket      string `toml:"r2_bucket"`
	R2PublicURL   string `toml:"r2_public_url"`
	PresignHours  int    `toml:"presign_hours"`
	OutputDir     string `toml:"output_dir"`
	OutputBaseURL string `toml:"output_base_url"`
}

// Webhook contains HTTP notification settings.
type Webhook struct {
	URL            string `toml:"url"`
	Secret         string `toml:"secret"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PerJob         bool   `toml:"per_job"`
}

// AMQP contains RabbitMQ event publishing settings. Disabled when URL is empty.
type AMQP struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

// Stats contains the statistics backend.
type Stats struct {
	Backend   string `toml:"backend"`
	Namespace string `toml:"namespace"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the complete worker configuration.
type Config struct {
	Redis    Redis    `toml:"redis"`
	Queue    Queue    `toml:"queue"`
	Worker   Worker   `toml:"worker"`
	Executor Executor `toml:"executor"`
	Storage  Storage  `toml:"storage"`
	Webhook  Webhook  `toml:"webhook"`
	AMQP     AMQP     `toml:"amqp"`
	Stats    Stats    `toml:"stats"`
	Logging  Logging  `toml:"logging"`
}

// Load builds a Config from defaults, an optional TOML file, .env files and
// the environment, in that order. An empty path looks for bullworker.toml in
// the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, err
		}
	}

	// .env.local first so it wins; godotenv never overrides a set variable
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return path, true, nil
	}

	projectPath, err := filepath.Abs("bullworker.toml")
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(projectPath)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return projectPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return projectPath, !info.IsDir(), nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SampleConfig returns a commented configuration file.
func SampleConfig() string {
	return sampleConfig
}

func (c *Config) normalize() {
	c.Queue.Prefix = strings.TrimRight(strings.TrimSpace(c.Queue.Prefix), ":")
	c.Queue.ModelType = strings.TrimSpace(c.Queue.ModelType)
	c.Queue.Name = strings.TrimSpace(c.Queue.Name)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Stats.Backend = strings.ToLower(strings.TrimSpace(c.Stats.Backend))
}

// QueueName is the job type this worker claims.
func (c *Config) QueueName() string {
	if c.Queue.Name != "" {
		return c.Queue.Name
	}
	if c.Queue.ModelType == "" {
		return ""
	}
	return "generate:" + c.Queue.ModelType
}

// UsesR2 reports whether artifacts go to S3-compatible storage.
func (c *Config) UsesR2() bool {
	return strings.TrimSpace(c.Storage.R2Endpoint) != ""
}

func (w Worker) MaxIdle() time.Duration         { return seconds(w.MaxIdleSeconds) }
func (w Worker) PollTimeout() time.Duration     { return seconds(w.PollTimeoutSeconds) }
func (w Worker) ExecutorTimeout() time.Duration { return seconds(w.ExecutorTimeoutSeconds) }
func (w Worker) NotifyTimeout() time.Duration   { return seconds(w.NotifyTimeoutSeconds) }

func (q Queue) RequeueBackoff() time.Duration {
	return time.Duration(q.RequeueBackoffMs) * time.Millisecond
}

func (q Queue) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
