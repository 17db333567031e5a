package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/postshare/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	LinkedIn  LinkedInConfig  `yaml:"linkedin"`
	Operator  OperatorConfig  `yaml:"operator"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// SchedulerConfig holds the timing knobs of the share pipeline.
type SchedulerConfig struct {
	// Buffer after "now" for share-now posts, lets the triggering write settle.
	ShareNowDelay string `yaml:"share_now_delay"`
	// Buffer after share_at for timed posts, tolerates clock skew and replication lag.
	ShareAtDelay     string `yaml:"share_at_delay"`
	ExecutionTimeout string `yaml:"execution_timeout"`

	ReconcileEnabled bool   `yaml:"reconcile_enabled"`
	ReconcileSpec    string `yaml:"reconcile_spec"`
	ReconcileAfter   string `yaml:"reconcile_after"`
	ReconcileBatch   int    `yaml:"reconcile_batch"`

	StatsInterval string `yaml:"stats_interval"`
}

type QueueConfig struct {
	// memory, redis or sqs
	Driver     string      `yaml:"driver"`
	RetryDelay string      `yaml:"retry_delay"`
	Redis      RedisConfig `yaml:"redis"`
	SQS        SQSConfig   `yaml:"sqs"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PollInterval string `yaml:"poll_interval"`
	BatchSize    int    `yaml:"batch_size"`
}

type SQSConfig struct {
	QueueURL    string `yaml:"queue_url"`
	Region      string `yaml:"region"`
	EndpointURL string `yaml:"endpoint_url"`
}

type LinkedInConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	Timeout         string  `yaml:"timeout"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	Burst           int     `yaml:"burst"`
	BreakerFailures uint32  `yaml:"breaker_failures"`
	BreakerTimeout  string  `yaml:"breaker_timeout"`
}

type OperatorConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
}

const (
	QueueDriverMemory = "memory"
	QueueDriverRedis  = "redis"
	QueueDriverSQS    = "sqs"
)

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5334
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.TimeZone == "" {
		c.Database.TimeZone = "UTC"
	}

	if c.Scheduler.ShareNowDelay == "" {
		c.Scheduler.ShareNowDelay = "10s"
	}
	if c.Scheduler.ShareAtDelay == "" {
		c.Scheduler.ShareAtDelay = "45s"
	}
	if c.Scheduler.ExecutionTimeout == "" {
		c.Scheduler.ExecutionTimeout = "30s"
	}
	if c.Scheduler.ReconcileSpec == "" {
		c.Scheduler.ReconcileSpec = "@every 5m"
	}
	if c.Scheduler.ReconcileAfter == "" {
		c.Scheduler.ReconcileAfter = "10m"
	}
	if c.Scheduler.ReconcileBatch == 0 {
		c.Scheduler.ReconcileBatch = 100
	}
	if c.Scheduler.StatsInterval == "" {
		c.Scheduler.StatsInterval = "1h"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueDriverMemory
	}
	if c.Queue.RetryDelay == "" {
		c.Queue.RetryDelay = "30s"
	}
	if c.Queue.Redis.Addr == "" {
		c.Queue.Redis.Addr = "localhost:6379"
	}
	if c.Queue.Redis.PollInterval == "" {
		c.Queue.Redis.PollInterval = "1s"
	}
	if c.Queue.Redis.BatchSize == 0 {
		c.Queue.Redis.BatchSize = 50
	}

	if c.LinkedIn.Endpoint == "" {
		c.LinkedIn.Endpoint = "https://api.linkedin.com/v2/ugcPosts"
	}
	if c.LinkedIn.Timeout == "" {
		c.LinkedIn.Timeout = "15s"
	}
	if c.LinkedIn.RatePerSec == 0 {
		c.LinkedIn.RatePerSec = 5
	}
	if c.LinkedIn.Burst == 0 {
		c.LinkedIn.Burst = 1
	}
	if c.LinkedIn.BreakerFailures == 0 {
		c.LinkedIn.BreakerFailures = 5
	}
	if c.LinkedIn.BreakerTimeout == "" {
		c.LinkedIn.BreakerTimeout = "30s"
	}
}

// Validate checks that every duration parses and the queue driver is known.
func (c *Config) Validate() error {
	durations := map[string]string{
		"scheduler.share_now_delay":   c.Scheduler.ShareNowDelay,
		"scheduler.share_at_delay":    c.Scheduler.ShareAtDelay,
		"scheduler.execution_timeout": c.Scheduler.ExecutionTimeout,
		"scheduler.reconcile_after":   c.Scheduler.ReconcileAfter,
		"scheduler.stats_interval":    c.Scheduler.StatsInterval,
		"queue.retry_delay":           c.Queue.RetryDelay,
		"queue.redis.poll_interval":   c.Queue.Redis.PollInterval,
		"linkedin.timeout":            c.LinkedIn.Timeout,
		"linkedin.breaker_timeout":    c.LinkedIn.BreakerTimeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("negative duration for %s: %s", key, value)
		}
	}

	switch c.Queue.Driver {
	case QueueDriverMemory, QueueDriverRedis:
	case QueueDriverSQS:
		if c.Queue.SQS.QueueURL == "" {
			return fmt.Errorf("queue.sqs.queue_url is required for the sqs driver")
		}
	default:
		return fmt.Errorf("unknown queue driver: %s", c.Queue.Driver)
	}

	return nil
}

// Duration parses a config duration. Call it only after Validate succeeded.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
