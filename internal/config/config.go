package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// QueueConfig drives the worker pool and the per-priority retry policy.
type QueueConfig struct {
	Workers     int            `mapstructure:"workers"`
	PollRate    time.Duration  `mapstructure:"poll_rate"`
	SendTimeout time.Duration  `mapstructure:"send_timeout"`
	StaleClaim  time.Duration  `mapstructure:"stale_claim"`
	High        PriorityPolicy `mapstructure:"high"`
	Normal      PriorityPolicy `mapstructure:"normal"`
	Low         PriorityPolicy `mapstructure:"low"`
}

// PriorityPolicy is the retry budget and initial exponential backoff applied
// to jobs enqueued at a given priority.
type PriorityPolicy struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type ChannelsConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	SMS     SMSConfig     `mapstructure:"sms"`
	Push    PushConfig    `mapstructure:"push"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProviderURL string `mapstructure:"provider_url"`
	APIKey      string `mapstructure:"api_key"`
	From        string `mapstructure:"from"`
}

type SMSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProviderURL string `mapstructure:"provider_url"`
	APIKey      string `mapstructure:"api_key"`
	Sender      string `mapstructure:"sender"`
}

type PushConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProviderURL string `mapstructure:"provider_url"`
	APIKey      string `mapstructure:"api_key"`
}

type WebhookConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SigningSecret string `mapstructure:"signing_secret"`
}

type BulkConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	MaxConcurrency  int `mapstructure:"max_concurrency"`
	MaxRequestItems int `mapstructure:"max_request_items"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RetentionConfig struct {
	NotificationTTL time.Duration `mapstructure:"notification_ttl"`
	JobTTL          time.Duration `mapstructure:"job_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("notifyd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/notifyd")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NOTIFYD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/notifyd.db")

	viper.SetDefault("queue.workers", 50)
	viper.SetDefault("queue.poll_rate", 1*time.Second)
	viper.SetDefault("queue.send_timeout", 30*time.Second)
	viper.SetDefault("queue.stale_claim", 5*time.Minute)
	viper.SetDefault("queue.high.max_attempts", 5)
	viper.SetDefault("queue.high.initial_backoff", 1*time.Second)
	viper.SetDefault("queue.normal.max_attempts", 3)
	viper.SetDefault("queue.normal.initial_backoff", 2*time.Second)
	viper.SetDefault("queue.low.max_attempts", 2)
	viper.SetDefault("queue.low.initial_backoff", 5*time.Second)

	viper.SetDefault("channels.email.enabled", true)
	viper.SetDefault("channels.email.from", "notifyd@localhost")
	viper.SetDefault("channels.sms.enabled", true)
	viper.SetDefault("channels.push.enabled", true)
	viper.SetDefault("channels.webhook.enabled", true)

	viper.SetDefault("bulk.batch_size", 100)
	viper.SetDefault("bulk.max_concurrency", 5)
	viper.SetDefault("bulk.max_request_items", 10000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("retention.notification_ttl", 30*24*time.Hour)
	viper.SetDefault("retention.job_ttl", 7*24*time.Hour)
	viper.SetDefault("retention.sweep_interval", 1*time.Hour)
}

// Policy returns the retry policy for a priority name ("high"/"normal"/"low").
func (q QueueConfig) Policy(priority string) PriorityPolicy {
	switch priority {
	case "high":
		return q.High
	case "low":
		return q.Low
	default:
		return q.Normal
	}
}
