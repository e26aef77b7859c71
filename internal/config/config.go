package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"driftq/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Remote     RemoteConfig     `yaml:"remote"`
	Push       PushConfig       `yaml:"push"`
	Queue      QueueConfig      `yaml:"queue"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig describes the delivery endpoint the coordinator talks to.
type RemoteConfig struct {
	BaseURL              string `yaml:"base_url"`
	HealthPath           string `yaml:"health_path"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	ProbeIntervalSeconds int    `yaml:"probe_interval_seconds"`
}

func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (r RemoteConfig) ProbeInterval() time.Duration {
	return time.Duration(r.ProbeIntervalSeconds) * time.Second
}

type PushConfig struct {
	Enabled        bool   `yaml:"enabled"`
	VAPIDPublicKey string `yaml:"vapid_public_key"`
	NotifyIcon     string `yaml:"notify_icon"`
	NotifyBadge    string `yaml:"notify_badge"`
}

type QueueConfig struct {
	BatchSize           int    `yaml:"batch_size"`
	RetrySpacingSeconds int    `yaml:"retry_spacing_seconds"`
	SyncTag             string `yaml:"sync_tag"`
}

func (q QueueConfig) RetrySpacing() time.Duration {
	return time.Duration(q.RetrySpacingSeconds) * time.Second
}

type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Address     string `yaml:"address"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	WakeChannel string `yaml:"wake_channel"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Header  string   `yaml:"header"`
	APIKeys []string `yaml:"api_keys"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; referenced variables may come from the real environment.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote base_url is invalid: %w", err)
	}

	if c.Push.Enabled && c.Push.VAPIDPublicKey == "" {
		return errors.New("push.vapid_public_key is required when push is enabled")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "driftq"
	}

	if c.Remote.HealthPath == "" {
		c.Remote.HealthPath = "/healthz"
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = 15
	}
	if c.Remote.ProbeIntervalSeconds == 0 {
		c.Remote.ProbeIntervalSeconds = 30
	}

	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = models.DefaultDeliveryBatchSize
	}
	if c.Queue.RetrySpacingSeconds == 0 {
		c.Queue.RetrySpacingSeconds = models.DefaultRetrySpacingSeconds
	}
	if c.Queue.SyncTag == "" {
		c.Queue.SyncTag = models.DefaultSyncTag
	}

	if c.Redis.WakeChannel == "" {
		c.Redis.WakeChannel = models.DefaultWakeChannel
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.Header == "" {
		c.API.Auth.Header = "x-api-key"
	}
}
