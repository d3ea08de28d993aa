package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT"`
	User     string `mapstructure:"user" envconfig:"DB_USER"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type VapiConfig struct {
	BaseURL          string        `mapstructure:"base_url" envconfig:"VAPI_BASE_URL"`
	APIKey           string        `mapstructure:"api_key" envconfig:"VAPI_API_KEY"`
	AssistantID      string        `mapstructure:"assistant_id" envconfig:"VAPI_ASSISTANT_ID"`
	PhoneNumberID    string        `mapstructure:"phone_number_id" envconfig:"VAPI_PHONE_NUMBER_ID"`
	Timeout          time.Duration `mapstructure:"timeout" envconfig:"VAPI_TIMEOUT"`
	UseVapiScheduler bool          `mapstructure:"use_vapi_scheduler" envconfig:"USE_VAPI_SCHEDULER"`
}

type LauncherConfig struct {
	ConcurrencyLimit int           `mapstructure:"concurrency_limit" envconfig:"CONCURRENCY_LIMIT"`
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret" envconfig:"WEBHOOK_SECRET"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"CORS_ALLOWED_ORIGINS"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vapi      VapiConfig      `mapstructure:"vapi"`
	Launcher  LauncherConfig  `mapstructure:"launcher"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// LoadConfig reads config.yml through viper, then lets environment
// variables override individual fields.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if config.Launcher.ConcurrencyLimit <= 0 {
		config.Launcher.ConcurrencyLimit = 2
	}

	return &config, nil
}
