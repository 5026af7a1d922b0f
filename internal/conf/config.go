package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// ErrConcurrencyConfigMissing is returned when the concurrency section, or
	// its transactions_enabled switch, is absent. The switch has no default on
	// purpose: an unset value must never silently pick a strategy.
	ErrConcurrencyConfigMissing = errors.New("concurrency config missing or transactions_enabled not set")
)

// AppConfig holds the application configuration.
type AppConfig struct {
	Mode               string `mapstructure:"mode"`
	Name               string `mapstructure:"name"`
	Version            string `mapstructure:"version"`
	TimeZone           string `mapstructure:"time_zone"`
	*LogConfig         `mapstructure:"log"`
	*MongodbConfig     `mapstructure:"mongodb"`
	*RedisConfig       `mapstructure:"redis"`
	*RabbitMQConfig    `mapstructure:"rabbitmq"`
	*WorkerConfig      `mapstructure:"worker"`
	*ConcurrencyConfig `mapstructure:"concurrency"`
	*AuditConfig       `mapstructure:"audit"`
	*OutboxConfig      `mapstructure:"outbox"`
}

// MongodbConfig holds the MongoDB configuration.
type MongodbConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RedisConfig holds the Redis client configuration, used when the outbox
// backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RabbitMQConfig holds the RabbitMQ configuration for the relay worker.
type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// WorkerConfig holds all background worker configurations.
type WorkerConfig struct {
	Outbox OutboxWorkerConfig `mapstructure:"outbox"`
}

// OutboxWorkerConfig holds the configuration for the outbox polling worker.
type OutboxWorkerConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	BatchSize       int `mapstructure:"batch_size"`
}

// ConcurrencyConfig selects the mutation strategy. TransactionsEnabled is a
// pointer so that an omitted value can be told apart from an explicit false.
type ConcurrencyConfig struct {
	TransactionsEnabled *bool `mapstructure:"transactions_enabled"`
	RetryAttempts       int   `mapstructure:"retry_attempts"`
	RetryDelayMs        int   `mapstructure:"retry_delay_ms"`
}

// Validate checks that the strategy switch was set explicitly.
func (c *ConcurrencyConfig) Validate() error {
	if c == nil || c.TransactionsEnabled == nil {
		return ErrConcurrencyConfigMissing
	}
	return nil
}

// AuditConfig controls whether and how mutations are recorded.
type AuditConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	StorageMode       string `mapstructure:"storage_mode"`
	DispatchMode      string `mapstructure:"dispatch_mode"`
	FailOnError       bool   `mapstructure:"fail_on_error"`
	LogFailedAttempts bool   `mapstructure:"log_failed_attempts"`
}

// OutboxConfig configures the durable audit-event queue.
type OutboxConfig struct {
	Backend          string `mapstructure:"backend"`
	MaxRetryAttempts int    `mapstructure:"max_retry_attempts"`
	Topic            string `mapstructure:"topic"`
}

// NewConfig loads the application configuration from a file.
func NewConfig(confFile string) (*AppConfig, error) {
	// Load .env file. It's okay if it doesn't exist. Errors are ignored.
	// This is mainly for local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(confFile)

	// Replace dots in keys with underscores for environment variables (e.g., `mongodb.host` -> `MONGODB_HOST`).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Enable automatic reading of environment variables.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var conf AppConfig
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := conf.ConcurrencyConfig.Validate(); err != nil {
		return nil, err
	}

	// Set timezone
	if conf.TimeZone != "" {
		loc, err := time.LoadLocation(conf.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone: %w", err)
		}
		time.Local = loc
	}

	return &conf, nil
}
