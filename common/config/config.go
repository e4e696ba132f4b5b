package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Process   ProcessConfig   `mapstructure:"process"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	// InternalSecret lets service-to-service calls bypass rate limits
	InternalSecret string `mapstructure:"internal_secret"`

	GlobalRateLimit int64 `mapstructure:"global_rate_limit"`
	UserRateLimit   int64 `mapstructure:"user_rate_limit"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Database    string        `mapstructure:"database"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	SSLMode     string        `mapstructure:"sslmode"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds template snapshot cache settings
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Capacity   int           `mapstructure:"capacity"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof    bool   `mapstructure:"enable_pprof"`
	PprofPort      int    `mapstructure:"pprof_port"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
	TracingBackend string `mapstructure:"tracing_backend"`
}

// ProcessConfig tunes the process engine's calling layer
type ProcessConfig struct {
	LockTTL                time.Duration `mapstructure:"lock_ttl"`
	StartRetries           int           `mapstructure:"start_retries"`
	TaskDueDays            int           `mapstructure:"task_due_days"`
	RunStartLimitPerMinute int64         `mapstructure:"run_start_limit_per_minute"`
	EventStream            string        `mapstructure:"event_stream"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"service.port":        "PORT",
	"service.environment": "ENVIRONMENT",
	"service.log_level":   "LOG_LEVEL",
	"service.log_format":  "LOG_FORMAT",

	"service.internal_secret":   "INTERNAL_SERVICE_SECRET",
	"service.global_rate_limit": "GLOBAL_RATE_LIMIT",
	"service.user_rate_limit":   "USER_RATE_LIMIT",

	"database.host":          "POSTGRES_HOST",
	"database.port":          "POSTGRES_PORT",
	"database.database":      "POSTGRES_DB",
	"database.user":          "POSTGRES_USER",
	"database.password":      "POSTGRES_PASSWORD",
	"database.sslmode":       "POSTGRES_SSLMODE",
	"database.max_conns":     "POSTGRES_MAX_CONNS",
	"database.min_conns":     "POSTGRES_MIN_CONNS",
	"database.max_idle_time": "POSTGRES_MAX_IDLE_TIME",
	"database.max_lifetime":  "POSTGRES_MAX_LIFETIME",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"cache.enabled":     "CACHE_ENABLED",
	"cache.capacity":    "CACHE_CAPACITY",
	"cache.default_ttl": "CACHE_DEFAULT_TTL",

	"telemetry.enable_pprof":    "ENABLE_PPROF",
	"telemetry.pprof_port":      "PPROF_PORT",
	"telemetry.enable_tracing":  "ENABLE_TRACING",
	"telemetry.tracing_backend": "TRACING_BACKEND",

	"process.lock_ttl":                   "PROCESS_LOCK_TTL",
	"process.start_retries":              "PROCESS_START_RETRIES",
	"process.task_due_days":              "TASK_DUE_DAYS",
	"process.run_start_limit_per_minute": "RUN_START_LIMIT_PER_MINUTE",
	"process.event_stream":               "PROCESS_EVENT_STREAM",
}

func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("service.name", serviceName)
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "text")
	v.SetDefault("service.internal_secret", "")
	v.SetDefault("service.global_rate_limit", 1000)
	v.SetDefault("service.user_rate_limit", 300)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "console")
	v.SetDefault("database.user", "console")
	v.SetDefault("database.password", "console")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_idle_time", 30*time.Minute)
	v.SetDefault("database.max_lifetime", time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.capacity", 1024)
	v.SetDefault("cache.default_ttl", 30*time.Second)

	v.SetDefault("telemetry.enable_pprof", false)
	v.SetDefault("telemetry.pprof_port", 6060)
	v.SetDefault("telemetry.enable_tracing", false)
	v.SetDefault("telemetry.tracing_backend", "stdout")

	v.SetDefault("process.lock_ttl", 10*time.Second)
	v.SetDefault("process.start_retries", 3)
	v.SetDefault("process.task_due_days", 7)
	v.SetDefault("process.run_start_limit_per_minute", 60)
	v.SetDefault("process.event_stream", "process.events")
}

// Load loads configuration from defaults, an optional config file named by
// CONFIG_FILE (or console.yaml in the working directory) and the environment
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	setDefaults(v, serviceName)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return err
	}
	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("console")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Process.StartRetries < 1 {
		return fmt.Errorf("process start_retries must be >= 1")
	}

	if c.Process.TaskDueDays < 1 {
		return fmt.Errorf("task_due_days must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// TaskDueWindow converts TaskDueDays to a duration
func (c *Config) TaskDueWindow() time.Duration {
	return time.Duration(c.Process.TaskDueDays) * 24 * time.Hour
}
