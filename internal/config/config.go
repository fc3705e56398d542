// Package config loads the pipeline's Config struct the way the
// teacher's internal/config does: godotenv for local development, then
// viper layering a YAML file under environment variables, which in turn
// are overridden by a handful of explicit BindEnv entries for the
// variables operators set directly in production.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RedisConfig configures the Redis Streams connection.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	PoolSize   int    `mapstructure:"pool_size"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PipelineConfig holds the tunables named in spec section 8.
type PipelineConfig struct {
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
	WorkerCount        int           `mapstructure:"worker_count"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	DLQEnabled         bool          `mapstructure:"dlq_enabled"`
	DLQMaxRetries      int           `mapstructure:"dlq_max_retries"`
	DLQBackoffBase     float64       `mapstructure:"dlq_backoff_base"`
	ThroughputTarget   int           `mapstructure:"throughput_target"`
	LatencyTargetP95Ms int           `mapstructure:"latency_target_p95_ms"`
	AnomalyWindowSize  int           `mapstructure:"anomaly_window_size"`
	AnomalyThreshold   float64       `mapstructure:"anomaly_threshold"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig configures both the slog edge logger and the logrus
// core logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the fully-resolved application configuration.
type Config struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("pipeline.max_batch_size", 1000)
	v.SetDefault("pipeline.worker_count", 3)
	v.SetDefault("pipeline.block_duration", time.Second)
	v.SetDefault("pipeline.dlq_enabled", true)
	v.SetDefault("pipeline.dlq_max_retries", 3)
	v.SetDefault("pipeline.dlq_backoff_base", 2.0)
	v.SetDefault("pipeline.throughput_target", 5000)
	v.SetDefault("pipeline.latency_target_p95_ms", 50)
	v.SetDefault("pipeline.anomaly_window_size", 100)
	v.SetDefault("pipeline.anomaly_threshold", 3.0)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load resolves Config from (in increasing precedence) defaults, an
// optional ./configs/config.yaml, environment variables, and a fixed
// set of explicit env bindings for the variables operators set
// directly.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("pipeline.max_batch_size", "MAX_BATCH_SIZE")
	_ = v.BindEnv("pipeline.dlq_enabled", "DLQ_ENABLED")
	_ = v.BindEnv("pipeline.dlq_max_retries", "DLQ_MAX_RETRIES")
	_ = v.BindEnv("pipeline.dlq_backoff_base", "DLQ_BACKOFF_BASE")
	_ = v.BindEnv("pipeline.throughput_target", "THROUGHPUT_TARGET")
	_ = v.BindEnv("pipeline.latency_target_p95_ms", "LATENCY_TARGET_P95")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
