package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const DefaultExperimentConfig = "experiment_config.yaml"

type AppConfig struct {
	ExperimentConfigPath string
	DatabaseURL          string
	RabbitMQURL          string
	RedisSentinelHosts   string
	RedisMasterName      string
	RedisUrl             string
	OTLPEndpoint         string
	LogLevel             string
	ServiceName          string
	ShutdownTimeout      time.Duration
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found")
	}

	config := &AppConfig{
		ExperimentConfigPath: os.Getenv("EXPERIMENT_CONFIG"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		RedisSentinelHosts:   os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:      os.Getenv("REDIS_MASTER"),
		RedisUrl:             os.Getenv("REDIS_URL"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		ServiceName:          os.Getenv("SERVICE_NAME"),
		ShutdownTimeout:      parseDuration(os.Getenv("SHUTDOWN_TIMEOUT"), 30*time.Second),
	}

	if config.ExperimentConfigPath == "" {
		config.ExperimentConfigPath = DefaultExperimentConfig
	}
	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "fuzzexp" // Default service name
	}
	if config.RedisSentinelHosts != "" && config.RedisMasterName == "" {
		logger.Fatal("REDIS_MASTER environment variable is required when REDIS_SENTINEL_HOSTS is set")
	}

	return config
}

// optional integrations are switched on by their connection settings
func (c *AppConfig) RedisEnabled() bool {
	return c.RedisUrl != "" || c.RedisSentinelHosts != ""
}

func (c *AppConfig) DatabaseEnabled() bool {
	return c.DatabaseURL != ""
}

func (c *AppConfig) RabbitMQEnabled() bool {
	return c.RabbitMQURL != ""
}

func (c *AppConfig) TelemetryEnabled() bool {
	return c.OTLPEndpoint != ""
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
