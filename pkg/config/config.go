package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"intake-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Database   DatabaseConfig   `json:"database"`
	Extraction ExtractionConfig `json:"extraction"`
	Messaging  MessagingConfig  `json:"messaging"`
	Logging    LoggingConfig    `json:"logging"`
}

// HTTPConfig holds webhook server configurations
type HTTPConfig struct {
	// HTTP port
	Port int `json:"port" env:"HTTP_PORT" default:"8080"`

	// Whether metrics endpoint is enabled
	EnableMetrics bool `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	// Read timeout for HTTP requests
	ReadTimeout time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`

	// Write timeout for HTTP responses
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds MySQL connection configuration
type DatabaseConfig struct {
	Host     string `json:"host" env:"DB_HOST" default:"localhost"`
	Port     int    `json:"port" env:"DB_PORT" default:"3306"`
	Database string `json:"database" env:"DB_NAME" default:"intake"`
	Username string `json:"username" env:"DB_USER" default:"intake"`
	Password string `json:"-" env:"DB_PASSWORD"`

	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"5m"`
	QueryTimeout    time.Duration `json:"query_timeout" env:"DB_QUERY_TIMEOUT" default:"30s"`
}

// ExtractionConfig holds LLM field-extraction configuration
type ExtractionConfig struct {
	// OpenAI API key, read from the environment only
	APIKey string `json:"-" env:"OPENAI_API_KEY"`

	// Chat completions model used for structured extraction
	Model string `json:"model" env:"EXTRACTION_MODEL" default:"gpt-4o-mini"`

	// Per-request timeout for the extraction call
	RequestTimeout time.Duration `json:"request_timeout" env:"EXTRACTION_TIMEOUT" default:"30s"`

	// Bounded retry count for failed extraction calls
	MaxRetries int `json:"max_retries" env:"EXTRACTION_MAX_RETRIES" default:"2"`

	// Maximum transcript turns the confirmation scan will inspect
	MaxScanTurns int `json:"max_scan_turns" env:"EXTRACTION_MAX_SCAN_TURNS" default:"200"`
}

// MessagingConfig holds AMQP notification configuration
type MessagingConfig struct {
	// AMQP broker URL; empty disables notification publishing
	URL string `json:"-" env:"AMQP_URL"`

	// Queue notifications are published to
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"intake_notifications"`

	// Connection timeout
	ConnectTimeout time.Duration `json:"connect_timeout" env:"AMQP_CONNECT_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging configurations
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format: json, text
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
}

// Load loads the application configuration from .env files and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	// Try loading .env from the usual locations; environment always wins
	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom, _ = filepath.Abs(envFile)
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}

	config := &Config{}

	if err := loadHTTPConfig(&config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadDatabaseConfig(&config.Database); err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}

	if err := loadExtractionConfig(&config.Extraction); err != nil {
		return nil, errors.Wrap(err, "failed to load extraction configuration")
	}

	if err := loadMessagingConfig(&config.Messaging); err != nil {
		return nil, errors.Wrap(err, "failed to load messaging configuration")
	}

	if err := loadLoggingConfig(&config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadHTTPConfig(cfg *HTTPConfig) error {
	cfg.Port = getEnvInt("HTTP_PORT", 8080)
	cfg.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	cfg.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second)
	return nil
}

func loadDatabaseConfig(cfg *DatabaseConfig) error {
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvInt("DB_PORT", 3306)
	cfg.Database = getEnv("DB_NAME", "intake")
	cfg.Username = getEnv("DB_USER", "intake")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.QueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", 30*time.Second)
	return nil
}

func loadExtractionConfig(cfg *ExtractionConfig) error {
	cfg.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.Model = getEnv("EXTRACTION_MODEL", "gpt-4o-mini")
	cfg.RequestTimeout = getEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second)
	cfg.MaxRetries = getEnvInt("EXTRACTION_MAX_RETRIES", 2)
	cfg.MaxScanTurns = getEnvInt("EXTRACTION_MAX_SCAN_TURNS", 200)
	return nil
}

func loadMessagingConfig(cfg *MessagingConfig) error {
	cfg.URL = getEnv("AMQP_URL", "")
	cfg.QueueName = getEnv("AMQP_QUEUE_NAME", "intake_notifications")
	cfg.ConnectTimeout = getEnvDuration("AMQP_CONNECT_TIMEOUT", 5*time.Second)
	return nil
}

func loadLoggingConfig(cfg *LoggingConfig) error {
	cfg.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Format = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	return nil
}

// Validate checks the configuration for inconsistent or out-of-range values
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1, got %d", c.Database.MaxOpenConns)
	}

	if c.Extraction.RequestTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must be positive, got %s", c.Extraction.RequestTimeout)
	}

	if c.Extraction.MaxRetries < 0 {
		return fmt.Errorf("EXTRACTION_MAX_RETRIES must not be negative, got %d", c.Extraction.MaxRetries)
	}

	if c.Extraction.MaxScanTurns < 1 {
		return fmt.Errorf("EXTRACTION_MAX_SCAN_TURNS must be at least 1, got %d", c.Extraction.MaxScanTurns)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// SetupLogger applies the logging configuration to the given logger
func (c *Config) SetupLogger(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
}

// Environment variable helpers

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
