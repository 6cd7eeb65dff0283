// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Upload   UploadConfig
	AI       AIConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs or IPs whose
	// X-Forwarded-For / X-Real-IP headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates the datasets table on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// StoreConfig selects the dataset store.
type StoreConfig struct {
	// Driver is postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// Dir is where uploaded files are stored (default: uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload request (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`
}

// AIConfig holds metadata generator settings. Generation is disabled
// when Endpoint is empty.
type AIConfig struct {
	// Endpoint is the full chat completions URL
	Endpoint string `env:"AI_ENDPOINT" envAlt:"AZURE_OPENAI_ENDPOINT"`

	// APIKey authenticates against the endpoint
	APIKey string `env:"AI_API_KEY" envAlt:"AZURE_OPENAI_API_KEY"`

	// Model is the model or deployment name (default: gpt-4o-mini)
	Model string `env:"AI_MODEL" default:"gpt-4o-mini"`

	// APIVersion enables Azure OpenAI authentication when set
	APIVersion string `env:"AI_API_VERSION" envAlt:"AZURE_OPENAI_API_VERSION"`

	// Timeout bounds a single generator call (default: 60s)
	Timeout time.Duration `env:"AI_TIMEOUT" default:"60s"`

	// Retries is the number of attempts after the first (default: 2)
	Retries int `env:"AI_RETRIES" default:"2"`

	// Backoff is the delay before the first retry, doubled after (default: 1s)
	Backoff time.Duration `env:"AI_BACKOFF" default:"1s"`

	// QueueSize is the number of pending generation jobs (default: 100)
	QueueSize int `env:"AI_QUEUE_SIZE" default:"100"`

	// Workers is the number of concurrent generation jobs (default: 2)
	Workers int `env:"AI_WORKERS" default:"2"`

	// BreakerMaxRequests is the number of probes allowed while half-open (default: 3)
	BreakerMaxRequests uint32 `env:"AI_BREAKER_MAX_REQUESTS" default:"3"`

	// BreakerInterval resets failure counts while closed (default: 10s)
	BreakerInterval time.Duration `env:"AI_BREAKER_INTERVAL" default:"10s"`

	// BreakerTimeout is how long the breaker stays open (default: 30s)
	BreakerTimeout time.Duration `env:"AI_BREAKER_TIMEOUT" default:"30s"`

	// BreakerMinRequests is the sample size before tripping (default: 5)
	BreakerMinRequests uint32 `env:"AI_BREAKER_MIN_REQUESTS" default:"5"`

	// BreakerFailureRatio trips the breaker at or above this ratio (default: 0.6)
	BreakerFailureRatio float64 `env:"AI_BREAKER_FAILURE_RATIO" default:"0.6"`
}

// Enabled reports whether an endpoint is configured.
func (c *AIConfig) Enabled() bool {
	return c.Endpoint != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is where metrics are served (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
