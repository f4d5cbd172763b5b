// Package config provides centralized configuration management for the
// run backend and the command line front end. Settings come from environment
// variables with sensible defaults and are validated on startup to fail fast
// on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Run       RunConfig
	Retention RetentionConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Schema    SchemaConfig
	Export    ExportConfig
	Remote    RemoteConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty the server keeps
	// runs and saved mappings in memory.
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

	// LocalPath is the SQLite file used by the CLI for saved mapping configurations.
	LocalPath string `env:"MDO_LOCAL_DB" default:"mdo.db"`
}

// RunConfig holds validation run settings shared by the controller and the backend.
type RunConfig struct {
	// PollInterval is the delay between run status polls (default: 2s)
	PollInterval time.Duration `env:"RUN_POLL_INTERVAL" default:"2s"`

	// PollTimeout bounds how long a run may stay pending before it fails (default: 10m)
	PollTimeout time.Duration `env:"RUN_POLL_TIMEOUT" default:"10m"`

	// PollMaxBackoff caps the delay between polls after consecutive errors (default: 30s)
	PollMaxBackoff time.Duration `env:"RUN_POLL_MAX_BACKOFF" default:"30s"`

	// LocalDelay is the artificial processing delay of local evaluation (default: 500ms)
	LocalDelay time.Duration `env:"RUN_LOCAL_DELAY" default:"500ms"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"RUN_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of runs processed in parallel (default: 5)
	MaxConcurrent int `env:"RUN_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a run waits for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT_TIME" default:"30s"`

	// ProcessTimeout is the maximum duration for processing a single run (default: 10m)
	ProcessTimeout time.Duration `env:"RUN_PROCESS_TIMEOUT" default:"10m"`
}

// RetentionConfig holds run history retention settings.
type RetentionConfig struct {
	// Schedule is a cron expression for the purge job (default: @daily)
	Schedule string `env:"RETENTION_SCHEDULE" default:"@daily"`

	// MaxAge is how long finished runs are kept (default: 30 days)
	MaxAge time.Duration `env:"RETENTION_MAX_AGE" default:"720h"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// RateLimit is the number of requests allowed per client IP per minute; 0 disables (default: 100)
	RateLimit int `env:"RATE_LIMIT" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SchemaConfig holds schema template catalog settings.
type SchemaConfig struct {
	// CatalogPath is an optional YAML file of extra templates merged after the built-ins.
	CatalogPath string `env:"SCHEMA_CATALOG_PATH"`
}

// ExportConfig holds object storage settings for export bundles.
// Export is disabled when Endpoint is empty.
type ExportConfig struct {
	Endpoint  string `env:"EXPORT_ENDPOINT"`
	AccessKey string `env:"EXPORT_ACCESS_KEY"`
	SecretKey string `env:"EXPORT_SECRET_KEY"`
	Bucket    string `env:"EXPORT_BUCKET" default:"mdo-exports"`
	Region    string `env:"EXPORT_REGION"`
	Prefix    string `env:"EXPORT_PREFIX" default:"runs"`
	UseSSL    bool   `env:"EXPORT_USE_SSL" default:"false"`
}

// RemoteConfig holds the command line front end's default run backend.
type RemoteConfig struct {
	// URL is the run backend base URL; empty runs validation in process
	URL string `env:"MDO_REMOTE_URL"`

	// APIKey is sent as X-API-Key on every backend request
	APIKey string `env:"MDO_API_KEY"`
}

// Enabled reports whether an object store endpoint is configured.
func (c *ExportConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
