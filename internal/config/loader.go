package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL != "" {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Run lifecycle
	if c.Run.PollInterval <= 0 {
		errs = append(errs, "RUN_POLL_INTERVAL must be positive")
	}
	if c.Run.PollTimeout < c.Run.PollInterval {
		errs = append(errs, fmt.Sprintf("RUN_POLL_TIMEOUT (%s) must be >= RUN_POLL_INTERVAL (%s)",
			c.Run.PollTimeout, c.Run.PollInterval))
	}
	if c.Run.PollMaxBackoff < c.Run.PollInterval {
		errs = append(errs, "RUN_POLL_MAX_BACKOFF must be >= RUN_POLL_INTERVAL")
	}
	if c.Run.LocalDelay < 0 {
		errs = append(errs, "RUN_LOCAL_DELAY must be non-negative")
	}
	if c.Run.MaxFileSize <= 0 {
		errs = append(errs, "RUN_MAX_FILE_SIZE must be positive")
	}
	if c.Run.MaxConcurrent <= 0 {
		errs = append(errs, "RUN_MAX_CONCURRENT must be positive")
	}
	if c.Run.MaxWaitTime <= 0 {
		errs = append(errs, "RUN_MAX_WAIT_TIME must be positive")
	}
	if c.Run.ProcessTimeout <= 0 {
		errs = append(errs, "RUN_PROCESS_TIMEOUT must be positive")
	}

	if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("RETENTION_SCHEDULE (%q) is not a valid cron expression: %v", c.Retention.Schedule, err))
	}
	if c.Retention.MaxAge <= 0 {
		errs = append(errs, "RETENTION_MAX_AGE must be positive")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Export.Enabled() {
		if strings.Contains(c.Export.Endpoint, "/") {
			errs = append(errs, fmt.Sprintf("EXPORT_ENDPOINT (%q) must be host[:port] without scheme or path", c.Export.Endpoint))
		}
		if c.Export.Bucket == "" {
			errs = append(errs, "EXPORT_BUCKET is required when EXPORT_ENDPOINT is set")
		}
		if c.Export.AccessKey == "" || c.Export.SecretKey == "" {
			errs = append(errs, "EXPORT_ACCESS_KEY and EXPORT_SECRET_KEY are required when EXPORT_ENDPOINT is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and export credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	if c.Database.URL != "" {
		b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
			c.Database.MaxConns, c.Database.MinConns))
	} else {
		b.WriteString("Database: {URL: <memory>}, ")
	}
	b.WriteString(fmt.Sprintf("Run: {PollInterval: %s, PollTimeout: %s, MaxConcurrent: %d}, ",
		c.Run.PollInterval, c.Run.PollTimeout, c.Run.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Retention: {Schedule: %q, MaxAge: %s}, ", c.Retention.Schedule, c.Retention.MaxAge))
	if c.Export.Enabled() {
		b.WriteString(fmt.Sprintf("Export: {Endpoint: %q, Bucket: %q, Keys: [MASKED]}, ", c.Export.Endpoint, c.Export.Bucket))
	}
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
