package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	// Validate source database
	errors = append(errors, c.validateDatabase("source", &c.Source)...)

	// Validate target database
	errors = append(errors, c.validateDatabase("target", &c.Target)...)

	// Promoting an instance into itself would truncate maintained tables
	// against their own source.
	if c.Source.Host == c.Target.Host && c.Source.Port == c.Target.Port &&
		c.Source.Database == c.Target.Database && c.Source.Database != "" {
		errors = append(errors, ValidationError{
			Field:   "target",
			Message: "source and target must not be the same database",
		})
	}

	errors = append(errors, c.validateTables()...)
	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateBackup()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", db.Port),
		})
	}
	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}
	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database is required",
		})
	}
	switch db.TLS {
	case "", "disable", "preferred", "required":
	default:
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: fmt.Sprintf("tls must be one of disable, preferred, required; got %q", db.TLS),
		})
	}

	return errors
}

func (c *Config) validateTables() ValidationErrors {
	var errors ValidationErrors

	excluded := c.ExcludedSet()
	for _, name := range c.Tables.Maintained {
		if name == "" {
			errors = append(errors, ValidationError{
				Field:   "tables.maintained",
				Message: "table name must not be empty",
			})
			continue
		}
		if excluded[name] {
			errors = append(errors, ValidationError{
				Field:   "tables.maintained",
				Message: fmt.Sprintf("table %q cannot be both maintained and excluded", name),
			})
		}
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.BatchSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.batch_size",
			Message: fmt.Sprintf("batch_size must be positive, got %d", c.Processing.BatchSize),
		})
	}
	if c.Processing.SleepSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.sleep_seconds",
			Message: "sleep_seconds must not be negative",
		})
	}

	return errors
}

func (c *Config) validateBackup() ValidationErrors {
	var errors ValidationErrors

	if c.Backup.Enabled && c.Backup.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "backup.dir",
			Message: "dir is required when backup is enabled",
		})
	}
	if c.Backup.RetentionCount < 0 {
		errors = append(errors, ValidationError{
			Field:   "backup.retention_count",
			Message: "retention_count must not be negative",
		})
	}
	if c.Backup.RetentionDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "backup.retention_days",
			Message: "retention_days must not be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("level must be one of debug, info, warn, error; got %q", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("format must be json or text, got %q", c.Logging.Format),
		})
	}

	return errors
}
