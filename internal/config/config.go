// Package config provides configuration structures and loading for dbpromote.
package config

// Config represents the complete application configuration.
type Config struct {
	Source     DatabaseConfig   `yaml:"source" mapstructure:"source"`
	Target     DatabaseConfig   `yaml:"target" mapstructure:"target"`
	Tables     TablesConfig     `yaml:"tables" mapstructure:"tables"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Backup     BackupConfig     `yaml:"backup" mapstructure:"backup"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Label              string `yaml:"label" mapstructure:"label"` // environment label, e.g. "development"
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// TablesConfig controls which tables participate in a promotion run.
type TablesConfig struct {
	// Maintained lists tables whose row contents are fully re-synchronized
	// (truncate + repopulate) on every run, in addition to their structure.
	Maintained []string `yaml:"maintained" mapstructure:"maintained"`
	// Exclude lists tables skipped entirely during introspection and planning.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// ProcessingConfig represents batch processing settings for data sync.
type ProcessingConfig struct {
	BatchSize    int     `yaml:"batch_size" mapstructure:"batch_size"`
	SleepSeconds float64 `yaml:"sleep_seconds" mapstructure:"sleep_seconds"`
}

// BackupConfig controls the pre-migration backup and its retention policy.
type BackupConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir            string `yaml:"dir" mapstructure:"dir"`
	RetentionCount int    `yaml:"retention_count" mapstructure:"retention_count"`
	RetentionDays  int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Source: DatabaseConfig{
			Label:              "development",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Target: DatabaseConfig{
			Label:              "production",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Processing: ProcessingConfig{
			BatchSize:    1000,
			SleepSeconds: 0,
		},
		Backup: BackupConfig{
			Enabled:        true,
			Dir:            "backups",
			RetentionCount: 10,
			RetentionDays:  30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// MaintainedSet returns the maintained table names as a lookup set.
func (c *Config) MaintainedSet() map[string]bool {
	set := make(map[string]bool, len(c.Tables.Maintained))
	for _, name := range c.Tables.Maintained {
		set[name] = true
	}
	return set
}

// ExcludedSet returns the excluded table names as a lookup set.
func (c *Config) ExcludedSet() map[string]bool {
	set := make(map[string]bool, len(c.Tables.Exclude))
	for _, name := range c.Tables.Exclude {
		set[name] = true
	}
	return set
}
