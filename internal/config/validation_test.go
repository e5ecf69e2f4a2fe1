package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Source.Host = "dev.db.internal"
	cfg.Source.User = "promoter"
	cfg.Source.Database = "app_dev"
	cfg.Target.Host = "prod.db.internal"
	cfg.Target.User = "promoter"
	cfg.Target.Database = "app_prod"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "Missing source host",
			mutate:  func(c *Config) { c.Source.Host = "" },
			wantErr: "source.host",
		},
		{
			name:    "Missing target user",
			mutate:  func(c *Config) { c.Target.User = "" },
			wantErr: "target.user",
		},
		{
			name:    "Missing source database",
			mutate:  func(c *Config) { c.Source.Database = "" },
			wantErr: "source.database",
		},
		{
			name:    "Invalid port",
			mutate:  func(c *Config) { c.Target.Port = 70000 },
			wantErr: "target.port",
		},
		{
			name:    "Invalid TLS mode",
			mutate:  func(c *Config) { c.Source.TLS = "sometimes" },
			wantErr: "source.tls",
		},
		{
			name:    "Zero batch size",
			mutate:  func(c *Config) { c.Processing.BatchSize = 0 },
			wantErr: "processing.batch_size",
		},
		{
			name:    "Negative retention",
			mutate:  func(c *Config) { c.Backup.RetentionCount = -1 },
			wantErr: "backup.retention_count",
		},
		{
			name:    "Backup enabled without dir",
			mutate:  func(c *Config) { c.Backup.Dir = "" },
			wantErr: "backup.dir",
		},
		{
			name:    "Invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "Invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_SameSourceAndTarget(t *testing.T) {
	cfg := validConfig()
	cfg.Target.Host = cfg.Source.Host
	cfg.Target.Port = cfg.Source.Port
	cfg.Target.Database = cfg.Source.Database

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source and target must not be the same database")
}

func TestValidate_MaintainedAndExcludedConflict(t *testing.T) {
	cfg := validConfig()
	cfg.Tables.Maintained = []string{"agencies"}
	cfg.Tables.Exclude = []string{"agencies"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "agencies" cannot be both maintained and excluded`)
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Host = ""
	cfg.Target.User = ""
	cfg.Processing.BatchSize = -5

	err := cfg.Validate()
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(verrs), 3)
}
