package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetver/fleetver/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultIsValid(t *testing.T) {
	cfg := config.NewDefault()
	require.NoError(t, config.Validate(cfg))
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "127.0.0.1:8080", cfg.Service.Address)
	require.Equal(t, 10, cfg.Scheduler.PollWorkers)
	require.InDelta(t, 12.0, cfg.Auth.SessionTTLHours, 0.001)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
database:
  file: /tmp/other.db
service:
  logLevel: debug
auth:
  registrationToken: enroll-token
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(contents), 0600))

	cfg, err := config.Load(cfgFile)
	require.NoError(t, err)
	require.Equal(t, "/tmp/other.db", cfg.Database.File)
	require.Equal(t, "debug", cfg.Service.LogLevel)
	require.Equal(t, "enroll-token", cfg.Auth.RegistrationToken)
	// Untouched sections keep their defaults.
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, "127.0.0.1:8080", cfg.Service.Address)
	require.Equal(t, 10, cfg.Scheduler.PollWorkers)
}

func TestLoadOrGenerateWritesDefaults(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg, err := config.LoadOrGenerate(cfgFile)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Type)

	// The generated file round-trips.
	reloaded, err := config.NewFromFile(cfgFile)
	require.NoError(t, err)
	require.Equal(t, cfg.Service.Address, reloaded.Service.Address)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing sqlite file", func(c *config.Config) { c.Database.File = "" }},
		{"unknown db type", func(c *config.Config) { c.Database.Type = "oracle" }},
		{"pgsql without host", func(c *config.Config) { c.Database.Type = "pgsql" }},
		{"empty address", func(c *config.Config) { c.Service.Address = "" }},
		{"zero workers", func(c *config.Config) { c.Scheduler.PollWorkers = 0 }},
		{"negative interval", func(c *config.Config) { c.Scheduler.PollIntervalSeconds = -1 }},
		{"zero poll timeout", func(c *config.Config) { c.Scheduler.PollTimeoutSeconds = 0 }},
		{"zero session ttl", func(c *config.Config) { c.Auth.SessionTTLHours = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefault()
			tt.mutate(cfg)
			require.Error(t, config.Validate(cfg))
		})
	}
}
