package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrentPerUser)
	assert.Equal(t, 5*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, 30, cfg.Queue.RetentionDays)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero concurrency", func(c *Config) { c.Queue.MaxConcurrentPerUser = 0 }},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }},
		{"zero retry delay", func(c *Config) { c.Queue.RetryDelay = 0 }},
		{"no origins", func(c *Config) { c.Security.AllowedOrigins = nil }},
		{"zero source timeout", func(c *Config) { c.Aggregation.SourceTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestValidateNormalizesLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestMergePrefersEnvValues(t *testing.T) {
	file := *Default()
	file.Server.Port = 9999
	file.Queue.MaxRetries = 7

	env := Config{}
	env.Server.Port = 8081

	merged := merge(file, env)
	assert.Equal(t, 8081, merged.Server.Port, "env value wins")
	assert.Equal(t, 7, merged.Queue.MaxRetries, "file fills unset env fields")
}
