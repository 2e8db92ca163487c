package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, time.Second, cfg.Dispatcher.TickInterval)
	assert.Equal(t, time.Minute, cfg.Dispatcher.DrainTimeout)
	assert.Equal(t, "local", cfg.Bridge.Mode)
	assert.Equal(t, "memory", cfg.DataLayer.Driver)
	assert.Equal(t, "127.0.0.1:8787", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "tagqueue.pid"), cfg.PIDFile())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Dispatcher.TickInterval = 0 },
			wantErr: "tick_interval must be positive",
		},
		{
			name:    "sub-second tick interval",
			mutate:  func(c *Config) { c.Dispatcher.TickInterval = 500 * time.Millisecond },
			wantErr: "whole number of seconds",
		},
		{
			name:    "unknown bridge mode",
			mutate:  func(c *Config) { c.Bridge.Mode = "carrier-pigeon" },
			wantErr: "invalid bridge mode",
		},
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.Bridge.Mode = "remote" },
			wantErr: "bridge.url is required",
		},
		{
			name: "remote with http url",
			mutate: func(c *Config) {
				c.Bridge.Mode = "remote"
				c.Bridge.URL = "http://localhost:8787/bridge"
			},
			wantErr: "must be ws or wss",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.DataLayer.Driver = "sqlite" },
			wantErr: "data_layer.path is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.DataLayer.Driver = "redis" },
			wantErr: "invalid data layer driver",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name: "bad sample ratio",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRatio = 2
			},
			wantErr: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("remote with ws url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Bridge.Mode = "remote"
		cfg.Bridge.URL = "wss://bridge.example.com/bridge"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("reports every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = 0
		cfg.Logging.Level = "verbose"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bridge.SharedSecret = "s3cret"

	out := cfg.String()
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, `"shared_secret": "********"`)
	assert.Equal(t, "s3cret", cfg.Bridge.SharedSecret)
}
