package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the tagqueue configuration
type Config struct {
	// DataDir holds the daemon PID file
	DataDir    string           `json:"data_dir" mapstructure:"data_dir"`
	Dispatcher DispatcherConfig `json:"dispatcher" mapstructure:"dispatcher"`
	Bridge     BridgeConfig     `json:"bridge" mapstructure:"bridge"`
	DataLayer  DataLayerConfig  `json:"data_layer" mapstructure:"data_layer"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `json:"metrics" mapstructure:"metrics"`
	Tracing    TracingConfig    `json:"tracing" mapstructure:"tracing"`
}

// DispatcherConfig holds queue drain settings
type DispatcherConfig struct {
	TickInterval time.Duration `json:"tick_interval" mapstructure:"tick_interval"`
	// DrainTimeout bounds how long replay waits for every call to complete
	DrainTimeout time.Duration `json:"drain_timeout" mapstructure:"drain_timeout"`
}

// BridgeConfig selects where forwarded calls go
type BridgeConfig struct {
	Mode         string        `json:"mode" mapstructure:"mode"` // local, remote
	URL          string        `json:"url" mapstructure:"url"`   // ws:// or wss:// when remote
	SharedSecret string        `json:"shared_secret" mapstructure:"shared_secret"`
	DialTimeout  time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
}

// DataLayerConfig selects the data-layer store used by the local bridge
type DataLayerConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // memory, sqlite
	Path   string `json:"path" mapstructure:"path"`
}

// ServerConfig holds the bridge server listen address
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	// AuditFile receives bridge, connection and config audit events as JSON lines
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig controls the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Dispatcher: DispatcherConfig{
			TickInterval: time.Second,
			DrainTimeout: time.Minute,
		},
		Bridge: BridgeConfig{
			Mode:        "local",
			DialTimeout: 10 * time.Second,
		},
		DataLayer: DataLayerConfig{
			Driver: "memory",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tagqueue",
			SampleRatio: 1.0,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tagqueue"
	}
	return filepath.Join(home, ".tagqueue")
}

// PIDFile returns the daemon PID file location
func (c *Config) PIDFile() string {
	return filepath.Join(c.DataDir, "tagqueue.pid")
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Bridge.SharedSecret != "" {
		masked.Bridge.SharedSecret = "********"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
