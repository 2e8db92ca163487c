package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTickInterval checks the drain cadence. The scheduler has one-second
// resolution, so sub-second and fractional intervals are rejected.
func (v *Validator) ValidateTickInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("dispatcher.tick_interval must be positive, got %s", interval)
	}
	if interval%time.Second != 0 {
		return fmt.Errorf("dispatcher.tick_interval must be a whole number of seconds, got %s", interval)
	}
	return nil
}

// ValidateBridge checks the bridge mode and, when remote, its URL
func (v *Validator) ValidateBridge(cfg BridgeConfig) error {
	switch cfg.Mode {
	case "local":
		return nil
	case "remote":
		return v.ValidateBridgeURL(cfg.URL)
	default:
		return fmt.Errorf("invalid bridge mode: %s (must be one of: local, remote)", cfg.Mode)
	}
}

// ValidateBridgeURL checks that raw is a ws:// or wss:// URL
func (v *Validator) ValidateBridgeURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("bridge.url is required when bridge.mode is remote")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid bridge url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid bridge url scheme: %s (must be ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid bridge url: missing host")
	}
	return nil
}

// ValidateDataLayer checks the store driver and its path
func (v *Validator) ValidateDataLayer(cfg DataLayerConfig) error {
	switch cfg.Driver {
	case "memory":
		return nil
	case "sqlite":
		if strings.TrimSpace(cfg.Path) == "" {
			return fmt.Errorf("data_layer.path is required when data_layer.driver is sqlite")
		}
		return nil
	default:
		return fmt.Errorf("invalid data layer driver: %s (must be one of: memory, sqlite)", cfg.Driver)
	}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSampleRatio validates a trace sampling ratio
func (v *Validator) ValidateSampleRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %g", ratio)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateTickInterval(cfg.Dispatcher.TickInterval); err != nil {
		errors = append(errors, err)
	}
	if cfg.Dispatcher.DrainTimeout < 0 {
		errors = append(errors, fmt.Errorf("dispatcher.drain_timeout must be >= 0"))
	}
	if err := v.ValidateBridge(cfg.Bridge); err != nil {
		errors = append(errors, err)
	}
	if cfg.Bridge.DialTimeout < 0 {
		errors = append(errors, fmt.Errorf("bridge.dial_timeout must be >= 0"))
	}
	if err := v.ValidateDataLayer(cfg.DataLayer); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Tracing.Enabled {
		if err := v.ValidateSampleRatio(cfg.Tracing.SampleRatio); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}
