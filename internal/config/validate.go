// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only; zero values mean "default".
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	var errs []error

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	switch strings.ToLower(d.Transport) {
	case "", "rtu":
		if d.Endpoint != "" {
			errs = append(errs, errors.New("device.endpoint is only valid with transport tcp"))
		}
	case "tcp":
		if d.Endpoint == "" {
			errs = append(errs, errors.New("device.endpoint is required with transport tcp"))
		}
	default:
		errs = append(errs, fmt.Errorf("device.transport %q: must be rtu or tcp", d.Transport))
	}

	if d.BaudRate < 0 {
		errs = append(errs, fmt.Errorf("device.baudrate %d: must be > 0", d.BaudRate))
	}
	if d.DataBits != 0 && (d.DataBits < 5 || d.DataBits > 8) {
		errs = append(errs, fmt.Errorf("device.databits %d: must be 5..8", d.DataBits))
	}
	switch strings.ToUpper(d.Parity) {
	case "", "N", "E", "O":
	default:
		errs = append(errs, fmt.Errorf("device.parity %q: must be N, E or O", d.Parity))
	}
	if d.StopBits != 0 && d.StopBits != 1 && d.StopBits != 2 {
		errs = append(errs, fmt.Errorf("device.stopbits %d: must be 1 or 2", d.StopBits))
	}
	if d.Slave > 247 {
		errs = append(errs, fmt.Errorf("device.slave %d: must be 1..247", d.Slave))
	}
	if d.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("device.timeout_ms %d: must be > 0", d.TimeoutMs))
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs < 0 {
		errs = append(errs, fmt.Errorf("poll.interval_ms %d: must be > 0", cfg.Poll.IntervalMs))
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q: must be debug, info, warn or error", cfg.Logging.Level))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: must be json or console", cfg.Logging.Format))
	}

	// ------------------------------------------------------------
	// METRICS
	// ------------------------------------------------------------

	if p := cfg.Metrics.Path; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q: must start with /", p))
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if q := cfg.MQTT.QoS; q != nil && *q > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d: must be 0, 1 or 2", *q))
	}
	if strings.ContainsAny(cfg.MQTT.TopicPrefix, "+#") {
		errs = append(errs, fmt.Errorf("mqtt.topic_prefix %q: wildcards not allowed", cfg.MQTT.TopicPrefix))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
