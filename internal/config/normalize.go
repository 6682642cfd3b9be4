// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// Normalize applies defaults and canonical casing.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
//
// The returned warnings describe settings that are valid but unusual.
// The configured slave address is always kept.
func Normalize(cfg *Config) []string {
	if cfg == nil {
		return nil
	}

	var warnings []string

	d := &cfg.Device
	d.Transport = strings.ToLower(d.Transport)
	if d.Transport == "" {
		d.Transport = DefaultTransport
	}
	if d.Transport == "rtu" && d.Port == "" {
		d.Port = DefaultPort
	}
	if d.BaudRate == 0 {
		d.BaudRate = DefaultBaudRate
	}
	if d.DataBits == 0 {
		d.DataBits = DefaultDataBits
	}
	d.Parity = strings.ToUpper(d.Parity)
	if d.Parity == "" {
		d.Parity = DefaultParity
	}
	if d.StopBits == 0 {
		d.StopBits = DefaultStopBits
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	if d.Slave == 0 {
		d.Slave = registers.DefaultSlave
	}
	if d.Slave != registers.DefaultSlave {
		warnings = append(warnings, fmt.Sprintf(
			"device.slave %d differs from the factory address %d; using %d",
			d.Slave, registers.DefaultSlave, d.Slave,
		))
	}

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultIntervalMs
	}

	l := &cfg.Logging
	l.Level = strings.ToLower(l.Level)
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	l.Format = strings.ToLower(l.Format)
	if l.Format == "" {
		l.Format = DefaultLogFormat
	}

	m := &cfg.Metrics
	if m.Listen == "" {
		m.Listen = DefaultListen
	}
	if m.Path == "" {
		m.Path = DefaultMetricsPath
	}

	q := &cfg.MQTT
	if q.ClientID == "" {
		q.ClientID = DefaultClientID
	}
	q.TopicPrefix = strings.Trim(q.TopicPrefix, "/")
	if q.TopicPrefix == "" {
		q.TopicPrefix = DefaultTopicPrefix
	}
	if q.QoS == nil {
		qos := byte(DefaultQoS)
		q.QoS = &qos
	}

	return warnings
}

// Interval returns the poll interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// Timeout returns the per-request transport timeout.
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}
