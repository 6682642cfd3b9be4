// internal/config/overrides.go
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes override environment variables, e.g. NILAN_DEVICE_PORT.
const EnvPrefix = "NILAN"

// Override keys. They follow the YAML paths.
const (
	KeyTransport  = "device.transport"
	KeyPort       = "device.port"
	KeyEndpoint   = "device.endpoint"
	KeyBaudRate   = "device.baudrate"
	KeySlave      = "device.slave"
	KeyTimeoutMs  = "device.timeout_ms"
	KeyIntervalMs = "poll.interval_ms"
	KeyLogLevel   = "logging.level"
	KeyLogFormat  = "logging.format"
	KeyMQTTBroker = "mqtt.broker"
	KeyMQTTUser   = "mqtt.username"
	KeyMQTTPass   = "mqtt.password"
)

// NewViper returns a viper instance reading NILAN_* environment variables.
// Callers bind command-line flags to the Key* names.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides layers values set in v over cfg.
// Only keys that are explicitly set (flag changed or env present) apply.
// Call before Validate.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	if cfg == nil || v == nil {
		return
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str(KeyTransport, &cfg.Device.Transport)
	str(KeyPort, &cfg.Device.Port)
	str(KeyEndpoint, &cfg.Device.Endpoint)
	num(KeyBaudRate, &cfg.Device.BaudRate)
	num(KeyTimeoutMs, &cfg.Device.TimeoutMs)
	num(KeyIntervalMs, &cfg.Poll.IntervalMs)
	str(KeyLogLevel, &cfg.Logging.Level)
	str(KeyLogFormat, &cfg.Logging.Format)
	str(KeyMQTTBroker, &cfg.MQTT.Broker)
	str(KeyMQTTUser, &cfg.MQTT.Username)
	str(KeyMQTTPass, &cfg.MQTT.Password)

	if v.IsSet(KeySlave) {
		s := v.GetUint(KeySlave)
		if s > 255 {
			s = 255 // out of range either way; Validate reports it
		}
		cfg.Device.Slave = uint8(s)
	}
}
