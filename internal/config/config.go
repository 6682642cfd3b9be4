// internal/config/config.go
package config

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Poll    PollConfig    `yaml:"poll"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Transport string `yaml:"transport"` // rtu | tcp

	// rtu
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudrate"`
	DataBits int    `yaml:"databits"`
	Parity   string `yaml:"parity"` // N | E | O
	StopBits int    `yaml:"stopbits"`

	// tcp (serial gateway)
	Endpoint string `yaml:"endpoint"`

	// Slave is the unit address on the bus. Zero means the factory default.
	Slave     uint8 `yaml:"slave"`
	TimeoutMs int   `yaml:"timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// ---- METRICS ----

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         *byte  `yaml:"qos"` // nil means default
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Defaults.
const (
	DefaultTransport   = "rtu"
	DefaultPort        = "/dev/ttyUSB0"
	DefaultBaudRate    = 19200
	DefaultDataBits    = 8
	DefaultParity      = "E"
	DefaultStopBits    = 1
	DefaultTimeoutMs   = 3000
	DefaultIntervalMs  = 30000
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultListen      = ":9090"
	DefaultMetricsPath = "/metrics"
	DefaultClientID    = "nilan"
	DefaultTopicPrefix = "nilan"
	DefaultQoS         = 1
)
