// internal/device/builder.go
package device

import (
	"fmt"

	cfg "github.com/tamzrod/nilan-modbus/internal/config"
	tmodbus "github.com/tamzrod/nilan-modbus/internal/transport/modbus"
)

// Build opens the configured link and wires a Controller over it.
// The link is opened once (fail fast at startup) and reused for the process
// lifetime; the returned closer releases it.
// dc must already be validated and normalized.
func Build(dc cfg.DeviceConfig, c Config) (*Controller, func() error, error) {
	client, err := tmodbus.New(LinkConfig(dc))
	if err != nil {
		return nil, nil, fmt.Errorf("device: open link: %w", err)
	}

	ctrl, err := New(client, c)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return ctrl, client.Close, nil
}

// LinkConfig maps device config onto the Modbus adapter's config.
func LinkConfig(dc cfg.DeviceConfig) tmodbus.Config {
	return tmodbus.Config{
		Mode:     tmodbus.Mode(dc.Transport),
		Port:     dc.Port,
		BaudRate: dc.BaudRate,
		DataBits: dc.DataBits,
		Parity:   dc.Parity,
		StopBits: dc.StopBits,
		Endpoint: dc.Endpoint,
		SlaveID:  dc.Slave,
		Timeout:  dc.Timeout(),
	}
}
