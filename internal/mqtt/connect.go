// internal/mqtt/connect.go
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/config"
)

const connectTimeout = 10 * time.Second

// Connect dials the broker and returns a Bridge over the connection.
// The client reconnects on its own afterwards; each (re)connect restores
// the command route. The returned func disconnects.
// c must already be normalized.
func Connect(c config.MQTTConfig, log *zap.Logger) (*Bridge, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	var qos byte
	if c.QoS != nil {
		qos = *c.QoS
	}
	b := New(nil, c.TopicPrefix, qos, log)

	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(pc paho.Client) {
			log.Info("mqtt connected", zap.String("broker", c.Broker))
			b.OnConnect(pc)
		})
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}

	mc := paho.NewClient(opts)
	b.client = mc

	if err := await(mc.Connect(), connectTimeout); err != nil {
		mc.Disconnect(0)
		return nil, nil, fmt.Errorf("mqtt: connect %s: %w", c.Broker, err)
	}
	return b, func() { mc.Disconnect(250) }, nil
}

// await waits for tok. A token still pending after timeout is an error of
// its own: paho leaves Error() nil in that case.
func await(tok paho.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return tok.Error()
}
