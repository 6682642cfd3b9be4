// internal/mqtt/bridge.go
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/status"
)

// Client is the part of paho.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Commander executes device commands.
type Commander interface {
	SetHVACMode(ctx context.Context, mode string) error
	SetTargetTemperature(ctx context.Context, celsius float64) error
	SetFanMode(ctx context.Context, mode string) error
	SetAirExchangeMode(ctx context.Context, mode string) error
	SetCoolingSetpoint(ctx context.Context, code int) error
	SetHotwaterSetpoints(ctx context.Context, top, bottom *float64) error
}

// Topic suffixes under the configured prefix.
const (
	TopicEvent     = "event"
	TopicState     = "state"
	TopicSet       = "set"
	TopicSetResult = "set/result"
)

// Bridge publishes events and state, and turns set messages into commands.
type Bridge struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	log     *zap.Logger

	mu    sync.Mutex
	route paho.MessageHandler // set by Subscribe, restored on reconnect
}

func New(client Client, prefix string, qos byte, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		timeout: 10 * time.Second,
		log:     log.Named("mqtt"),
	}
}

func (b *Bridge) topic(suffix string) string {
	return b.prefix + "/" + suffix
}

// publish sends payload without blocking the caller.
func (b *Bridge) publish(suffix string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Error("encode payload", zap.String("topic", b.topic(suffix)), zap.Error(err))
		return
	}
	topic := b.topic(suffix)
	tok := b.client.Publish(topic, b.qos, retained, payload)
	go func() {
		if !tok.WaitTimeout(b.timeout) {
			b.log.Warn("publish timed out", zap.String("topic", topic))
			return
		}
		if err := tok.Error(); err != nil {
			b.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// Notify publishes a change event to <prefix>/event.
func (b *Bridge) Notify(ev notify.ChangeEvent) {
	b.publish(TopicEvent, false, ev)
}

// StateMessage is the payload of <prefix>/state.
type StateMessage struct {
	At     time.Time       `json:"at"`
	State  map[string]any  `json:"state"`
	Health status.Snapshot `json:"health"`
	Status string          `json:"status"`
}

// Observe publishes the state after every poll cycle, retained.
func (b *Bridge) Observe(_ poller.Result, snap state.Snapshot, h status.Snapshot) {
	b.publish(TopicState, true, StateMessage{
		At:     snap.At,
		State:  snap.Present(),
		Health: h,
		Status: h.HealthName(),
	})
}

// SetRequest is the payload of <prefix>/set. Absent keys are left alone.
type SetRequest struct {
	HVACMode               *string  `json:"hvac_mode,omitempty"`
	TargetTemperature      *float64 `json:"target_temperature,omitempty"`
	FanMode                *string  `json:"fan_mode,omitempty"`
	AirExchangeMode        *string  `json:"air_exchange_mode,omitempty"`
	CoolingSetpoint        *int     `json:"cooling_setpoint,omitempty"`
	HotwaterTopSetpoint    *float64 `json:"hotwater_top_setpoint,omitempty"`
	HotwaterBottomSetpoint *float64 `json:"hotwater_bottom_setpoint,omitempty"`
}

// SetResult is published to <prefix>/set/result after each request.
type SetResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Subscribe routes <prefix>/set messages to cmd until ctx ends.
// The route is re-subscribed by OnConnect after every reconnect.
func (b *Bridge) Subscribe(ctx context.Context, cmd Commander) error {
	route := func(_ paho.Client, msg paho.Message) {
		if ctx.Err() != nil {
			return
		}
		b.handle(ctx, cmd, msg.Payload())
	}

	b.mu.Lock()
	b.route = route
	b.mu.Unlock()

	return b.subscribe(route)
}

// OnConnect restores the command route. paho starts a clean session on
// reconnect, so the broker has dropped the subscription.
func (b *Bridge) OnConnect(paho.Client) {
	b.mu.Lock()
	route := b.route
	b.mu.Unlock()

	if route == nil {
		return
	}
	if err := b.subscribe(route); err != nil {
		b.log.Error("resubscribe failed", zap.Error(err))
	}
}

func (b *Bridge) subscribe(route paho.MessageHandler) error {
	topic := b.topic(TopicSet)
	if err := await(b.client.Subscribe(topic, b.qos, route), b.timeout); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
	}
	b.log.Info("subscribed", zap.String("topic", topic))
	return nil
}

func (b *Bridge) handle(ctx context.Context, cmd Commander, payload []byte) {
	err := b.Dispatch(ctx, cmd, payload)

	res := SetResult{OK: err == nil}
	if err != nil {
		b.log.Warn("set request failed", zap.ByteString("payload", payload), zap.Error(err))
		res.Errors = flatten(err)
	}
	b.publish(TopicSetResult, false, res)
}

// Dispatch decodes one set request and applies each present key
// independently. Failures are joined.
func (b *Bridge) Dispatch(ctx context.Context, cmd Commander, payload []byte) error {
	var req SetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("mqtt: bad set payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var errs []error
	run := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	n := 0
	if req.HVACMode != nil {
		n++
		run(cmd.SetHVACMode(ctx, *req.HVACMode))
	}
	if req.TargetTemperature != nil {
		n++
		run(cmd.SetTargetTemperature(ctx, *req.TargetTemperature))
	}
	if req.FanMode != nil {
		n++
		run(cmd.SetFanMode(ctx, *req.FanMode))
	}
	if req.AirExchangeMode != nil {
		n++
		run(cmd.SetAirExchangeMode(ctx, *req.AirExchangeMode))
	}
	if req.CoolingSetpoint != nil {
		n++
		run(cmd.SetCoolingSetpoint(ctx, *req.CoolingSetpoint))
	}
	if req.HotwaterTopSetpoint != nil || req.HotwaterBottomSetpoint != nil {
		n++
		run(cmd.SetHotwaterSetpoints(ctx, req.HotwaterTopSetpoint, req.HotwaterBottomSetpoint))
	}

	if n == 0 {
		return errors.New("mqtt: set payload has no known keys")
	}
	return errors.Join(errs...)
}

func flatten(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
