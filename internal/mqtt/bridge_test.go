// internal/mqtt/bridge_test.go
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/status"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]paho.MessageHandler
	subs     int
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, qos, retained, payload.([]byte)})
	return doneToken{}
}

func (f *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string]paho.MessageHandler{}
	}
	f.handlers[topic] = cb
	f.subs++
	return doneToken{}
}

func (f *fakeClient) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].topic == topic {
			return f.messages[i], true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeCommander struct {
	calls []string
	fail  map[string]error
	top   *float64
	bot   *float64
}

func (c *fakeCommander) record(name string) error {
	c.calls = append(c.calls, name)
	return c.fail[name]
}

func (c *fakeCommander) SetHVACMode(_ context.Context, mode string) error {
	return c.record("hvac_mode=" + mode)
}
func (c *fakeCommander) SetTargetTemperature(context.Context, float64) error {
	return c.record("target_temperature")
}
func (c *fakeCommander) SetFanMode(_ context.Context, mode string) error {
	return c.record("fan_mode=" + mode)
}
func (c *fakeCommander) SetAirExchangeMode(_ context.Context, mode string) error {
	return c.record("air_exchange_mode=" + mode)
}
func (c *fakeCommander) SetCoolingSetpoint(context.Context, int) error {
	return c.record("cooling_setpoint")
}
func (c *fakeCommander) SetHotwaterSetpoints(_ context.Context, top, bottom *float64) error {
	c.top, c.bot = top, bottom
	return c.record("hotwater")
}

func TestNotifyPublishesEvent(t *testing.T) {
	fc := &fakeClient{}
	b := New(fc, "home/nilan", 1, nil)

	b.Notify(notify.ChangeEvent{
		Attribute: registers.AlarmStatus,
		New:       registers.Int(4),
		At:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	msg, ok := fc.last("home/nilan/event")
	require.True(t, ok)
	assert.False(t, msg.retained)
	assert.Equal(t, byte(1), msg.qos)
	assert.JSONEq(t, `{"attribute":"alarm_status","old":null,"new":4,"at":"2024-01-01T00:00:00Z"}`, string(msg.payload))
}

func TestObservePublishesState(t *testing.T) {
	fc := &fakeClient{}
	b := New(fc, "nilan", 0, nil)

	st := state.New()
	st.Set(registers.FanMode, registers.Enum(1, "min"))
	b.Observe(poller.Result{}, st.Snapshot(), status.Snapshot{Health: status.HealthOK})

	msg, ok := fc.last("nilan/state")
	require.True(t, ok)
	assert.True(t, msg.retained)

	var sm struct {
		State  map[string]any `json:"state"`
		Status string         `json:"status"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &sm))
	assert.Equal(t, "ok", sm.Status)
	assert.Equal(t, "min", sm.State["fan_mode"])
	v, present := sm.State["alarm_status"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestDispatch(t *testing.T) {
	b := New(&fakeClient{}, "nilan", 1, nil)
	cmd := &fakeCommander{}

	err := b.Dispatch(context.Background(), cmd, []byte(`{
		"hvac_mode": "Heat",
		"target_temperature": 21.5,
		"fan_mode": "high",
		"air_exchange_mode": "Comfort",
		"cooling_setpoint": 3,
		"hotwater_bottom_setpoint": 45
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"hvac_mode=Heat",
		"target_temperature",
		"fan_mode=high",
		"air_exchange_mode=Comfort",
		"cooling_setpoint",
		"hotwater",
	}, cmd.calls)
	assert.Nil(t, cmd.top)
	require.NotNil(t, cmd.bot)
	assert.Equal(t, 45.0, *cmd.bot)
}

func TestDispatch_IndependentFailures(t *testing.T) {
	b := New(&fakeClient{}, "nilan", 1, nil)
	cmd := &fakeCommander{fail: map[string]error{"fan_mode=turbo": errors.New("bad fan")}}

	err := b.Dispatch(context.Background(), cmd, []byte(`{"fan_mode":"turbo","hvac_mode":"Cool"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad fan")
	assert.Equal(t, []string{"hvac_mode=Cool", "fan_mode=turbo"}, cmd.calls)
}

func TestDispatch_BadPayload(t *testing.T) {
	b := New(&fakeClient{}, "nilan", 1, nil)
	cmd := &fakeCommander{}

	assert.Error(t, b.Dispatch(context.Background(), cmd, []byte(`not json`)))
	assert.Error(t, b.Dispatch(context.Background(), cmd, []byte(`{"colour":"red"}`)))
	assert.Empty(t, cmd.calls)
}

func TestSubscribeRoutesMessages(t *testing.T) {
	fc := &fakeClient{}
	b := New(fc, "nilan", 1, nil)
	cmd := &fakeCommander{fail: map[string]error{"fan_mode=x": errors.New("invalid")}}

	require.NoError(t, b.Subscribe(context.Background(), cmd))
	h := fc.handlers["nilan/set"]
	require.NotNil(t, h)

	h(nil, fakeMessage{topic: "nilan/set", payload: []byte(`{"fan_mode":"x"}`)})

	msg, ok := fc.last("nilan/set/result")
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":false,"errors":["invalid"]}`, string(msg.payload))

	h(nil, fakeMessage{topic: "nilan/set", payload: []byte(`{"hvac_mode":"Heat"}`)})
	msg, _ = fc.last("nilan/set/result")
	assert.JSONEq(t, `{"ok":true}`, string(msg.payload))
}

func TestSubscribe_Error(t *testing.T) {
	fc := &failingSubscribe{}
	b := New(fc, "nilan", 1, nil)
	assert.Error(t, b.Subscribe(context.Background(), &fakeCommander{}))
}

type failingSubscribe struct{ fakeClient }

func (f *failingSubscribe) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return doneToken{err: errors.New("not authorized")}
}

func TestOnConnectRestoresRoute(t *testing.T) {
	fc := &fakeClient{}
	b := New(fc, "nilan", 1, nil)

	// first connect happens before any route exists
	b.OnConnect(nil)
	assert.Zero(t, fc.subs)

	cmd := &fakeCommander{}
	require.NoError(t, b.Subscribe(context.Background(), cmd))
	assert.Equal(t, 1, fc.subs)

	// broker session lost: the new session has no subscriptions
	fc.handlers = nil
	b.OnConnect(nil)
	assert.Equal(t, 2, fc.subs)

	h := fc.handlers["nilan/set"]
	require.NotNil(t, h)
	h(nil, fakeMessage{topic: "nilan/set", payload: []byte(`{"fan_mode":"min"}`)})
	assert.Equal(t, []string{"fan_mode=min"}, cmd.calls)
}

type pendingToken struct{ doneToken }

func (pendingToken) WaitTimeout(time.Duration) bool { return false }

func TestAwait(t *testing.T) {
	err := await(pendingToken{}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 1s")

	assert.NoError(t, await(doneToken{}, time.Second))

	err = await(doneToken{err: errors.New("bad credentials")}, time.Second)
	assert.EqualError(t, err, "bad credentials")
}
