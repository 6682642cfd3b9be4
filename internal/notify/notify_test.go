// internal/notify/notify_test.go
package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core))

	s.Notify(ChangeEvent{
		Attribute: registers.HVACAction,
		Old:       registers.Value{},
		New:       registers.Enum(7, "Heating"),
		At:        time.Unix(0, 0),
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HVAC action changed", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "hvac_action", fields["attribute"])
	assert.Equal(t, "<nil>", fields["old"])
	assert.Equal(t, "Heating", fields["new"])
}

func TestFanout(t *testing.T) {
	var a, b []ChangeEvent
	f := Fanout{
		SinkFunc(func(ev ChangeEvent) { a = append(a, ev) }),
		nil,
		SinkFunc(func(ev ChangeEvent) { b = append(b, ev) }),
	}

	ev := ChangeEvent{Attribute: registers.AlarmStatus, New: registers.Int(2)}
	f.Notify(ev)

	assert.Equal(t, []ChangeEvent{ev}, a)
	assert.Equal(t, []ChangeEvent{ev}, b)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Notify(ChangeEvent{}) })
}
