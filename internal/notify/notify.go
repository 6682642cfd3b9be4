// internal/notify/notify.go
package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/registers"
)

// ChangeEvent is one transition of a notify-class attribute.
// Old is the nil Value on the first successful read.
type ChangeEvent struct {
	Attribute registers.Attribute `json:"attribute"`
	Old       registers.Value     `json:"old"`
	New       registers.Value     `json:"new"`
	At        time.Time           `json:"at"`
}

// Sink receives change events.
// Notify must not block the caller for long; the poll cycle waits on it.
type Sink interface {
	Notify(ev ChangeEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ChangeEvent)

func (f SinkFunc) Notify(ev ChangeEvent) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(ChangeEvent) {})

// LogSink writes events to a zap logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Notify(ev ChangeEvent) {
	spec, _ := registers.Lookup(ev.Attribute)
	name := spec.Title
	if name == "" {
		name = string(ev.Attribute)
	}
	s.log.Info(name+" changed",
		zap.String("attribute", string(ev.Attribute)),
		zap.Stringer("old", ev.Old),
		zap.Stringer("new", ev.New),
		zap.Time("at", ev.At),
	)
}

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ev ChangeEvent) {
	for _, s := range f {
		if s != nil {
			s.Notify(ev)
		}
	}
}
