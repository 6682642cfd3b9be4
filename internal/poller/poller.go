// internal/poller/poller.go
package poller

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/transport"
)

// Poller reads the register map into the device state.
// It holds no retry state: every cycle is an independent attempt.
// Callers serialize cycles with any other use of the transport.
type Poller struct {
	specs  []registers.AttributeSpec
	reader transport.Reader
	state  *state.State
	sink   notify.Sink
	log    *zap.Logger
	now    func() time.Time
}

// New creates a poller over the full register map.
func New(r transport.Reader, st *state.State, sink notify.Sink, log *zap.Logger) (*Poller, error) {
	if r == nil {
		return nil, errors.New("poller: reader required")
	}
	if st == nil {
		return nil, errors.New("poller: state required")
	}
	if sink == nil {
		sink = notify.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		specs:  registers.Map,
		reader: r,
		state:  st,
		sink:   sink,
		log:    log.Named("poller"),
		now:    time.Now,
	}, nil
}

// PollOnce performs one full cycle over the register map.
func (p *Poller) PollOnce() Result {
	res := p.Poll(p.specs)
	p.logSummary(res)
	return res
}

// Poll reads specs in order. A failed register is logged and skipped;
// a link-level failure ends the cycle. Poll always returns.
func (p *Poller) Poll(specs []registers.AttributeSpec) Result {
	res := Result{At: p.now()}

	for i, spec := range specs {
		raw, err := transport.Read(p.reader, spec.Address)
		if err != nil {
			res.Failed = append(res.Failed, FieldError{Attribute: spec.Name, Err: err})

			if transport.IsLinkDown(err) {
				res.Aborted = err
				for _, rest := range specs[i+1:] {
					res.Skipped = append(res.Skipped, rest.Name)
				}
				p.log.Error("poll cycle aborted",
					zap.String("attribute", string(spec.Name)),
					zap.Int("skipped", len(res.Skipped)),
					zap.Error(err),
				)
				return res
			}

			p.log.Warn("read failed, keeping last value",
				zap.String("attribute", string(spec.Name)),
				zap.Stringer("last", p.state.Get(spec.Name)),
				zap.Error(err),
			)
			continue
		}

		if !registers.Recognized(spec, raw) {
			p.log.Warn("unrecognized code, using default",
				zap.String("attribute", string(spec.Name)),
				zap.Uint16("raw", raw[0]),
			)
		}

		v := registers.Decode(spec, raw)
		prev := p.state.Set(spec.Name, v)
		res.Read = append(res.Read, spec.Name)

		p.log.Debug("read",
			zap.String("attribute", string(spec.Name)),
			zap.Uint16("raw", raw[0]),
			zap.Stringer("value", v),
		)

		if spec.Notify && !prev.Equal(v) {
			ev := notify.ChangeEvent{
				Attribute: spec.Name,
				Old:       prev,
				New:       v,
				At:        res.At,
			}
			res.Events = append(res.Events, ev)
			p.sink.Notify(ev)
		}
	}

	return res
}

func (p *Poller) logSummary(res Result) {
	if res.Aborted != nil {
		return
	}
	p.log.Info("update",
		zap.Stringer("hvac_mode", p.state.Get(registers.HVACMode)),
		zap.Stringer("hvac_action", p.state.Get(registers.HVACAction)),
		zap.Stringer("hotwater_top_setpoint", p.state.Get(registers.HotwaterTopSetpoint)),
		zap.Stringer("hotwater_bottom_setpoint", p.state.Get(registers.HotwaterBottomSetpoint)),
		zap.Int("read", len(res.Read)),
		zap.Int("failed", len(res.Failed)),
	)
}
