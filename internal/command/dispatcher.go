// internal/command/dispatcher.go
package command

import (
	"errors"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/transport"
)

// Observer is told the outcome of every command that passed validation.
type Observer func(a registers.Attribute, err error)

// Dispatcher validates, encodes and writes commands.
// On success the requested value is stored without reading it back;
// the next poll cycle reconciles a write the device ignored.
// Callers serialize commands with any other use of the transport.
type Dispatcher struct {
	writer  transport.Writer
	state   *state.State
	log     *zap.Logger
	observe Observer
}

func New(w transport.Writer, st *state.State, log *zap.Logger) (*Dispatcher, error) {
	if w == nil {
		return nil, errors.New("command: writer required")
	}
	if st == nil {
		return nil, errors.New("command: state required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{writer: w, state: st, log: log.Named("command")}, nil
}

// Observe installs fn as the outcome observer.
func (d *Dispatcher) Observe(fn Observer) { d.observe = fn }

// SetHVACMode sets the coarse operating mode: Heat, Cool or HeatCool.
func (d *Dispatcher) SetHVACMode(mode string) error {
	if !slices.Contains(settableModes, mode) {
		return invalid(registers.HVACMode, mode, "must be one of %s", strings.Join(settableModes, ", "))
	}
	v, err := label(registers.HVACMode, mode)
	if err != nil {
		return err
	}
	return d.write(registers.HVACMode, v)
}

// SetTargetTemperature sets the room setpoint in °C.
func (d *Dispatcher) SetTargetTemperature(celsius float64) error {
	v, err := number(registers.TargetTemperature, celsius)
	if err != nil {
		return err
	}
	return d.write(registers.TargetTemperature, v)
}

func (d *Dispatcher) SetFanMode(mode string) error {
	v, err := label(registers.FanMode, mode)
	if err != nil {
		return err
	}
	return d.write(registers.FanMode, v)
}

func (d *Dispatcher) SetAirExchangeMode(mode string) error {
	v, err := label(registers.AirExchangeMode, mode)
	if err != nil {
		return err
	}
	return d.write(registers.AirExchangeMode, v)
}

// SetCoolingSetpoint selects one of the cooling offsets by code (0 = Off).
func (d *Dispatcher) SetCoolingSetpoint(code int) error {
	v, err := enumCode(registers.CoolingSetpoint, code)
	if err != nil {
		return err
	}
	return d.write(registers.CoolingSetpoint, v)
}

// SetHotwaterSetpoints sets either or both boiler setpoints in °C.
// Both values are validated before any write. The two writes are
// independent: a failed top write does not stop the bottom one.
func (d *Dispatcher) SetHotwaterSetpoints(top, bottom *float64) error {
	if top == nil && bottom == nil {
		return invalid(registers.HotwaterTopSetpoint, nil, "no setpoint given")
	}

	type pending struct {
		attr  registers.Attribute
		value registers.Value
	}
	var writes []pending

	for _, sp := range []struct {
		attr registers.Attribute
		v    *float64
	}{
		{registers.HotwaterTopSetpoint, top},
		{registers.HotwaterBottomSetpoint, bottom},
	} {
		if sp.v == nil {
			continue
		}
		v, err := number(sp.attr, *sp.v)
		if err != nil {
			return err
		}
		writes = append(writes, pending{sp.attr, v})
	}

	var errs []error
	for _, w := range writes {
		if err := d.write(w.attr, w.value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) write(a registers.Attribute, v registers.Value) error {
	spec, ok := registers.Lookup(a)
	if !ok {
		return invalid(a, v, "unknown attribute")
	}
	if !spec.Writable() {
		return invalid(a, v, "attribute is read-only")
	}

	raw := registers.Encode(spec, v)
	if err := transport.Write(d.writer, spec.Address, raw); err != nil {
		d.log.Warn("write failed",
			zap.String("attribute", string(a)),
			zap.Stringer("value", v),
			zap.Uint16s("raw", raw),
			zap.Error(err),
		)
		werr := &WriteError{Attribute: a, Err: err}
		d.report(a, werr)
		return werr
	}

	d.state.Set(a, v)
	d.log.Info("set",
		zap.String("attribute", string(a)),
		zap.Stringer("value", v),
		zap.Uint16s("raw", raw),
	)
	d.report(a, nil)
	return nil
}

func (d *Dispatcher) report(a registers.Attribute, err error) {
	if d.observe != nil {
		d.observe(a, err)
	}
}

// ---- validation ----

func enumRule(a registers.Attribute) (registers.EnumMap, error) {
	spec, ok := registers.Lookup(a)
	if !ok {
		return registers.EnumMap{}, invalid(a, nil, "unknown attribute")
	}
	m, ok := spec.Rule.(registers.EnumMap)
	if !ok {
		return registers.EnumMap{}, invalid(a, nil, "attribute is not an enumeration")
	}
	return m, nil
}

var settableModes = []string{registers.ModeHeat, registers.ModeCool, registers.ModeHeatCool}

func label(a registers.Attribute, l string) (registers.Value, error) {
	m, err := enumRule(a)
	if err != nil {
		return registers.Value{}, err
	}
	code, ok := m.Lookup(l)
	if !ok {
		return registers.Value{}, invalid(a, l, "must be one of %s", strings.Join(m.Labels(), ", "))
	}
	return registers.Enum(code, l), nil
}

func enumCode(a registers.Attribute, code int) (registers.Value, error) {
	m, err := enumRule(a)
	if err != nil {
		return registers.Value{}, err
	}
	if code < 0 || code > math.MaxUint16 {
		return registers.Value{}, invalid(a, code, "code out of range")
	}
	l, ok := m.Codes[uint16(code)]
	if !ok {
		return registers.Value{}, invalid(a, code, "undeclared code")
	}
	return registers.Enum(uint16(code), l), nil
}

func number(a registers.Attribute, f float64) (registers.Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return registers.Value{}, invalid(a, f, "not a finite number")
	}
	spec, ok := registers.Lookup(a)
	if !ok {
		return registers.Value{}, invalid(a, f, "unknown attribute")
	}
	lin, ok := spec.Rule.(registers.Linear)
	if !ok {
		return registers.Value{}, invalid(a, f, "attribute is not numeric")
	}
	raw := lin.Raw(f)
	lo, hi := lin.Range()
	if raw < lo || raw > hi {
		return registers.Value{}, invalid(a, f, "outside register range [%g, %g]",
			lo*lin.Factor, hi*lin.Factor)
	}
	return registers.Float(f), nil
}
