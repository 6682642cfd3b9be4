// internal/device/controller.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/command"
	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/status"
	"github.com/tamzrod/nilan-modbus/internal/transport"
)

// Observer is handed the outcome of every poll cycle, after the link is released.
type Observer interface {
	Observe(res poller.Result, snap state.Snapshot, health status.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(poller.Result, state.Snapshot, status.Snapshot)

func (f ObserverFunc) Observe(res poller.Result, snap state.Snapshot, health status.Snapshot) {
	f(res, snap, health)
}

// Config wires optional collaborators. The zero value is usable.
type Config struct {
	Sink      notify.Sink
	Logger    *zap.Logger
	Observers []Observer
	OnCommand command.Observer
}

// Controller owns one device: its transport, state, poller and dispatcher.
//
// The link carries one request at a time, so poll cycles and commands
// hold a single slot for their whole duration. A cycle that has started
// runs to completion; ctx only bounds the wait for the slot.
type Controller struct {
	slot chan struct{}

	state     *state.State
	poller    *poller.Poller
	cmd       *command.Dispatcher
	health    *status.Tracker
	sink      notify.Sink
	observers []Observer
	log       *zap.Logger

	// published is the last snapshot taken while holding the slot.
	published atomic.Pointer[state.Snapshot]
}

// New builds a controller over a connected transport.
// The controller never opens or closes tr.
func New(tr transport.Transport, cfg Config) (*Controller, error) {
	if tr == nil {
		return nil, errors.New("device: transport required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	st := state.New()

	sink := cfg.Sink
	if sink == nil {
		sink = notify.Discard
	}

	// The poller gets no sink: events are delivered after the slot is released.
	p, err := poller.New(tr, st, nil, log)
	if err != nil {
		return nil, err
	}
	d, err := command.New(tr, st, log)
	if err != nil {
		return nil, err
	}
	if cfg.OnCommand != nil {
		d.Observe(cfg.OnCommand)
	}

	c := &Controller{
		slot:      make(chan struct{}, 1),
		state:     st,
		poller:    p,
		cmd:       d,
		health:    status.NewTracker(),
		sink:      sink,
		observers: cfg.Observers,
		log:       log.Named("device"),
	}
	snap := st.Snapshot()
	c.published.Store(&snap)
	return c, nil
}

func (c *Controller) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() {
	<-c.slot
}

// publish must be called while holding the slot.
func (c *Controller) publish() state.Snapshot {
	snap := c.state.Snapshot()
	c.published.Store(&snap)
	return snap
}

// Update runs one full poll cycle.
// The returned error is non-nil only when ctx ended before the cycle could
// start; read failures are reported in the Result.
func (c *Controller) Update(ctx context.Context) (poller.Result, error) {
	res, snap, err := c.poll(ctx, c.poller.PollOnce)
	if err != nil {
		return poller.Result{}, err
	}

	health := c.health.Record(res.Aborted != nil, len(res.Failed), res.Err())
	c.deliver(res.Events)
	c.notifyObservers(res, snap, health)
	return res, nil
}

// Refresh polls only attrs, in register-map order.
// It does not count as a cycle for link health.
func (c *Controller) Refresh(ctx context.Context, attrs ...registers.Attribute) (poller.Result, error) {
	for _, a := range attrs {
		if _, ok := registers.Lookup(a); !ok {
			return poller.Result{}, fmt.Errorf("device: unknown attribute %q", a)
		}
	}
	specs := registers.Select(attrs...)
	if len(specs) == 0 {
		return poller.Result{}, errors.New("device: no attributes to refresh")
	}

	res, _, err := c.poll(ctx, func() poller.Result { return c.poller.Poll(specs) })
	if err != nil {
		return poller.Result{}, err
	}
	c.deliver(res.Events)
	return res, nil
}

// poll runs fn while holding the slot and publishes the resulting state.
func (c *Controller) poll(ctx context.Context, fn func() poller.Result) (poller.Result, state.Snapshot, error) {
	if err := c.acquire(ctx); err != nil {
		return poller.Result{}, state.Snapshot{}, err
	}
	defer c.release()

	res := fn()
	return res, c.publish(), nil
}

// deliver hands change events to the sink. The slot is already released,
// so a slow sink delays only the caller, never the link.
func (c *Controller) deliver(events []notify.ChangeEvent) {
	for _, ev := range events {
		c.sink.Notify(ev)
	}
}

func (c *Controller) notifyObservers(res poller.Result, snap state.Snapshot, health status.Snapshot) {
	for _, o := range c.observers {
		o.Observe(res, snap, health)
	}
}

// ---- commands ----

func (c *Controller) exec(ctx context.Context, fn func(d *command.Dispatcher) error) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	err := fn(c.cmd)
	c.publish()
	return err
}

func (c *Controller) SetHVACMode(ctx context.Context, mode string) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetHVACMode(mode) })
}

func (c *Controller) SetTargetTemperature(ctx context.Context, celsius float64) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetTargetTemperature(celsius) })
}

func (c *Controller) SetFanMode(ctx context.Context, mode string) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetFanMode(mode) })
}

func (c *Controller) SetAirExchangeMode(ctx context.Context, mode string) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetAirExchangeMode(mode) })
}

func (c *Controller) SetCoolingSetpoint(ctx context.Context, code int) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetCoolingSetpoint(code) })
}

func (c *Controller) SetHotwaterSetpoints(ctx context.Context, top, bottom *float64) error {
	return c.exec(ctx, func(d *command.Dispatcher) error { return d.SetHotwaterSetpoints(top, bottom) })
}

// ---- readers ----

// Snapshot returns the state as of the last cycle or command.
// It never waits for the link.
func (c *Controller) Snapshot() state.Snapshot {
	return *c.published.Load()
}

// Health returns the current link health.
func (c *Controller) Health() status.Snapshot {
	return c.health.Snapshot()
}
