// internal/device/controller_test.go
package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nilan-modbus/internal/notify"
	"github.com/tamzrod/nilan-modbus/internal/poller"
	"github.com/tamzrod/nilan-modbus/internal/registers"
	"github.com/tamzrod/nilan-modbus/internal/state"
	"github.com/tamzrod/nilan-modbus/internal/status"
)

// fakeLink is a register link that flags overlapping requests.
type fakeLink struct {
	mu      sync.Mutex
	holding map[uint16]uint16
	input   map[uint16]uint16
	fail    map[uint16]error // by address, any bank

	delay    time.Duration
	gate     chan struct{} // when set, every request waits for it
	started  chan struct{} // signalled once on the first request
	once     sync.Once
	inflight atomic.Int32
	overlap  atomic.Bool
}

func newLink() *fakeLink {
	return &fakeLink{
		holding: map[uint16]uint16{},
		input:   map[uint16]uint16{},
		fail:    map[uint16]error{},
		started: make(chan struct{}),
	}
}

func (f *fakeLink) enter() {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	f.once.Do(func() { close(f.started) })
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeLink) leave() { f.inflight.Add(-1) }

func (f *fakeLink) read(m map[uint16]uint16, addr, qty uint16) ([]uint16, error) {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[addr]; err != nil {
		return nil, err
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = m[addr+uint16(i)]
	}
	return out, nil
}

func (f *fakeLink) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return f.read(f.holding, addr, qty)
}

func (f *fakeLink) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return f.read(f.input, addr, qty)
}

func (f *fakeLink) WriteHoldingRegisters(addr uint16, values []uint16) error {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[addr]; err != nil {
		return err
	}
	for i, v := range values {
		f.holding[addr+uint16(i)] = v
	}
	return nil
}

func newController(t *testing.T, link *fakeLink, cfg Config) *Controller {
	t.Helper()
	c, err := New(link, cfg)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresTransport(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestSnapshotBeforeFirstCycle(t *testing.T) {
	c := newController(t, newLink(), Config{})
	snap := c.Snapshot()
	require.Len(t, snap.Fields, len(registers.Map))
	for _, f := range snap.Fields {
		assert.False(t, f.Known(), f.Spec.Name)
	}
	assert.Equal(t, status.HealthUnknown, c.Health().Health)
}

func TestUpdate(t *testing.T) {
	link := newLink()
	link.holding[1002] = 1
	link.input[1002] = 9
	link.input[400] = 0

	var events []notify.ChangeEvent
	var observed []status.Snapshot
	c := newController(t, link, Config{
		Sink: notify.SinkFunc(func(ev notify.ChangeEvent) { events = append(events, ev) }),
		Observers: []Observer{ObserverFunc(func(res poller.Result, snap state.Snapshot, h status.Snapshot) {
			observed = append(observed, h)
			assert.Equal(t, "Heat", snap.Get(registers.HVACMode).Text())
		})},
	})

	res, err := c.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Len(t, events, 2)

	assert.Equal(t, "Hotwater", c.Snapshot().Get(registers.HVACAction).Text())
	require.Len(t, observed, 1)
	assert.Equal(t, status.HealthOK, observed[0].Health)
	assert.Equal(t, status.HealthOK, c.Health().Health)
}

func TestUpdate_DegradedHealth(t *testing.T) {
	link := newLink()
	link.fail[400] = errors.New("timeout")

	c := newController(t, link, Config{})
	res, err := c.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, res.OK())

	h := c.Health()
	assert.Equal(t, status.HealthDegraded, h.Health)
	assert.Equal(t, 1, h.FailedReads)
}

func TestCommandUpdatesSnapshot(t *testing.T) {
	link := newLink()
	c := newController(t, link, Config{})
	ctx := context.Background()

	require.NoError(t, c.SetFanMode(ctx, "normal-high"))
	require.NoError(t, c.SetHVACMode(ctx, "Cool"))
	require.NoError(t, c.SetTargetTemperature(ctx, 23.25))
	require.NoError(t, c.SetAirExchangeMode(ctx, "Energy"))
	require.NoError(t, c.SetCoolingSetpoint(ctx, 0))
	top := 50.0
	require.NoError(t, c.SetHotwaterSetpoints(ctx, &top, nil))

	snap := c.Snapshot()
	assert.Equal(t, "normal-high", snap.Get(registers.FanMode).Text())
	assert.Equal(t, "Cool", snap.Get(registers.HVACMode).Text())
	assert.Equal(t, "Energy", snap.Get(registers.AirExchangeMode).Text())
	assert.Equal(t, "Off", snap.Get(registers.CoolingSetpoint).Text())
	f, _ := snap.Get(registers.TargetTemperature).Number()
	assert.Equal(t, 23.25, f)

	link.mu.Lock()
	assert.Equal(t, uint16(3), link.holding[1003])
	assert.Equal(t, uint16(2325), link.holding[1004])
	assert.Equal(t, uint16(5000), link.holding[1700])
	link.mu.Unlock()
}

func TestCommandFailureReported(t *testing.T) {
	link := newLink()
	link.holding[1003] = 2

	var outcomes []error
	c := newController(t, link, Config{
		OnCommand: func(a registers.Attribute, err error) { outcomes = append(outcomes, err) },
	})
	ctx := context.Background()
	_, err := c.Update(ctx)
	require.NoError(t, err)

	link.mu.Lock()
	link.fail[1003] = errors.New("no response")
	link.mu.Unlock()

	err = c.SetFanMode(ctx, "high")
	require.Error(t, err)
	assert.Equal(t, "normal-low", c.Snapshot().Get(registers.FanMode).Text())
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0])
}

func TestRefresh(t *testing.T) {
	link := newLink()
	link.holding[1700] = 5500
	link.holding[1003] = 4

	c := newController(t, link, Config{})
	res, err := c.Refresh(context.Background(), registers.HotwaterTopSetpoint)
	require.NoError(t, err)
	assert.Equal(t, []registers.Attribute{registers.HotwaterTopSetpoint}, res.Read)

	f, _ := c.Snapshot().Get(registers.HotwaterTopSetpoint).Number()
	assert.Equal(t, 55.0, f)
	assert.True(t, c.Snapshot().Get(registers.FanMode).IsNil())
	assert.Equal(t, status.HealthUnknown, c.Health().Health)

	_, err = c.Refresh(context.Background(), "bogus")
	assert.Error(t, err)
	_, err = c.Refresh(context.Background())
	assert.Error(t, err)
}

func TestNoOverlap(t *testing.T) {
	link := newLink()
	link.delay = 50 * time.Microsecond
	c := newController(t, link, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Update(ctx)
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.SetTargetTemperature(ctx, 20+float64(i)))
			_ = c.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.False(t, link.overlap.Load(), "requests overlapped on the link")
}

func TestCommandWaitsForCycle(t *testing.T) {
	link := newLink()
	link.gate = make(chan struct{})
	c := newController(t, link, Config{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Update(context.Background())
	}()
	<-link.started

	// readers are never blocked by a cycle
	assert.Len(t, c.Snapshot().Fields, len(registers.Map))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.SetFanMode(ctx, "min")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(link.gate)
	<-done

	link.mu.Lock()
	_, written := link.holding[1003]
	link.mu.Unlock()
	assert.False(t, written)
}

func TestSlowSinkDoesNotHoldLink(t *testing.T) {
	link := newLink()
	link.holding[1002] = 1

	release := make(chan struct{})
	notified := make(chan struct{}, 8)
	c := newController(t, link, Config{
		Sink: notify.SinkFunc(func(notify.ChangeEvent) {
			notified <- struct{}{}
			<-release
		}),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Update(context.Background())
	}()
	<-notified

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.SetFanMode(ctx, "min"))

	close(release)
	<-done
	assert.Equal(t, "min", c.Snapshot().Get(registers.FanMode).Text())
}

func TestSinkPanicReleasesLink(t *testing.T) {
	link := newLink()
	link.holding[1002] = 1

	var panicked atomic.Bool
	c := newController(t, link, Config{
		Sink: notify.SinkFunc(func(notify.ChangeEvent) {
			if panicked.CompareAndSwap(false, true) {
				panic("sink failed")
			}
		}),
	})

	assert.Panics(t, func() { _, _ = c.Update(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Update(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetFanMode(ctx, "high"))
}

func TestPollPanicReleasesLink(t *testing.T) {
	c := newController(t, newLink(), Config{})

	assert.Panics(t, func() {
		_, _, _ = c.poll(context.Background(), func() poller.Result { panic("decode") })
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Update(ctx)
	assert.NoError(t, err)
}

func TestUpdate_CancelledBeforeStart(t *testing.T) {
	c := newController(t, newLink(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Update(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun(t *testing.T) {
	link := newLink()
	var cycles atomic.Int32
	c := newController(t, link, Config{
		Observers: []Observer{ObserverFunc(func(poller.Result, state.Snapshot, status.Snapshot) {
			cycles.Add(1)
		})},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return cycles.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, status.HealthDisabled, c.Health().Health)
}

func TestRun_BadInterval(t *testing.T) {
	c := newController(t, newLink(), Config{})
	assert.Error(t, c.Run(context.Background(), 0))
}
