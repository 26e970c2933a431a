package service

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/config"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
	"github.com/librescoot/ble-ota-peripheral/internal/fsm"
	"github.com/librescoot/ble-ota-peripheral/internal/hibernation"
	"github.com/librescoot/ble-ota-peripheral/internal/hoststack"
	"github.com/librescoot/ble-ota-peripheral/internal/indicator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeOutputs struct {
	mu     sync.Mutex
	levels map[string]bool
	allOn  bool
}

func (f *fakeOutputs) Set(name string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levels == nil {
		f.levels = make(map[string]bool)
	}
	f.levels[name] = on

	all := true
	for _, n := range indicator.Names {
		all = all && f.levels[n]
	}
	f.allOn = f.allOn || all
	return nil
}

func (f *fakeOutputs) get(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[name]
}

func (f *fakeOutputs) sawAllOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allOn
}

type fakePublisher struct {
	mu     sync.Mutex
	values map[string][]string
}

func (f *fakePublisher) Publish(field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string][]string)
	}
	f.values[field] = append(f.values[field], value)
	return nil
}

func (f *fakePublisher) get(field string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.values[field]...)
}

type fakeBootloader struct {
	mu      sync.Mutex
	checks  int
	clears  int
	failing bool
}

func (f *fakeBootloader) Check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.failing {
		return errors.New("redis down")
	}
	return nil
}

func (f *fakeBootloader) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeBootloader) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.clears
}

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingSink) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSink) reports() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type nopCPU struct{}

func (nopCPU) Sleep()     {}
func (nopCPU) DeepSleep() {}

type fixture struct {
	svc   *Service
	sim   *hoststack.Sim
	clock *clockwork.FakeClock
	out   *fakeOutputs
	pub   *fakePublisher
	boot  *fakeBootloader
	sink  *recordingSink
	wake  *hibernation.Wake
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sim:   hoststack.NewSim(zerolog.Nop()),
		clock: clockwork.NewFakeClock(),
		out:   &fakeOutputs{},
		pub:   &fakePublisher{},
		boot:  &fakeBootloader{},
		sink:  &recordingSink{},
		wake:  hibernation.NewWake(nil),
		cfg:   config.New(),
	}
	f.cfg.HostConnInterval = 0x0010

	svc, err := New(f.cfg, Deps{
		Driver:     f.sim,
		Outputs:    f.out,
		Wake:       f.wake,
		Bootloader: f.boot,
		Publisher:  f.pub,
		Sink:       f.sink,
		Clock:      f.clock,
		CPU:        nopCPU{},
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) tick(t *testing.T) fsm.State {
	t.Helper()
	require.NoError(t, f.svc.Tick(context.Background()))
	return f.svc.State()
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(config.New(), Deps{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestStartConfiguresAttributes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Start())

	want := make([]byte, 4)
	binary.LittleEndian.PutUint32(want, uint32(f.cfg.BootloaderService)<<16|uint32(f.cfg.FirstDescriptor))
	assert.Equal(t, want, f.sim.Attribute(ble.AttrHandle(f.cfg.ServiceChanged)))
	assert.Equal(t, []byte("123456"), f.sim.Attribute(ble.AttrHandle(f.cfg.SerialNumberAttr)))
	for _, h := range f.cfg.DisabledServices {
		assert.True(t, f.svc.stack.Disabled(ble.AttrHandle(h)))
	}
	assert.False(t, f.svc.stack.Disabled(ble.AttrHandle(f.cfg.BootloaderService)))
	assert.Equal(t, []string{"idle"}, f.pub.get("state"))
	assert.Empty(t, f.sink.reports())
}

func TestFirstTickStartsAdvertising(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())

	state := f.tick(t)

	assert.Equal(t, fsm.Advertising{Phase: ble.AdvertisingFast}, state)
	assert.True(t, f.sim.Advertising())
	assert.Equal(t, []string{"idle", "advertising"}, f.pub.get("state"))
	assert.False(t, f.out.get(indicator.Bootloading))

	checks, _ := f.boot.counts()
	assert.Equal(t, 1, checks)
}

func TestConnectAndReconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())
	f.tick(t)

	require.NoError(t, f.sim.Connect("peer-1"))
	state := f.tick(t)

	connected, ok := state.(fsm.Connected)
	require.True(t, ok)
	assert.Equal(t, ble.ConnHandle(1), connected.Handle)
	assert.True(t, connected.ParamsRequested)
	assert.Len(t, f.sim.ParamRequests(), 1)
	for _, name := range indicator.Names {
		assert.False(t, f.out.get(name), name)
	}

	require.NoError(t, f.sim.Disconnect("peer-1"))
	state = f.tick(t)

	assert.Equal(t, fsm.Advertising{Phase: ble.AdvertisingFast}, state)
	assert.True(t, f.sim.Advertising())
}

func TestHibernationWokenByCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())
	f.tick(t)

	f.clock.Advance(f.cfg.FastWindow)
	require.Eventually(t, func() bool { return f.svc.queue.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, fsm.Advertising{Phase: ble.AdvertisingSlow}, f.tick(t))

	f.clock.Advance(f.cfg.SlowWindow)
	require.Eventually(t, func() bool { return f.svc.queue.Len() == 1 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.svc.Tick(context.Background()) }()

	require.Eventually(t, f.wake.Armed, time.Second, time.Millisecond)
	assert.True(t, f.out.sawAllOn())

	// Wipe the attribute database as a platform reset would.
	serviceChanged := ble.AttrHandle(f.cfg.ServiceChanged)
	written := f.sim.Attribute(serviceChanged)
	require.NotEmpty(t, written)
	require.NoError(t, f.sim.WriteAttribute(serviceChanged, nil))
	require.NoError(t, f.sim.WriteAttribute(ble.AttrHandle(f.cfg.SerialNumberAttr), nil))
	_, clears := f.boot.counts()
	assert.Equal(t, 1, clears)

	require.NoError(t, f.svc.HandleCommand([]byte("advertise")))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hibernation did not end")
	}

	assert.Equal(t, fsm.Idle{}, f.svc.State())
	assert.Equal(t, []string{hibernation.WakeReasonCommand}, f.pub.get("wakeup-source"))
	assert.Equal(t, written, f.sim.Attribute(serviceChanged))
	assert.Equal(t, []byte("123456"), f.sim.Attribute(ble.AttrHandle(f.cfg.SerialNumberAttr)))
	assert.Contains(t, f.pub.get("state"), "hibernating")

	assert.Equal(t, fsm.Advertising{Phase: ble.AdvertisingFast}, f.tick(t))
}

func TestHibernationInterruptedByContext(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())
	f.tick(t)
	require.NoError(t, f.svc.HandleCommand([]byte("hibernate")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Tick(ctx) }()

	require.Eventually(t, f.wake.Armed, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("tick did not return")
	}
}

func TestHibernateCommandIgnoredWhileConnected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())
	f.tick(t)
	require.NoError(t, f.sim.Connect("peer-1"))
	f.tick(t)

	require.NoError(t, f.svc.HandleCommand([]byte("hibernate")))
	state := f.tick(t)

	assert.Equal(t, fsm.KindConnected, state.Kind())
	assert.False(t, f.wake.Armed())
}

func TestAdvertiseCommandRestartsFromIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start())
	f.sim.FailAdvertising(errors.New("radio busy"))

	assert.Equal(t, fsm.Idle{}, f.tick(t))
	require.NotEmpty(t, f.sink.reports())
	assert.ErrorIs(t, f.sink.reports()[0], diag.ErrStackCall)

	f.sim.FailAdvertising(nil)
	require.NoError(t, f.svc.HandleCommand([]byte("advertise")))

	assert.Equal(t, fsm.Advertising{Phase: ble.AdvertisingFast}, f.tick(t))
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	assert.Error(t, f.svc.HandleCommand([]byte("reboot")))
}

func TestBootloaderFailureDoesNotStopLoop(t *testing.T) {
	f := newFixture(t)
	f.boot.failing = true
	require.NoError(t, f.svc.Start())

	assert.Equal(t, fsm.KindAdvertising, f.tick(t).Kind())
	assert.Equal(t, fsm.KindAdvertising, f.tick(t).Kind())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, f.sim.Advertising, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
	assert.False(t, f.sim.Advertising())
}
