package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/bootloader"
	"github.com/librescoot/ble-ota-peripheral/internal/config"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
	"github.com/librescoot/ble-ota-peripheral/internal/fsm"
	"github.com/librescoot/ble-ota-peripheral/internal/gatt"
	"github.com/librescoot/ble-ota-peripheral/internal/hibernation"
	"github.com/librescoot/ble-ota-peripheral/internal/hoststack"
	"github.com/librescoot/ble-ota-peripheral/internal/indicator"
	"github.com/librescoot/ble-ota-peripheral/internal/irq"
	"github.com/librescoot/ble-ota-peripheral/internal/metrics"
	"github.com/librescoot/ble-ota-peripheral/internal/power"
)

// CommandChannel receives advertise and hibernate requests.
const CommandChannel = "ble-ota:command"

// Bootloader is the external bootloader engine.
type Bootloader interface {
	// Check gives the engine a chance to run. It must not block.
	Check(ctx context.Context) error
	// Clear drops pending activation requests.
	Clear(ctx context.Context) error
}

// Deps are the collaborators a Service runs against.
type Deps struct {
	Driver     hoststack.Driver
	Outputs    indicator.Outputs
	Platform   hibernation.Platform
	Wake       *hibernation.Wake
	Bootloader Bootloader
	Publisher  Publisher
	Sink       diag.Sink
	Clock      clockwork.Clock
	// CPU defaults to the host CPU bounded by the configured sleep times.
	CPU    power.CPU
	Logger zerolog.Logger
}

type Service struct {
	config *config.Config
	logger zerolog.Logger

	irq        *irq.Controller
	queue      *ble.Queue
	stack      *hoststack.Stack
	machine    *fsm.Machine
	selector   *power.Selector
	indicators *indicator.Driver
	notifier   *gatt.Notifier
	layout     gatt.Layout
	trigger    *hibernation.Trigger
	wake       *hibernation.Wake
	bootloader Bootloader
	publisher  Publisher
	sink       diag.Sink
	clock      clockwork.Clock

	events chan Event
}

func New(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Driver == nil || deps.Outputs == nil || deps.Wake == nil {
		return nil, errors.New("driver, outputs and wake source are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	platform := deps.Platform
	if platform == nil {
		platform = hibernation.NoPark{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}
	next := deps.Sink
	if next == nil {
		next = diag.NewLogSink(deps.Logger)
	}
	sink := countingSink{next: next}

	s := &Service{
		config:     cfg,
		logger:     deps.Logger,
		irq:        irq.NewController(),
		wake:       deps.Wake,
		bootloader: deps.Bootloader,
		publisher:  publisher,
		sink:       sink,
		clock:      clock,
		events:     make(chan Event, 16),
	}
	if s.bootloader == nil {
		s.bootloader = bootloader.Nop{}
	}

	s.queue = ble.NewQueue(s.irq)
	s.stack = hoststack.New(deps.Driver, s.queue, clock, hoststack.Config{
		FastInterval:       cfg.FastInterval,
		FastWindow:         cfg.FastWindow,
		SlowInterval:       cfg.SlowInterval,
		SlowWindow:         cfg.SlowWindow,
		ConnInterval:       cfg.HostConnInterval,
		SupervisionTimeout: cfg.SupervisionTimeout,
	}, deps.Logger.With().Str("component", "stack").Logger())

	s.machine = fsm.NewMachine(fsm.NewDefinition(fsm.Config{
		IntervalThreshold: cfg.IntervalThreshold,
		Params: ble.ConnParams{
			MinInterval:        cfg.MinInterval,
			MaxInterval:        cfg.MaxInterval,
			Latency:            cfg.Latency,
			SupervisionTimeout: cfg.SupervisionTimeout,
		},
	}), s.stack, sink, deps.Logger.With().Str("component", "fsm").Logger())
	s.machine.OnTransition(s.onTransition)

	cpu := deps.CPU
	if cpu == nil {
		cpu = hoststack.NewCPU(s.irq, clock, cfg.LightSleep, cfg.DeepSleep)
	}
	s.indicators = indicator.NewDriver(deps.Outputs, clock, cfg.BlinkPeriod,
		deps.Logger.With().Str("component", "indicator").Logger())
	s.selector = power.NewSelector(s.stack, cpu, s.irq, deps.Logger.With().Str("component", "power").Logger())
	s.selector.AfterDeepSleep(func() {
		s.indicators.Refresh(s.machine.State())
	})

	s.layout = gatt.Layout{
		ServiceChanged:    ble.AttrHandle(cfg.ServiceChanged),
		BootloaderService: ble.AttrHandle(cfg.BootloaderService),
		FirstDescriptor:   ble.AttrHandle(cfg.FirstDescriptor),
		SerialNumber:      ble.AttrHandle(cfg.SerialNumberAttr),
	}
	for _, h := range cfg.DisabledServices {
		s.layout.DisabledServices = append(s.layout.DisabledServices, ble.AttrHandle(h))
	}
	s.notifier = gatt.NewNotifier(s.stack, s.layout, deps.Logger.With().Str("component", "gatt").Logger())

	s.trigger = hibernation.NewTrigger(deps.Wake, platform, deps.Logger.With().Str("component", "hibernation").Logger())
	s.trigger.OnEnter(func() {
		if err := s.bootloader.Clear(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to clear bootloader activation")
		}
	})

	metrics.SetState(fsm.KindIdle.String(), kindNames())

	return s, nil
}

// Start brings the stack up and sets up the attribute database. It runs
// once before the first Tick.
func (s *Service) Start() error {
	if err := s.stack.Start(); err != nil {
		return fmt.Errorf("failed to start stack: %w", err)
	}

	s.configureAttributes()

	s.publish("state", s.machine.State().Kind().String())
	return nil
}

// configureAttributes sets up the attribute database and forces clients to
// rediscover the bootloader service. A wake from hibernation counts as a
// boot, so it runs again then.
func (s *Service) configureAttributes() {
	if err := gatt.Configure(s.stack, s.layout, s.config.SerialNumber, s.logger); err != nil {
		s.sink.Report(err)
	}
	if _, err := s.notifier.Notify(); err != nil {
		s.sink.Report(err)
	}
}

// Run executes Tick until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, s.irq.Pend)
	defer stop()

	s.logger.Info().Msg("Main loop started")

	for ctx.Err() == nil {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		s.idle(ctx)
	}

	if err := s.stack.StopAdvertising(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop advertising")
	}
	s.logger.Info().Msg("Main loop stopped")
	return nil
}

// Tick runs one iteration of the main loop. It only returns an error when
// ctx ends during hibernation.
func (s *Service) Tick(ctx context.Context) error {
	s.processEvents()

	for _, ev := range s.queue.Drain() {
		sig := ble.Classify(ev)
		metrics.SignalsTotal.WithLabelValues(sig.Name()).Inc()
		s.machine.Handle(sig)
	}

	if s.machine.State().Kind() == fsm.KindHibernating {
		if err := s.hibernate(ctx); err != nil {
			return err
		}
	} else {
		depth := s.selector.SelectAndEnter(s.machine.State())
		metrics.SleepsTotal.WithLabelValues(depth.String()).Inc()
	}

	s.indicators.Refresh(s.machine.State())

	if err := s.bootloader.Check(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Bootloader check failed")
	}
	return nil
}

func (s *Service) hibernate(ctx context.Context) error {
	s.indicators.Refresh(s.machine.State())

	reason, err := s.trigger.Enter(ctx)
	if err != nil {
		return fmt.Errorf("hibernation interrupted: %w", err)
	}

	metrics.HibernationsTotal.WithLabelValues(reason).Inc()
	s.publish("wakeup-source", reason)

	s.machine.Reset()
	if err := s.stack.Start(); err != nil {
		s.sink.Report(diag.StackCall("restart stack", err))
		return nil
	}
	s.configureAttributes()
	return nil
}

// idle waits for the next event while the selector had no sleep to offer.
func (s *Service) idle(ctx context.Context) {
	switch s.machine.State().Kind() {
	case fsm.KindIdle, fsm.KindDisconnecting:
	default:
		return
	}
	if s.queue.Len() > 0 || len(s.events) > 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-s.irq.Pending():
	case <-s.clock.After(s.config.LightSleep):
	}
}

// HandleCommand handles a request from the command channel. An advertise
// request also wakes a hibernating device.
func (s *Service) HandleCommand(data []byte) error {
	command := string(data)

	t, ok := parseCommand(command)
	if !ok {
		s.logger.Warn().Str("command", command).Msg("Unknown command")
		return fmt.Errorf("unknown command: %s", command)
	}

	s.logger.Info().Str("command", command).Msg("Received command")

	if t == EventAdvertiseCommand && s.wake.Fire(hibernation.WakeReasonCommand) {
		return nil
	}

	select {
	case s.events <- Event{Type: t}:
	default:
		return errors.New("command queue full")
	}
	s.irq.Pend()
	return nil
}

func (s *Service) processEvents() {
	for {
		select {
		case evt := <-s.events:
			s.handleEvent(evt)
		default:
			return
		}
	}
}

func (s *Service) handleEvent(evt Event) {
	state := s.machine.State()

	switch evt.Type {
	case EventAdvertiseCommand:
		switch state.Kind() {
		case fsm.KindIdle, fsm.KindDisconnecting:
			if err := s.stack.Start(); err != nil {
				s.sink.Report(diag.StackCall("start stack", err))
			}
		default:
			s.logger.Debug().Stringer("state", state.Kind()).Msg("Already active, ignoring advertise")
		}
	case EventHibernateCommand:
		if state.Kind() != fsm.KindAdvertising {
			s.logger.Info().Stringer("state", state.Kind()).Msg("Not advertising, ignoring hibernate")
			return
		}
		if err := s.stack.StopAdvertising(); err != nil {
			s.sink.Report(diag.StackCall("stop advertising", err))
		}
	}
}

func (s *Service) onTransition(from, to fsm.State) {
	metrics.TransitionsTotal.WithLabelValues(from.Kind().String(), to.Kind().String()).Inc()
	metrics.SetState(to.Kind().String(), kindNames())

	if from.Kind() != to.Kind() {
		s.publish("state", to.Kind().String())
	}
}

func (s *Service) publish(field, value string) {
	s.logger.Debug().Str("field", field).Str("value", value).Msg("Publishing")
	if err := s.publisher.Publish(field, value); err != nil {
		s.logger.Warn().Err(err).Str("field", field).Msg("Failed to publish")
	}
}

// State returns the current lifecycle state.
func (s *Service) State() fsm.State {
	return s.machine.State()
}

func kindNames() []string {
	names := make([]string, 0, len(fsm.Kinds))
	for _, k := range fsm.Kinds {
		names = append(names, k.String())
	}
	return names
}

type countingSink struct {
	next diag.Sink
}

func (c countingSink) Report(err error) {
	metrics.DiagnosticsTotal.WithLabelValues(diag.Kind(err)).Inc()
	c.next.Report(err)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string) error { return nil }
