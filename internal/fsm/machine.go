package fsm

import (
	"github.com/rs/zerolog"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
)

// Machine owns the lifecycle state and applies transition effects to the
// stack. It must only be used from the main loop.
type Machine struct {
	def    *Definition
	stack  ble.Stack
	sink   diag.Sink
	logger zerolog.Logger

	state        State
	onTransition func(from, to State)
}

func NewMachine(def *Definition, stack ble.Stack, sink diag.Sink, logger zerolog.Logger) *Machine {
	return &Machine{
		def:    def,
		stack:  stack,
		sink:   sink,
		logger: logger,
		state:  Idle{},
	}
}

// OnTransition registers fn to be called whenever the state changes.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.onTransition = fn
}

func (m *Machine) State() State {
	return m.state
}

// Reset returns the machine to Idle, as after a restart.
func (m *Machine) Reset() {
	m.set(Idle{})
}

// Handle processes one signal and returns the resulting state.
func (m *Machine) Handle(sig ble.Signal) State {
	m.logSignal(sig)

	var env Env
	if _, ok := sig.(ble.AdvertisingWindowClosed); ok && m.state.Kind() == KindAdvertising {
		ls := m.stack.LinkState()
		env.LinkDisconnected = ls == ble.LinkStateDisconnected
		m.logger.Debug().Stringer("link", ls).Msg("Advertising window closed")
	}

	next, effects := m.def.Transition(m.state, sig, env)
	for _, e := range effects {
		if fallback, failed := m.apply(e); failed {
			next = fallback
		}
	}

	m.set(next)
	return m.state
}

// apply performs e. When e fails and demands a fallback state, it is
// returned with failed set.
func (m *Machine) apply(e Effect) (fallback State, failed bool) {
	switch e := e.(type) {
	case StartAdvertising:
		if err := m.stack.StartAdvertising(e.Profile); err != nil {
			m.sink.Report(diag.StackCall("start advertising", err))
			return e.OnFailure, true
		}
		m.logger.Info().Stringer("profile", e.Profile).Msg("Advertising started")

	case RequestConnParams:
		if err := m.stack.RequestConnectionParams(e.Handle, e.Params); err != nil {
			m.sink.Report(diag.StackCall("request connection params", err))
			return nil, false
		}
		m.logger.Info().
			Uint16("handle", uint16(e.Handle)).
			Uint16("min", e.Params.MinInterval).
			Uint16("max", e.Params.MaxInterval).
			Uint16("latency", e.Params.Latency).
			Uint16("timeout", e.Params.SupervisionTimeout).
			Msg("Requested connection parameter update")

	case EnterHibernation:
		m.logger.Info().Msg("Advertising exhausted, entering hibernation")

	case ReportFault:
		m.sink.Report(&diag.HardwareFault{Code: e.Code})

	case ReportAnomaly:
		m.sink.Report(&diag.ProtocolAnomaly{Detail: e.Detail})

	case RejectPreparedWrites:
		if err := m.stack.RejectPreparedWrites(); err != nil {
			m.sink.Report(diag.StackCall("reject prepared writes", err))
		}
	}
	return nil, false
}

func (m *Machine) set(next State) {
	prev := m.state
	m.state = next
	if prev == next {
		return
	}

	m.logger.Info().
		Stringer("from", prev.Kind()).
		Stringer("to", next.Kind()).
		Msg("Lifecycle state changed")
	if m.onTransition != nil {
		m.onTransition(prev, next)
	}
}

func (m *Machine) logSignal(sig ble.Signal) {
	switch sig := sig.(type) {
	case ble.AuthRequested:
		m.logger.Info().
			Uint8("security", sig.Info.Security).
			Uint8("bonding", sig.Info.Bonding).
			Uint8("key_size", sig.Info.KeySize).
			Uint8("err", sig.Info.AuthErr).
			Msg("Authentication requested")
	case ble.AuthPasskeyNeeded:
		if sig.Display {
			m.logger.Info().Msgf("Passkey display requested: %06d", sig.Passkey)
		} else {
			m.logger.Info().Msg("Passkey entry requested")
		}
	case ble.AuthCompleted:
		m.logger.Info().Msg("Authentication complete")
	case ble.AuthFailed:
		m.logger.Warn().Uint8("reason", sig.Reason).Msg("Authentication failed")
	case ble.LinkConnected:
		m.logger.Info().
			Uint16("handle", uint16(sig.Handle)).
			Uint16("interval", sig.Interval).
			Msg("Device connected")
	case ble.LinkDisconnected:
		m.logger.Info().Uint8("reason", sig.Reason).Msg("Device disconnected")
	case ble.EncryptionChanged:
		m.logger.Info().Bool("enabled", sig.Enabled).Msg("Encryption changed")
	case ble.ConnParamUpdateCompleted:
		if sig.Status != 0 {
			m.logger.Info().Uint8("status", sig.Status).Msg("Peer declined connection parameter update")
		} else {
			m.logger.Info().Msg("Connection parameter update complete")
		}
	case ble.AttributeWriteCommand:
		m.logger.Debug().Uint16("handle", uint16(sig.Handle)).Msg("Write command received")
	case ble.Unclassified:
		ev := m.logger.Debug().Stringer("tag", sig.Tag)
		if sig.Reason != "" {
			ev = ev.Str("reason", sig.Reason)
		}
		ev.Msg("Ignoring event")
	}
}
