package power

import (
	"github.com/rs/zerolog"

	"github.com/librescoot/ble-ota-peripheral/internal/fsm"
	"github.com/librescoot/ble-ota-peripheral/internal/irq"
)

// RadioMode is a low-power mode of the radio subsystem.
type RadioMode int

const (
	RadioActive RadioMode = iota
	RadioSleep
	RadioDeepSleep
)

func (m RadioMode) String() string {
	switch m {
	case RadioActive:
		return "active"
	case RadioSleep:
		return "sleep"
	case RadioDeepSleep:
		return "deep-sleep"
	default:
		return "unknown"
	}
}

// SubsystemState is the radio subsystem's clock and readiness flag.
type SubsystemState int

const (
	SubsystemActive SubsystemState = iota
	// SubsystemEventClose: a transmission or reception is being closed.
	SubsystemEventClose
	SubsystemSleep
	// SubsystemEcoOn: the external crystal oscillator is running.
	SubsystemEcoOn
	SubsystemDeepSleep
	SubsystemHibernate
)

var subsystemNames = map[SubsystemState]string{
	SubsystemActive:     "active",
	SubsystemEventClose: "event-close",
	SubsystemSleep:      "sleep",
	SubsystemEcoOn:      "eco-on",
	SubsystemDeepSleep:  "deep-sleep",
	SubsystemHibernate:  "hibernate",
}

func (s SubsystemState) String() string {
	if name, ok := subsystemNames[s]; ok {
		return name
	}
	return "unknown"
}

// Radio is the radio subsystem's power interface.
type Radio interface {
	// EnterLowPower requests mode and returns the mode actually entered.
	EnterLowPower(mode RadioMode) RadioMode
	SubsystemState() SubsystemState
}

// CPU provides the sleep primitives. Both return on the next wake source.
type CPU interface {
	Sleep()
	DeepSleep()
}

// Depth is the sleep depth entered by one selection.
type Depth int

const (
	DepthNone Depth = iota
	DepthLight
	DepthDeep
)

func (d Depth) String() string {
	switch d {
	case DepthNone:
		return "none"
	case DepthLight:
		return "light"
	case DepthDeep:
		return "deep"
	default:
		return "unknown"
	}
}

// Selector picks and enters the deepest safe sleep for each loop iteration.
type Selector struct {
	radio     Radio
	cpu       CPU
	irq       *irq.Controller
	logger    zerolog.Logger
	afterDeep func()
}

func NewSelector(radio Radio, cpu CPU, c *irq.Controller, logger zerolog.Logger) *Selector {
	return &Selector{
		radio:  radio,
		cpu:    cpu,
		irq:    c,
		logger: logger,
	}
}

// AfterDeepSleep registers fn to run right after waking from deep sleep,
// still inside the critical section.
func (s *Selector) AfterDeepSleep(fn func()) {
	s.afterDeep = fn
}

// SelectAndEnter sleeps as deep as the radio allows. It only acts while
// advertising or connected.
func (s *Selector) SelectAndEnter(state fsm.State) Depth {
	switch state.Kind() {
	case fsm.KindAdvertising, fsm.KindConnected:
	default:
		return DepthNone
	}

	mode := s.radio.EnterLowPower(RadioDeepSleep)

	sec := s.irq.Enter()
	defer sec.Exit()

	ss := s.radio.SubsystemState()

	if mode == RadioDeepSleep {
		if ss == SubsystemEcoOn || ss == SubsystemDeepSleep {
			s.cpu.DeepSleep()
			if s.afterDeep != nil {
				s.afterDeep()
			}
			return DepthDeep
		}
		s.logger.Trace().Stringer("subsystem", ss).Msg("Radio left deep sleep, staying awake")
		return DepthNone
	}

	if ss != SubsystemEventClose {
		s.cpu.Sleep()
		return DepthLight
	}
	return DepthNone
}
