// Package indicator drives the status outputs from the lifecycle state.
package indicator

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/librescoot/ble-ota-peripheral/internal/fsm"
)

// Output names
const (
	Bootloading  = "bootloading"
	Advertising1 = "advertising-1"
	Advertising2 = "advertising-2"
)

// Names lists every output in a fixed order.
var Names = []string{Bootloading, Advertising1, Advertising2}

// Level is the observable behaviour of one output.
type Level int

const (
	Off Level = iota
	On
	Blink
)

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case On:
		return "on"
	case Blink:
		return "blink"
	default:
		return "unknown"
	}
}

// Pattern assigns a level to every output.
type Pattern struct {
	Bootloading  Level
	Advertising1 Level
	Advertising2 Level
}

// Levels returns the pattern keyed by output name.
func (p Pattern) Levels() map[string]Level {
	return map[string]Level{
		Bootloading:  p.Bootloading,
		Advertising1: p.Advertising1,
		Advertising2: p.Advertising2,
	}
}

// Derive maps a lifecycle state kind to its pattern.
func Derive(k fsm.Kind) Pattern {
	switch k {
	case fsm.KindAdvertising:
		return Pattern{Bootloading: Off, Advertising1: Blink, Advertising2: Blink}
	case fsm.KindHibernating:
		return Pattern{Bootloading: On, Advertising1: On, Advertising2: On}
	default:
		return Pattern{}
	}
}

// Outputs sets named outputs.
type Outputs interface {
	Set(name string, on bool) error
}

// Driver applies derived patterns to outputs.
type Driver struct {
	out    Outputs
	clock  clockwork.Clock
	period time.Duration
	epoch  time.Time
	logger zerolog.Logger

	levels map[string]bool
}

// NewDriver returns a driver blinking with the given half-period.
func NewDriver(out Outputs, clock clockwork.Clock, period time.Duration, logger zerolog.Logger) *Driver {
	return &Driver{
		out:    out,
		clock:  clock,
		period: period,
		epoch:  clock.Now(),
		logger: logger,
		levels: make(map[string]bool),
	}
}

// Refresh brings the outputs in line with state. Only changed outputs are
// written; it can be called any number of times.
func (d *Driver) Refresh(state fsm.State) {
	phase := d.blinkPhase()
	for name, level := range Derive(state.Kind()).Levels() {
		on := level == On || (level == Blink && phase)
		if cur, ok := d.levels[name]; ok && cur == on {
			continue
		}
		if err := d.out.Set(name, on); err != nil {
			d.logger.Warn().Err(err).Str("output", name).Msg("Failed to set indicator")
			continue
		}
		d.levels[name] = on
	}
}

// Current returns the last level written to each output.
func (d *Driver) Current() map[string]bool {
	out := make(map[string]bool, len(d.levels))
	for k, v := range d.levels {
		out[k] = v
	}
	return out
}

func (d *Driver) blinkPhase() bool {
	if d.period <= 0 {
		return true
	}
	return (d.clock.Since(d.epoch)/d.period)%2 == 0
}
