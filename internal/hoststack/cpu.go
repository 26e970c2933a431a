package hoststack

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/librescoot/ble-ota-peripheral/internal/irq"
	"github.com/librescoot/ble-ota-peripheral/internal/power"
)

// CPU emulates the sleep primitives: both sleeps end on the next pending
// event or after a fixed time, the deep one after longer.
type CPU struct {
	irq   *irq.Controller
	clock clockwork.Clock
	light time.Duration
	deep  time.Duration
}

var _ power.CPU = (*CPU)(nil)

func NewCPU(c *irq.Controller, clock clockwork.Clock, light, deep time.Duration) *CPU {
	return &CPU{irq: c, clock: clock, light: light, deep: deep}
}

func (c *CPU) Sleep() {
	c.wait(c.light)
}

func (c *CPU) DeepSleep() {
	c.wait(c.deep)
}

func (c *CPU) wait(d time.Duration) {
	select {
	case <-c.irq.Pending():
	case <-c.clock.After(d):
	}
}
