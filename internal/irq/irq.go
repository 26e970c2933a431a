// Package irq models interrupt masking for a single cooperative main loop.
//
// Producers running outside the loop (stack callbacks, GPIO edge handlers)
// deliver work through Deliver, the loop masks delivery with Enter/Exit.
// A pending token is raised before delivery is attempted, so a sleep entered
// while delivery is masked still wakes up.
package irq

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

type Controller struct {
	mask    deadlock.Mutex
	pending chan struct{}
}

func NewController() *Controller {
	return &Controller{
		pending: make(chan struct{}, 1),
	}
}

// Deliver raises the pending token and runs fn with delivery masked against
// the main loop. fn must not block.
func (c *Controller) Deliver(fn func()) {
	c.Pend()

	c.mask.Lock()
	defer c.mask.Unlock()
	fn()
}

// Pend raises the pending token without running a handler.
func (c *Controller) Pend() {
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Pending is readable while a token is raised. Receiving from it consumes
// the token.
func (c *Controller) Pending() <-chan struct{} {
	return c.pending
}

// Section is a held critical section.
type Section struct {
	c    *Controller
	once sync.Once
}

// Enter masks delivery until the returned section is exited.
func (c *Controller) Enter() *Section {
	c.mask.Lock()
	return &Section{c: c}
}

// Exit unmasks delivery. Calling it more than once is a no-op.
func (s *Section) Exit() {
	s.once.Do(s.c.mask.Unlock)
}
