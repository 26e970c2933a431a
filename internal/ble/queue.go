package ble

import "github.com/librescoot/ble-ota-peripheral/internal/irq"

// Queue is the inbound event channel. Producers push from any goroutine;
// the main loop drains it in arrival order.
type Queue struct {
	irq    *irq.Controller
	events []RawEvent
}

func NewQueue(c *irq.Controller) *Queue {
	return &Queue{irq: c}
}

// Push enqueues an event as an interrupt-context producer would.
func (q *Queue) Push(ev RawEvent) {
	q.irq.Deliver(func() {
		q.events = append(q.events, ev)
	})
}

// Drain returns every queued event in arrival order and empties the queue.
func (q *Queue) Drain() []RawEvent {
	s := q.irq.Enter()
	defer s.Exit()

	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	s := q.irq.Enter()
	defer s.Exit()
	return len(q.events)
}

// LenMasked reports the number of queued events without taking the mask.
// The caller must already hold a critical section.
func (q *Queue) LenMasked() int {
	return len(q.events)
}
