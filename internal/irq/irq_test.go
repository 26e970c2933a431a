package irq

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliverWaitsForSection(t *testing.T) {
	c := NewController()

	s := c.Enter()

	var ran atomic.Bool
	done := make(chan struct{})
	go func() {
		c.Deliver(func() { ran.Store(true) })
		close(done)
	}()

	// The token is raised even while delivery is masked.
	select {
	case <-c.Pending():
	case <-time.After(time.Second):
		t.Fatal("pending token not raised while masked")
	}
	assert.False(t, ran.Load())

	s.Exit()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery did not run after exit")
	}
	assert.True(t, ran.Load())
}

func TestExitIsIdempotent(t *testing.T) {
	c := NewController()

	s := c.Enter()
	s.Exit()
	s.Exit()

	// The mask is free again.
	s2 := c.Enter()
	s2.Exit()
}

func TestPendCoalesces(t *testing.T) {
	c := NewController()

	c.Pend()
	c.Pend()
	c.Pend()

	<-c.Pending()
	select {
	case <-c.Pending():
		t.Fatal("expected a single coalesced token")
	default:
	}
}
