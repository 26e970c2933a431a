package hibernation

import (
	"github.com/sasha-s/go-deadlock"
)

// Wake sources
const (
	WakeReasonButton  = "button"
	WakeReasonCommand = "command"
)

// Wake is a latched wake interrupt. Fire is ignored unless the wake is
// armed; a fire disarms it.
type Wake struct {
	mu    deadlock.Mutex
	armed bool
	fired chan string
	arm   func() error
}

// NewWake returns a disarmed wake. arm, when set, runs on every Arm to
// re-enable the underlying hardware interrupt.
func NewWake(arm func() error) *Wake {
	return &Wake{
		fired: make(chan string, 1),
		arm:   arm,
	}
}

// ClearPending drops a wake that fired before the last Arm.
func (w *Wake) ClearPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.fired:
	default:
	}
}

func (w *Wake) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.arm != nil {
		if err := w.arm(); err != nil {
			return err
		}
	}
	w.armed = true
	return nil
}

// Fire raises the wake with reason. It reports whether the wake was armed.
func (w *Wake) Fire(reason string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return false
	}
	w.armed = false

	select {
	case w.fired <- reason:
	default:
	}
	return true
}

// Armed reports whether the wake is waiting to fire.
func (w *Wake) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *Wake) Fired() <-chan string {
	return w.fired
}
