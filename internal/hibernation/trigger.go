// Package hibernation parks the device once advertising is exhausted and
// waits for the external wake interrupt.
package hibernation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// WakeSource is the external wake interrupt.
type WakeSource interface {
	ClearPending()
	Arm() error
	// Fired delivers the wake reason once the armed source fires.
	Fired() <-chan string
}

// Platform provides the deepest parked state available.
type Platform interface {
	// Park puts the platform to sleep. It may return before the wake
	// source fires.
	Park(ctx context.Context) error
}

// Trigger performs the hibernation entry.
type Trigger struct {
	wake     WakeSource
	platform Platform
	logger   zerolog.Logger
	onEnter  []func()
}

func NewTrigger(wake WakeSource, platform Platform, logger zerolog.Logger) *Trigger {
	return &Trigger{
		wake:     wake,
		platform: platform,
		logger:   logger,
	}
}

// OnEnter registers fn to run before the wake source is armed.
func (t *Trigger) OnEnter(fn func()) {
	t.onEnter = append(t.onEnter, fn)
}

// Enter clears and arms the wake source, parks the platform and blocks until
// the wake fires or ctx ends. It returns the wake reason.
func (t *Trigger) Enter(ctx context.Context) (string, error) {
	for _, fn := range t.onEnter {
		fn()
	}

	t.wake.ClearPending()
	if err := t.wake.Arm(); err != nil {
		return "", fmt.Errorf("failed to arm wake source: %w", err)
	}

	t.logger.Info().Msg("Wake source armed, parking")

	if err := t.platform.Park(ctx); err != nil {
		// Still parked in the wait below.
		t.logger.Warn().Err(err).Msg("Platform park failed")
	}

	select {
	case reason := <-t.wake.Fired():
		t.logger.Info().Str("reason", reason).Msg("Woke from hibernation")
		return reason, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// NoPark leaves the platform running; the trigger still waits for the wake.
type NoPark struct{}

func (NoPark) Park(context.Context) error { return nil }
