// Package hoststack runs the control core against a host Bluetooth adapter
// or an in-memory simulation. It supplies the stack calls, the radio power
// interface and the CPU sleep primitives the core expects from firmware.
package hoststack

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/power"
)

// ErrUnsupported is returned for calls the backend cannot perform.
var ErrUnsupported = errors.New("not supported by backend")

// Driver is the radio backend behind a Stack.
type Driver interface {
	// Enable powers the adapter and registers onConnect for link changes.
	Enable(onConnect func(peer string, connected bool)) error
	Advertise(profile ble.AdvertisingProfile, interval time.Duration) error
	StopAdvertising() error
	WriteAttribute(h ble.AttrHandle, value []byte) error
	RequestConnectionParams(peer string, params ble.ConnParams) error
}

// Config sets the advertising cadence and the link parameters reported on
// connect.
type Config struct {
	FastInterval time.Duration
	FastWindow   time.Duration
	SlowInterval time.Duration
	SlowWindow   time.Duration

	// ConnInterval and SupervisionTimeout are reported in the connect event
	// when the backend cannot read the negotiated values.
	ConnInterval       uint16
	SupervisionTimeout uint16
}

// Stack adapts a Driver to ble.Stack. Link changes and advertising window
// boundaries are pushed to the queue as raw stack events.
type Stack struct {
	driver Driver
	queue  *ble.Queue
	clock  clockwork.Clock
	cfg    Config
	logger zerolog.Logger

	mu       deadlock.Mutex
	started  bool
	link     ble.LinkState
	profile  ble.AdvertisingProfile
	window   clockwork.Timer
	peers    map[string]ble.ConnHandle
	next     ble.ConnHandle
	disabled map[ble.AttrHandle]bool
}

var (
	_ ble.Stack   = (*Stack)(nil)
	_ power.Radio = (*Stack)(nil)
)

func New(driver Driver, queue *ble.Queue, clock clockwork.Clock, cfg Config, logger zerolog.Logger) *Stack {
	return &Stack{
		driver:   driver,
		queue:    queue,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		link:     ble.LinkStateStopped,
		peers:    make(map[string]ble.ConnHandle),
		next:     1,
		disabled: make(map[ble.AttrHandle]bool),
	}
}

// Start enables the adapter once and reports the stack as on. Later calls
// only report it again.
func (s *Stack) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.link = ble.LinkStateInitializing
		if err := s.driver.Enable(s.onConnect); err != nil {
			s.link = ble.LinkStateStopped
			return fmt.Errorf("failed to enable adapter: %w", err)
		}
		s.started = true
	}

	s.link = ble.LinkStateDisconnected
	s.queue.Push(ble.RawEvent{Tag: ble.EvtStackOn})
	return nil
}

func (s *Stack) StartAdvertising(profile ble.AdvertisingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errors.New("stack not started")
	}
	if s.link == ble.LinkStateConnected {
		return errors.New("link connected")
	}
	return s.advertise(profile)
}

// advertise starts profile and its window. s.mu must be held.
func (s *Stack) advertise(profile ble.AdvertisingProfile) error {
	interval, window := s.cfg.FastInterval, s.cfg.FastWindow
	if profile == ble.AdvertisingSlow {
		interval, window = s.cfg.SlowInterval, s.cfg.SlowWindow
	}

	if err := s.driver.Advertise(profile, interval); err != nil {
		return err
	}

	s.link = ble.LinkStateAdvertising
	s.profile = profile
	s.stopWindow()
	if window > 0 {
		s.window = s.clock.AfterFunc(window, s.windowClosed)
	}

	s.logger.Debug().Stringer("profile", profile).Dur("interval", interval).Dur("window", window).Msg("Advertising")
	return nil
}

func (s *Stack) windowClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != ble.LinkStateAdvertising {
		return
	}

	if s.profile == ble.AdvertisingFast {
		if err := s.advertise(ble.AdvertisingSlow); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to switch to slow advertising")
			s.stopLocked()
		}
	} else {
		s.stopLocked()
	}

	s.queue.Push(ble.RawEvent{Tag: ble.EvtAdvertisementStartStop})
}

// StopAdvertising ends advertising and reports the boundary like an
// expired window.
func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != ble.LinkStateAdvertising {
		return nil
	}
	if err := s.stopLocked(); err != nil {
		return err
	}
	s.queue.Push(ble.RawEvent{Tag: ble.EvtAdvertisementStartStop})
	return nil
}

func (s *Stack) stopLocked() error {
	s.stopWindow()
	s.link = ble.LinkStateDisconnected
	return s.driver.StopAdvertising()
}

func (s *Stack) stopWindow() {
	if s.window != nil {
		s.window.Stop()
		s.window = nil
	}
}

func (s *Stack) onConnect(peer string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connected {
		if _, ok := s.peers[peer]; ok {
			return
		}
		// Single link: a second central is not reported.
		if len(s.peers) > 0 {
			s.logger.Warn().Str("peer", peer).Msg("Ignoring second connection")
			return
		}
		h := s.next
		s.next++
		s.peers[peer] = h
		s.stopWindow()
		s.link = ble.LinkStateConnected

		s.queue.Push(ble.RawEvent{
			Tag:     ble.EvtDeviceConnected,
			Payload: ble.ConnectedPayload(h, s.cfg.ConnInterval, 0, s.cfg.SupervisionTimeout),
		})
		return
	}

	if _, ok := s.peers[peer]; !ok {
		return
	}
	delete(s.peers, peer)
	s.link = ble.LinkStateDisconnected
	s.queue.Push(ble.RawEvent{Tag: ble.EvtDeviceDisconnected})
}

func (s *Stack) LinkState() ble.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *Stack) RequestConnectionParams(h ble.ConnHandle, params ble.ConnParams) error {
	s.mu.Lock()
	peer, ok := s.peerFor(h)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no link with handle %d", h)
	}
	return s.driver.RequestConnectionParams(peer, params)
}

func (s *Stack) peerFor(h ble.ConnHandle) (string, bool) {
	for peer, ph := range s.peers {
		if ph == h {
			return peer, true
		}
	}
	return "", false
}

func (s *Stack) WriteAttribute(h ble.AttrHandle, value []byte) error {
	return s.driver.WriteAttribute(h, value)
}

// EnableAttribute and DisableAttribute track visibility only; services the
// backend never registered are not exposed either way.
func (s *Stack) EnableAttribute(h ble.AttrHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disabled, h)
	return nil
}

func (s *Stack) DisableAttribute(h ble.AttrHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[h] = true
	return nil
}

// Disabled reports whether h was disabled.
func (s *Stack) Disabled(h ble.AttrHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[h]
}

// RejectPreparedWrites is a no-op: host adapters answer prepared writes to
// characteristics without a write handler themselves.
func (s *Stack) RejectPreparedWrites() error {
	return nil
}

// EnterLowPower grants the requested mode unless events are waiting to be
// processed.
func (s *Stack) EnterLowPower(mode power.RadioMode) power.RadioMode {
	if s.queue.Len() > 0 {
		return power.RadioActive
	}
	return mode
}

// SubsystemState is called with delivery masked.
func (s *Stack) SubsystemState() power.SubsystemState {
	if s.queue.LenMasked() > 0 {
		return power.SubsystemEventClose
	}
	return power.SubsystemDeepSleep
}
