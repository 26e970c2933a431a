package hoststack

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
)

// Sim is an in-memory Driver. Peers are connected and disconnected by hand.
type Sim struct {
	logger zerolog.Logger

	mu          deadlock.Mutex
	onConnect   func(peer string, connected bool)
	advertising bool
	profiles    []ble.AdvertisingProfile
	attrs       map[ble.AttrHandle][]byte
	params      []ble.ConnParams
	advertErr   error
}

var _ Driver = (*Sim)(nil)

func NewSim(logger zerolog.Logger) *Sim {
	return &Sim{
		logger: logger,
		attrs:  make(map[ble.AttrHandle][]byte),
	}
}

func (s *Sim) Enable(onConnect func(peer string, connected bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = onConnect
	return nil
}

func (s *Sim) Advertise(profile ble.AdvertisingProfile, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.advertErr != nil {
		return s.advertErr
	}
	s.advertising = true
	s.profiles = append(s.profiles, profile)
	s.logger.Debug().Stringer("profile", profile).Dur("interval", interval).Msg("SIM: advertising")
	return nil
}

func (s *Sim) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertising = false
	return nil
}

func (s *Sim) WriteAttribute(h ble.AttrHandle, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[h] = append([]byte(nil), value...)
	return nil
}

func (s *Sim) RequestConnectionParams(peer string, params ble.ConnParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, params)
	return nil
}

// Connect simulates a central connecting.
func (s *Sim) Connect(peer string) error {
	return s.link(peer, true)
}

// Disconnect simulates the central dropping the link.
func (s *Sim) Disconnect(peer string) error {
	return s.link(peer, false)
}

func (s *Sim) link(peer string, connected bool) error {
	s.mu.Lock()
	cb := s.onConnect
	if connected {
		s.advertising = false
	}
	s.mu.Unlock()

	if cb == nil {
		return errors.New("adapter not enabled")
	}
	cb(peer, connected)
	return nil
}

// FailAdvertising makes every following Advertise return err.
func (s *Sim) FailAdvertising(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertErr = err
}

// Advertising reports whether the simulated radio is advertising.
func (s *Sim) Advertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

// Profiles returns every advertising profile started so far.
func (s *Sim) Profiles() []ble.AdvertisingProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ble.AdvertisingProfile(nil), s.profiles...)
}

// Attribute returns the last value written to h.
func (s *Sim) Attribute(h ble.AttrHandle) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[h]
}

// ParamRequests returns every connection parameter request made.
func (s *Sim) ParamRequests() []ble.ConnParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ble.ConnParams(nil), s.params...)
}
