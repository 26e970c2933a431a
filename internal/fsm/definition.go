package fsm

import (
	"fmt"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
)

// Config holds the connection parameter policy.
type Config struct {
	// IntervalThreshold is the largest negotiated interval accepted without
	// requesting an update, in 1.25ms units.
	IntervalThreshold uint16
	Params            ble.ConnParams
}

// DefaultConfig requests a 7.5ms interval with no latency and a 1s
// supervision timeout from any peer connecting slower than that.
func DefaultConfig() Config {
	return Config{
		IntervalThreshold: 0x0006,
		Params: ble.ConnParams{
			MinInterval:        0x0006,
			MaxInterval:        0x0006,
			Latency:            0x0000,
			SupervisionTimeout: 0x0064,
		},
	}
}

// Definition is the lifecycle transition table.
type Definition struct {
	cfg Config
}

func NewDefinition(cfg Config) *Definition {
	return &Definition{cfg: cfg}
}

// Transition returns the state following sig in s and the effects the
// machine must apply. It has no side effects of its own.
func (d *Definition) Transition(s State, sig ble.Signal, env Env) (State, []Effect) {
	// Handled the same in every state
	switch sig := sig.(type) {
	case ble.HardwareFault:
		return s, []Effect{ReportFault{Code: sig.Code}}
	case ble.PrepWriteUnsupportedNotice:
		return s, []Effect{RejectPreparedWrites{}}
	}

	switch cur := s.(type) {
	case Idle:
		if _, ok := sig.(ble.StackReady); ok {
			return startAdvertising(Idle{})
		}

	case Advertising:
		switch sig := sig.(type) {
		case ble.LinkConnected:
			return d.connect(sig)
		case ble.AdvertisingWindowClosed:
			if env.LinkDisconnected {
				return Hibernating{}, []Effect{EnterHibernation{}}
			}
			if cur.Phase == ble.AdvertisingFast {
				return Advertising{Phase: ble.AdvertisingSlow}, nil
			}
		}

	case Connected:
		switch sig := sig.(type) {
		case ble.LinkDisconnected:
			return startAdvertising(Disconnecting{})
		case ble.LinkConnected:
			return s, []Effect{ReportAnomaly{
				Detail: fmt.Sprintf("connect on handle %d while connected on handle %d", sig.Handle, cur.Handle),
			}}
		}

	case Disconnecting:
		switch sig.(type) {
		case ble.LinkDisconnected, ble.StackReady:
			return startAdvertising(Disconnecting{})
		case ble.LinkConnected:
			return s, []Effect{ReportAnomaly{Detail: "connect while disconnecting"}}
		}

	case Hibernating:
		// Left only through the boot entry trigger.
	}

	if sig, ok := sig.(ble.LinkConnected); ok {
		return s, []Effect{ReportAnomaly{
			Detail: fmt.Sprintf("connect on handle %d while %s", sig.Handle, s.Kind()),
		}}
	}

	return s, nil
}

func (d *Definition) connect(sig ble.LinkConnected) (State, []Effect) {
	next := Connected{Handle: sig.Handle, Interval: sig.Interval}
	if sig.Interval <= d.cfg.IntervalThreshold {
		return next, nil
	}
	next.ParamsRequested = true
	return next, []Effect{RequestConnParams{Handle: sig.Handle, Params: d.cfg.Params}}
}

func startAdvertising(onFailure State) (State, []Effect) {
	return Advertising{Phase: ble.AdvertisingFast}, []Effect{
		StartAdvertising{Profile: ble.AdvertisingFast, OnFailure: onFailure},
	}
}
