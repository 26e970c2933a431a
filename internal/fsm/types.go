package fsm

import (
	"fmt"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
)

// Kind names a lifecycle state.
type Kind int

// Lifecycle states
const (
	KindIdle Kind = iota
	KindAdvertising
	KindConnected
	KindDisconnecting
	KindHibernating
)

// Kinds lists every lifecycle state.
var Kinds = []Kind{KindIdle, KindAdvertising, KindConnected, KindDisconnecting, KindHibernating}

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindAdvertising:
		return "advertising"
	case KindConnected:
		return "connected"
	case KindDisconnecting:
		return "disconnecting"
	case KindHibernating:
		return "hibernating"
	default:
		return fmt.Sprintf("kind-%d", int(k))
	}
}

// State is the lifecycle state. Exactly one variant is active at a time.
type State interface {
	Kind() Kind
	state()
}

// Idle: stack started, not yet advertising.
type Idle struct{}

// Advertising carries the cadence currently in use.
type Advertising struct {
	Phase ble.AdvertisingProfile
}

// Connected owns the live connection handle. It is the only place the
// handle is kept.
type Connected struct {
	Handle          ble.ConnHandle
	Interval        uint16
	ParamsRequested bool
}

// Disconnecting: the link dropped and advertising has not been restarted.
type Disconnecting struct{}

// Hibernating: advertising windows exhausted with no connection.
type Hibernating struct{}

func (Idle) Kind() Kind          { return KindIdle }
func (Advertising) Kind() Kind   { return KindAdvertising }
func (Connected) Kind() Kind     { return KindConnected }
func (Disconnecting) Kind() Kind { return KindDisconnecting }
func (Hibernating) Kind() Kind   { return KindHibernating }

func (Idle) state()          {}
func (Advertising) state()   {}
func (Connected) state()     {}
func (Disconnecting) state() {}
func (Hibernating) state()   {}

// Effect is a side effect requested by a transition.
type Effect interface {
	effect()
}

// StartAdvertising asks the stack to (re)start advertising. On failure the
// machine falls back to OnFailure.
type StartAdvertising struct {
	Profile   ble.AdvertisingProfile
	OnFailure State
}

// RequestConnParams asks the peer for new connection parameters.
type RequestConnParams struct {
	Handle ble.ConnHandle
	Params ble.ConnParams
}

// EnterHibernation hands over to the boot entry trigger.
type EnterHibernation struct{}

// ReportFault surfaces a stack hardware fault.
type ReportFault struct {
	Code uint8
}

// ReportAnomaly surfaces a protocol anomaly.
type ReportAnomaly struct {
	Detail string
}

// RejectPreparedWrites answers a prepared write request with "not supported".
type RejectPreparedWrites struct{}

func (StartAdvertising) effect()     {}
func (RequestConnParams) effect()    {}
func (EnterHibernation) effect()     {}
func (ReportFault) effect()          {}
func (ReportAnomaly) effect()        {}
func (RejectPreparedWrites) effect() {}

// Env is the stack context sampled when a signal is processed.
type Env struct {
	// LinkDisconnected is true when the stack reports its link state as
	// disconnected.
	LinkDisconnected bool
}
