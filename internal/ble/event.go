// Package ble holds the boundary between the external BLE stack and the
// control core: raw stack events, the semantic signals they classify into,
// the inbound event queue and the outbound stack interface.
package ble

import "fmt"

// EventTag identifies a stack-generated event.
type EventTag uint32

// Stack event tags
const (
	// General
	EvtStackOn       EventTag = 0x0001
	EvtHardwareError EventTag = 0x0003
	EvtHCIStatus     EventTag = 0x0004

	// GAP
	EvtAuthReq                  EventTag = 0x0101
	EvtPasskeyEntryRequest      EventTag = 0x0102
	EvtPasskeyDisplayRequest    EventTag = 0x0103
	EvtAuthComplete             EventTag = 0x0104
	EvtAuthFailed               EventTag = 0x0105
	EvtDeviceConnected          EventTag = 0x0106
	EvtDeviceDisconnected       EventTag = 0x0107
	EvtEncryptChange            EventTag = 0x0108
	EvtConnectionUpdateComplete EventTag = 0x0109
	EvtKeyInfoExchangeComplete  EventTag = 0x010A
	EvtAdvertisementStartStop   EventTag = 0x010B

	// GATT
	EvtGattConnectInd    EventTag = 0x0201
	EvtGattDisconnectInd EventTag = 0x0202
	EvtWriteCmdReq       EventTag = 0x0203
	EvtPrepWriteReq      EventTag = 0x0204
)

var tagNames = map[EventTag]string{
	EvtStackOn:                  "stack-on",
	EvtHardwareError:            "hardware-error",
	EvtHCIStatus:                "hci-status",
	EvtAuthReq:                  "auth-req",
	EvtPasskeyEntryRequest:      "passkey-entry-request",
	EvtPasskeyDisplayRequest:    "passkey-display-request",
	EvtAuthComplete:             "auth-complete",
	EvtAuthFailed:               "auth-failed",
	EvtDeviceConnected:          "device-connected",
	EvtDeviceDisconnected:       "device-disconnected",
	EvtEncryptChange:            "encrypt-change",
	EvtConnectionUpdateComplete: "connection-update-complete",
	EvtKeyInfoExchangeComplete:  "keyinfo-exchange-complete",
	EvtAdvertisementStartStop:   "advertisement-start-stop",
	EvtGattConnectInd:           "gatt-connect-ind",
	EvtGattDisconnectInd:        "gatt-disconnect-ind",
	EvtWriteCmdReq:              "write-cmd-req",
	EvtPrepWriteReq:             "prep-write-req",
}

func (t EventTag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event-0x%04x", uint32(t))
}

// RawEvent is an event as delivered by the stack. Payload layout depends on
// the tag; the core only reads the fields it needs for classification.
type RawEvent struct {
	Tag     EventTag
	Payload []byte
}

// ConnHandle is the stack's identifier for a live link. The core stores it
// but never allocates or frees it.
type ConnHandle uint16

// AttrHandle addresses an attribute in the GATT database.
type AttrHandle uint16

// ConnParams is a connection parameter update request. Intervals are in
// 1.25ms units, the supervision timeout in 10ms units.
type ConnParams struct {
	MinInterval        uint16
	MaxInterval        uint16
	Latency            uint16
	SupervisionTimeout uint16
}

// AdvertisingProfile selects the advertising cadence.
type AdvertisingProfile int

const (
	AdvertisingFast AdvertisingProfile = iota
	AdvertisingSlow
)

func (p AdvertisingProfile) String() string {
	switch p {
	case AdvertisingFast:
		return "fast"
	case AdvertisingSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// LinkState is the stack's own view of the link, as returned by
// Stack.LinkState.
type LinkState int

const (
	LinkStateStopped LinkState = iota
	LinkStateInitializing
	LinkStateAdvertising
	LinkStateConnected
	LinkStateDisconnected
)

func (s LinkState) String() string {
	switch s {
	case LinkStateStopped:
		return "stopped"
	case LinkStateInitializing:
		return "initializing"
	case LinkStateAdvertising:
		return "advertising"
	case LinkStateConnected:
		return "connected"
	case LinkStateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
