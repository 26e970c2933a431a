package ble

import "encoding/binary"

// Payload sizes for the events whose fields are decoded.
const (
	authInfoLen  = 4
	connectedLen = 8
	passkeyLen   = 4
	handleLen    = 2
)

// Classify maps a raw stack event to a Signal. It never fails: unknown tags
// and undecodable payloads become Unclassified.
func Classify(ev RawEvent) Signal {
	p := ev.Payload

	switch ev.Tag {
	case EvtStackOn:
		return StackReady{}

	case EvtHardwareError:
		var code uint8
		if len(p) > 0 {
			code = p[0]
		}
		return HardwareFault{Code: code}

	case EvtAuthReq:
		if len(p) < authInfoLen {
			return short(ev.Tag)
		}
		return AuthRequested{Info: AuthInfo{
			Security: p[0],
			Bonding:  p[1],
			KeySize:  p[2],
			AuthErr:  p[3],
		}}

	case EvtPasskeyEntryRequest:
		return AuthPasskeyNeeded{}

	case EvtPasskeyDisplayRequest:
		if len(p) < passkeyLen {
			return short(ev.Tag)
		}
		return AuthPasskeyNeeded{Display: true, Passkey: binary.LittleEndian.Uint32(p)}

	case EvtAuthComplete:
		return AuthCompleted{}

	case EvtAuthFailed:
		if len(p) < 1 {
			return short(ev.Tag)
		}
		return AuthFailed{Reason: p[0]}

	case EvtDeviceConnected:
		if len(p) < connectedLen {
			return short(ev.Tag)
		}
		return LinkConnected{
			Handle:             ConnHandle(binary.LittleEndian.Uint16(p[0:2])),
			Interval:           binary.LittleEndian.Uint16(p[2:4]),
			Latency:            binary.LittleEndian.Uint16(p[4:6]),
			SupervisionTimeout: binary.LittleEndian.Uint16(p[6:8]),
		}

	case EvtDeviceDisconnected:
		var reason uint8
		if len(p) > 0 {
			reason = p[0]
		}
		return LinkDisconnected{Reason: reason}

	case EvtEncryptChange:
		if len(p) < 1 {
			return short(ev.Tag)
		}
		return EncryptionChanged{Enabled: p[0] != 0}

	case EvtConnectionUpdateComplete:
		if len(p) < 1 {
			return short(ev.Tag)
		}
		return ConnParamUpdateCompleted{Status: p[0]}

	case EvtAdvertisementStartStop:
		return AdvertisingWindowClosed{}

	case EvtWriteCmdReq:
		var h AttrHandle
		if len(p) >= handleLen {
			h = AttrHandle(binary.LittleEndian.Uint16(p))
		}
		return AttributeWriteCommand{Handle: h}

	case EvtPrepWriteReq:
		return PrepWriteUnsupportedNotice{}
	}

	return Unclassified{Tag: ev.Tag}
}

func short(tag EventTag) Unclassified {
	return Unclassified{Tag: tag, Reason: "payload too short"}
}

// ConnectedPayload encodes a device-connected payload in the layout Classify
// decodes.
func ConnectedPayload(h ConnHandle, interval, latency, timeout uint16) []byte {
	p := make([]byte, connectedLen)
	binary.LittleEndian.PutUint16(p[0:2], uint16(h))
	binary.LittleEndian.PutUint16(p[2:4], interval)
	binary.LittleEndian.PutUint16(p[4:6], latency)
	binary.LittleEndian.PutUint16(p[6:8], timeout)
	return p
}

// PasskeyPayload encodes a passkey-display payload.
func PasskeyPayload(passkey uint32) []byte {
	p := make([]byte, passkeyLen)
	binary.LittleEndian.PutUint32(p, passkey)
	return p
}

// HandlePayload encodes an attribute handle payload.
func HandlePayload(h AttrHandle) []byte {
	p := make([]byte, handleLen)
	binary.LittleEndian.PutUint16(p, uint16(h))
	return p
}
