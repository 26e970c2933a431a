package ble

// Signal is the semantic meaning of a stack event. The set of
// implementations is closed.
type Signal interface {
	signal()
	Name() string
}

type StackReady struct{}

type HardwareFault struct {
	Code uint8
}

// AuthInfo mirrors the fields the stack reports with an auth request.
type AuthInfo struct {
	Security uint8
	Bonding  uint8
	KeySize  uint8
	AuthErr  uint8
}

type AuthRequested struct {
	Info AuthInfo
}

// AuthPasskeyNeeded asks for passkey entry, or, when Display is set, for the
// stack-chosen Passkey to be shown.
type AuthPasskeyNeeded struct {
	Display bool
	Passkey uint32
}

type AuthCompleted struct{}

type AuthFailed struct {
	Reason uint8
}

type LinkConnected struct {
	Handle             ConnHandle
	Interval           uint16
	Latency            uint16
	SupervisionTimeout uint16
}

type LinkDisconnected struct {
	Reason uint8
}

type EncryptionChanged struct {
	Enabled bool
}

type ConnParamUpdateCompleted struct {
	Status uint8
}

// AdvertisingWindowClosed is raised whenever advertising starts or stops;
// whether it closed the last window is decided from the stack's link state.
type AdvertisingWindowClosed struct{}

type AttributeWriteCommand struct {
	Handle AttrHandle
}

type PrepWriteUnsupportedNotice struct{}

// Unclassified covers every event outside the core's concern. Reason is set
// when a known tag carried a payload too short to decode.
type Unclassified struct {
	Tag    EventTag
	Reason string
}

func (StackReady) signal()                 {}
func (HardwareFault) signal()              {}
func (AuthRequested) signal()              {}
func (AuthPasskeyNeeded) signal()          {}
func (AuthCompleted) signal()              {}
func (AuthFailed) signal()                 {}
func (LinkConnected) signal()              {}
func (LinkDisconnected) signal()           {}
func (EncryptionChanged) signal()          {}
func (ConnParamUpdateCompleted) signal()   {}
func (AdvertisingWindowClosed) signal()    {}
func (AttributeWriteCommand) signal()      {}
func (PrepWriteUnsupportedNotice) signal() {}
func (Unclassified) signal()               {}

func (StackReady) Name() string                 { return "stack-ready" }
func (HardwareFault) Name() string              { return "hardware-fault" }
func (AuthRequested) Name() string              { return "auth-requested" }
func (AuthPasskeyNeeded) Name() string          { return "auth-passkey-needed" }
func (AuthCompleted) Name() string              { return "auth-completed" }
func (AuthFailed) Name() string                 { return "auth-failed" }
func (LinkConnected) Name() string              { return "link-connected" }
func (LinkDisconnected) Name() string           { return "link-disconnected" }
func (EncryptionChanged) Name() string          { return "encryption-changed" }
func (ConnParamUpdateCompleted) Name() string   { return "conn-param-update-completed" }
func (AdvertisingWindowClosed) Name() string    { return "advertising-window-closed" }
func (AttributeWriteCommand) Name() string      { return "attribute-write-command" }
func (PrepWriteUnsupportedNotice) Name() string { return "prep-write-unsupported" }
func (Unclassified) Name() string               { return "unclassified" }
