package ble

// Stack is the set of synchronous calls the core makes into the BLE stack.
// A non-nil error is a non-OK result code.
type Stack interface {
	// Start brings the stack up. StackReady is delivered through the event
	// queue once it is on.
	Start() error
	StartAdvertising(profile AdvertisingProfile) error
	StopAdvertising() error
	LinkState() LinkState
	RequestConnectionParams(h ConnHandle, params ConnParams) error
	// WriteAttribute performs a locally initiated write into the GATT
	// database.
	WriteAttribute(h AttrHandle, value []byte) error
	EnableAttribute(h AttrHandle) error
	DisableAttribute(h AttrHandle) error
	// RejectPreparedWrites answers a pending prepared write request with
	// "not supported".
	RejectPreparedWrites() error
}
