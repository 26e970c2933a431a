package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   RawEvent
		want Signal
	}{
		{"stack on", RawEvent{Tag: EvtStackOn}, StackReady{}},
		{"hardware error", RawEvent{Tag: EvtHardwareError, Payload: []byte{0x42}}, HardwareFault{Code: 0x42}},
		{"hardware error without code", RawEvent{Tag: EvtHardwareError}, HardwareFault{}},
		{"auth request", RawEvent{Tag: EvtAuthReq, Payload: []byte{1, 2, 16, 0}}, AuthRequested{Info: AuthInfo{Security: 1, Bonding: 2, KeySize: 16}}},
		{"passkey entry", RawEvent{Tag: EvtPasskeyEntryRequest}, AuthPasskeyNeeded{}},
		{"passkey display", RawEvent{Tag: EvtPasskeyDisplayRequest, Payload: PasskeyPayload(123456)}, AuthPasskeyNeeded{Display: true, Passkey: 123456}},
		{"auth complete", RawEvent{Tag: EvtAuthComplete}, AuthCompleted{}},
		{"auth failed", RawEvent{Tag: EvtAuthFailed, Payload: []byte{5}}, AuthFailed{Reason: 5}},
		{"connected", RawEvent{Tag: EvtDeviceConnected, Payload: ConnectedPayload(7, 0x0010, 0, 0x0064)}, LinkConnected{Handle: 7, Interval: 0x0010, SupervisionTimeout: 0x0064}},
		{"disconnected", RawEvent{Tag: EvtDeviceDisconnected, Payload: []byte{0x13}}, LinkDisconnected{Reason: 0x13}},
		{"encryption on", RawEvent{Tag: EvtEncryptChange, Payload: []byte{1}}, EncryptionChanged{Enabled: true}},
		{"encryption off", RawEvent{Tag: EvtEncryptChange, Payload: []byte{0}}, EncryptionChanged{}},
		{"conn update", RawEvent{Tag: EvtConnectionUpdateComplete, Payload: []byte{0x3b}}, ConnParamUpdateCompleted{Status: 0x3b}},
		{"adv start stop", RawEvent{Tag: EvtAdvertisementStartStop}, AdvertisingWindowClosed{}},
		{"write cmd", RawEvent{Tag: EvtWriteCmdReq, Payload: HandlePayload(0x0012)}, AttributeWriteCommand{Handle: 0x0012}},
		{"prep write", RawEvent{Tag: EvtPrepWriteReq}, PrepWriteUnsupportedNotice{}},
		{"key info exchange", RawEvent{Tag: EvtKeyInfoExchangeComplete}, Unclassified{Tag: EvtKeyInfoExchangeComplete}},
		{"hci status", RawEvent{Tag: EvtHCIStatus, Payload: []byte{0}}, Unclassified{Tag: EvtHCIStatus}},
		{"gatt connect ind", RawEvent{Tag: EvtGattConnectInd}, Unclassified{Tag: EvtGattConnectInd}},
		{"unknown tag", RawEvent{Tag: 0xBEEF, Payload: []byte{1, 2, 3}}, Unclassified{Tag: 0xBEEF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev))
		})
	}
}

func TestClassifyShortPayloads(t *testing.T) {
	tags := []EventTag{
		EvtAuthReq,
		EvtPasskeyDisplayRequest,
		EvtAuthFailed,
		EvtDeviceConnected,
		EvtEncryptChange,
		EvtConnectionUpdateComplete,
	}

	for _, tag := range tags {
		t.Run(tag.String(), func(t *testing.T) {
			got := Classify(RawEvent{Tag: tag})
			assert.Equal(t, Unclassified{Tag: tag, Reason: "payload too short"}, got)
		})
	}

	got := Classify(RawEvent{Tag: EvtDeviceConnected, Payload: []byte{7, 0, 0x10}})
	assert.IsType(t, Unclassified{}, got)
}

func TestEventTagString(t *testing.T) {
	assert.Equal(t, "device-connected", EvtDeviceConnected.String())
	assert.Equal(t, "event-0xbeef", EventTag(0xBEEF).String())
}
