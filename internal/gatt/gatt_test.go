package gatt

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
)

type mockStack struct {
	writes   []Write
	enabled  []ble.AttrHandle
	disabled []ble.AttrHandle
	writeErr error
	failOn   map[ble.AttrHandle]bool
}

func (m *mockStack) Start() error                                              { return nil }
func (m *mockStack) StartAdvertising(ble.AdvertisingProfile) error             { return nil }
func (m *mockStack) StopAdvertising() error                                    { return nil }
func (m *mockStack) LinkState() ble.LinkState                                  { return ble.LinkStateStopped }
func (m *mockStack) RequestConnectionParams(ble.ConnHandle, ble.ConnParams) error { return nil }
func (m *mockStack) RejectPreparedWrites() error                               { return nil }

func (m *mockStack) WriteAttribute(h ble.AttrHandle, v []byte) error {
	m.writes = append(m.writes, Write{Handle: h, Value: append([]byte(nil), v...)})
	return m.writeErr
}

func (m *mockStack) EnableAttribute(h ble.AttrHandle) error {
	m.enabled = append(m.enabled, h)
	return nil
}

func (m *mockStack) DisableAttribute(h ble.AttrHandle) error {
	m.disabled = append(m.disabled, h)
	if m.failOn[h] {
		return errors.New("not found")
	}
	return nil
}

var layout = Layout{
	ServiceChanged:    0x000E,
	BootloaderService: 0x0020,
	FirstDescriptor:   0x0024,
	SerialNumber:      0x0031,
	DisabledServices:  []ble.AttrHandle{0x0040, 0x0050},
}

func TestServiceChangedValue(t *testing.T) {
	assert.Equal(t, uint32(0x00200024), ServiceChangedValue(0x0020, 0x0024))
	assert.Equal(t, uint32(0xFFFF0001), ServiceChangedValue(0xFFFF, 0x0001))
}

func TestNotifyIsIdempotent(t *testing.T) {
	stack := &mockStack{}
	n := NewNotifier(stack, layout, zerolog.Nop())

	first, err := n.Notify()
	require.NoError(t, err)
	second, err := n.Notify()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Write{Handle: 0x000E, Value: []byte{0x24, 0x00, 0x20, 0x00}}, first)
	require.Len(t, stack.writes, 2)
	assert.Equal(t, stack.writes[0], stack.writes[1])
}

func TestNotifyFailureIsStackCall(t *testing.T) {
	stack := &mockStack{writeErr: errors.New("invalid handle")}
	n := NewNotifier(stack, layout, zerolog.Nop())

	w, err := n.Notify()

	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrStackCall)
	assert.Equal(t, ble.AttrHandle(0x000E), w.Handle)
}

func TestConfigure(t *testing.T) {
	stack := &mockStack{}

	err := Configure(stack, layout, "123456", zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, []ble.AttrHandle{0x0020}, stack.enabled)
	assert.Equal(t, []ble.AttrHandle{0x0040, 0x0050}, stack.disabled)
	assert.Equal(t, []Write{{Handle: 0x0031, Value: []byte("123456")}}, stack.writes)
}

func TestConfigureAttemptsEveryStep(t *testing.T) {
	stack := &mockStack{failOn: map[ble.AttrHandle]bool{0x0040: true}}

	err := Configure(stack, layout, "", zerolog.Nop())

	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrStackCall)
	assert.Contains(t, err.Error(), "disable service 0x0040")
	assert.Equal(t, []ble.AttrHandle{0x0040, 0x0050}, stack.disabled)
	assert.Empty(t, stack.writes)
}
