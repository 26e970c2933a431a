// Package gatt performs the one-shot attribute database setup done before
// the main loop: exposing the bootloader service and forcing clients to
// rediscover it.
package gatt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
	"github.com/librescoot/ble-ota-peripheral/internal/diag"
)

// Layout holds the attribute handles the setup touches.
type Layout struct {
	ServiceChanged    ble.AttrHandle
	BootloaderService ble.AttrHandle
	// FirstDescriptor is the first characteristic descriptor of the
	// bootloader service.
	FirstDescriptor  ble.AttrHandle
	SerialNumber     ble.AttrHandle
	DisabledServices []ble.AttrHandle
}

// Write is a locally initiated attribute write.
type Write struct {
	Handle ble.AttrHandle
	Value  []byte
}

// ServiceChangedValue packs the affected handle range: the service handle in
// the high half, its first descriptor in the low half.
func ServiceChangedValue(service, descriptor ble.AttrHandle) uint32 {
	return uint32(service)<<16 | uint32(descriptor)
}

// Notifier writes the service-changed attribute.
type Notifier struct {
	stack  ble.Stack
	layout Layout
	logger zerolog.Logger
}

func NewNotifier(stack ble.Stack, layout Layout, logger zerolog.Logger) *Notifier {
	return &Notifier{stack: stack, layout: layout, logger: logger}
}

// Notify writes the service-changed value and returns the write performed.
// The write is the same on every call.
func (n *Notifier) Notify() (Write, error) {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, ServiceChangedValue(n.layout.BootloaderService, n.layout.FirstDescriptor))

	w := Write{Handle: n.layout.ServiceChanged, Value: value}
	if err := n.stack.WriteAttribute(w.Handle, w.Value); err != nil {
		return w, diag.StackCall("write service changed", err)
	}

	n.logger.Info().
		Uint16("handle", uint16(w.Handle)).
		Hex("value", w.Value).
		Msg("Service changed written")
	return w, nil
}

// Configure enables the bootloader service, sets the serial number and
// disables the other services. Every step is attempted; the failures are
// returned together.
func Configure(stack ble.Stack, layout Layout, serial string, logger zerolog.Logger) error {
	var errs []error

	if err := stack.EnableAttribute(layout.BootloaderService); err != nil {
		errs = append(errs, diag.StackCall("enable bootloader service", err))
	}

	if serial != "" {
		if err := stack.WriteAttribute(layout.SerialNumber, []byte(serial)); err != nil {
			errs = append(errs, diag.StackCall("write serial number", err))
		}
	}

	for _, h := range layout.DisabledServices {
		if err := stack.DisableAttribute(h); err != nil {
			errs = append(errs, diag.StackCall(fmt.Sprintf("disable service 0x%04x", uint16(h)), err))
		}
	}

	logger.Info().
		Uint16("bootloader_service", uint16(layout.BootloaderService)).
		Int("disabled", len(layout.DisabledServices)).
		Str("serial", serial).
		Msg("GATT database configured")

	return errors.Join(errs...)
}
