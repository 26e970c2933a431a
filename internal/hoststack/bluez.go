package hoststack

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/librescoot/ble-ota-peripheral/internal/ble"
)

// Well-known 16-bit UUIDs of the services exposed by the host adapter.
const (
	uuidGenericAttribute  = 0x1801
	uuidServiceChanged    = 0x2A05
	uuidDeviceInformation = 0x180A
	uuidSerialNumber      = 0x2A25
)

// BlueZConfig names the advertisement and the attribute handles the host
// adapter maps to its own characteristics.
type BlueZConfig struct {
	LocalName         string
	BootloaderService string
	ServiceChanged    ble.AttrHandle
	SerialNumber      ble.AttrHandle
}

// BlueZ drives a host adapter through tinygo bluetooth.
type BlueZ struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	cfg     BlueZConfig
	logger  zerolog.Logger

	configured     bool
	serviceChanged bluetooth.Characteristic
	serialNumber   bluetooth.Characteristic
}

var _ Driver = (*BlueZ)(nil)

func NewBlueZ(cfg BlueZConfig, logger zerolog.Logger) *BlueZ {
	return &BlueZ{
		adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
		logger:  logger,
	}
}

func (b *BlueZ) Enable(onConnect func(peer string, connected bool)) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		onConnect(device.Address.String(), connected)
	})

	if err := b.addServices(); err != nil {
		return err
	}

	b.adv = b.adapter.DefaultAdvertisement()
	return nil
}

func (b *BlueZ) addServices() error {
	err := b.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.New16BitUUID(uuidGenericAttribute),
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &b.serviceChanged,
			UUID:   bluetooth.New16BitUUID(uuidServiceChanged),
			Value:  make([]byte, 4),
			Flags:  bluetooth.CharacteristicIndicatePermission,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to add generic attribute service: %w", err)
	}

	err = b.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.New16BitUUID(uuidDeviceInformation),
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &b.serialNumber,
			UUID:   bluetooth.New16BitUUID(uuidSerialNumber),
			Flags:  bluetooth.CharacteristicReadPermission,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to add device information service: %w", err)
	}

	if b.cfg.BootloaderService != "" {
		uuid, err := bluetooth.ParseUUID(b.cfg.BootloaderService)
		if err != nil {
			return fmt.Errorf("invalid bootloader service UUID: %w", err)
		}
		if err := b.adapter.AddService(&bluetooth.Service{UUID: uuid}); err != nil {
			return fmt.Errorf("failed to add bootloader service: %w", err)
		}
	}
	return nil
}

func (b *BlueZ) Advertise(profile ble.AdvertisingProfile, interval time.Duration) error {
	opts := bluetooth.AdvertisementOptions{
		LocalName: b.cfg.LocalName,
		Interval:  bluetooth.NewDuration(interval),
	}
	if b.cfg.BootloaderService != "" {
		if uuid, err := bluetooth.ParseUUID(b.cfg.BootloaderService); err == nil {
			opts.ServiceUUIDs = []bluetooth.UUID{uuid}
		}
	}

	if b.configured {
		// Reconfiguring requires the advertisement to be stopped.
		if err := b.adv.Stop(); err != nil {
			b.logger.Debug().Err(err).Msg("Stopping advertisement before reconfigure")
		}
	}
	if err := b.adv.Configure(opts); err != nil {
		return fmt.Errorf("failed to configure %s advertisement: %w", profile, err)
	}
	b.configured = true

	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("failed to start %s advertisement: %w", profile, err)
	}
	return nil
}

func (b *BlueZ) StopAdvertising() error {
	if b.adv == nil {
		return nil
	}
	return b.adv.Stop()
}

func (b *BlueZ) WriteAttribute(h ble.AttrHandle, value []byte) error {
	var ch *bluetooth.Characteristic
	switch h {
	case b.cfg.ServiceChanged:
		ch = &b.serviceChanged
	case b.cfg.SerialNumber:
		ch = &b.serialNumber
	default:
		return fmt.Errorf("attribute 0x%04x: %w", uint16(h), ErrUnsupported)
	}

	if _, err := ch.Write(value); err != nil {
		return fmt.Errorf("failed to write attribute 0x%04x: %w", uint16(h), err)
	}
	return nil
}

// RequestConnectionParams is not available to a BlueZ peripheral; the
// central keeps its own parameters.
func (b *BlueZ) RequestConnectionParams(peer string, params ble.ConnParams) error {
	return fmt.Errorf("connection parameter update for %s: %w", peer, ErrUnsupported)
}
