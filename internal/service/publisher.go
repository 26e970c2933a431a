package service

import (
	"fmt"

	redis_ipc "github.com/rescoot/redis-ipc"

	"github.com/librescoot/ble-ota-peripheral/internal/bootloader"
)

// Publisher stores a field of the service hash and notifies subscribers.
type Publisher interface {
	Publish(field, value string) error
}

// IPCPublisher publishes through redis-ipc transaction groups.
type IPCPublisher struct {
	client *redis_ipc.Client
}

func NewIPCPublisher(client *redis_ipc.Client) *IPCPublisher {
	return &IPCPublisher{client: client}
}

func (p *IPCPublisher) Publish(field, value string) error {
	tx := p.client.NewTxGroup(field)

	tx.Add("HSET", bootloader.StateKey, field, value)
	tx.Add("PUBLISH", bootloader.StateKey, field)

	if _, err := tx.Exec(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", field, err)
	}
	return nil
}
