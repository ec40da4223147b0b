package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// Custom chime service (base A1C3xxxx-5B82-4E6F-9D21-74A9E3B10C44).
var (
	serviceChimeUUID = bluetooth.NewUUID([16]byte{0xA1, 0xC3, 0x00, 0x00, 0x5B, 0x82, 0x4E, 0x6F, 0x9D, 0x21, 0x74, 0xA9, 0xE3, 0xB1, 0x0C, 0x44})

	// Last event (Read/Notify): JSON payload with event id and timestamp.
	charEventUUID = bluetooth.NewUUID([16]byte{0xA1, 0xC3, 0x00, 0x01, 0x5B, 0x82, 0x4E, 0x6F, 0x9D, 0x21, 0x74, 0xA9, 0xE3, 0xB1, 0x0C, 0x44})
)

// Channel is the BLE implementation of the notification channel. Delivery is
// fire-and-forget: a notification reaches whoever is subscribed right now and
// is never queued or retried.
type Channel struct {
	adapter *bluetooth.Adapter
	name    string

	eventHandle bluetooth.Characteristic

	mu        sync.Mutex
	observer  Observer
	connected atomic.Bool

	logger *slog.Logger
}

// NewChannel creates a BLE channel advertising under the given local name.
func NewChannel(name string) *Channel {
	return &Channel{
		adapter: bluetooth.DefaultAdapter,
		name:    name,
		logger:  slog.Default().With("component", "ble"),
	}
}

// SetObserver registers the connection state observer. Must be called before
// Start.
func (c *Channel) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Start enables the adapter, registers the chime service, and begins
// advertising.
func (c *Channel) Start() error {
	if err := c.adapter.Enable(); err != nil {
		return err
	}

	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		c.handleConnect(connected)
	})

	err := c.adapter.AddService(&bluetooth.Service{
		UUID: serviceChimeUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:   charEventUUID,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
				Handle: &c.eventHandle,
			},
		},
	})
	if err != nil {
		return err
	}

	adv := c.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    c.name,
		ServiceUUIDs: []bluetooth.UUID{serviceChimeUUID},
	}); err != nil {
		return err
	}

	c.logger.Info("BLE channel advertising", "name", c.name)
	return adv.Start()
}

// handleConnect tracks the subscriber state and informs the observer.
func (c *Channel) handleConnect(connected bool) {
	was := c.connected.Swap(connected)
	if was == connected {
		return
	}

	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()

	if connected {
		c.logger.Info("Subscriber connected")
		if observer != nil {
			observer.OnSubscriberConnected()
		}
	} else {
		c.logger.Info("Subscriber disconnected")
		if observer != nil {
			observer.OnSubscriberDisconnected()
		}
	}
}

// IsSubscriberConnected reports whether a central is currently connected.
func (c *Channel) IsSubscriberConnected() bool {
	return c.connected.Load()
}

// Notify writes the payload to the event characteristic, pushing a
// notification to the subscribed central.
func (c *Channel) Notify(payload string) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	_, err := c.eventHandle.Write([]byte(payload))
	return err
}
