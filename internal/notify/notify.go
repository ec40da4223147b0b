// Package notify provides the short-range notification channel: a BLE GATT
// service that pushes event notifications to a subscribed central device.
package notify

// NotifyError represents a notification channel error.
type NotifyError string

func (e NotifyError) Error() string { return string(e) }

// ErrNotConnected is returned when no central is subscribed. Expected and
// non-fatal: the controller checks the connection state first and skips
// silently.
const ErrNotConnected = NotifyError("no subscriber connected")

// Observer receives connection state changes. The controller implements it
// and registers itself at wiring time.
type Observer interface {
	OnSubscriberConnected()
	OnSubscriberDisconnected()
}

// Notifier is the channel surface the controller depends on.
type Notifier interface {
	IsSubscriberConnected() bool
	Notify(payload string) error
}
