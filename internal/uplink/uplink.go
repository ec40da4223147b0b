// Package uplink publishes device status and completed events to an MQTT
// broker. The uplink is optional: when no broker is configured the device
// runs standalone and all publishing is skipped.
package uplink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/chimecam/chimecam/internal/events"
)

// Config holds the MQTT broker connection parameters.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ClientID   string `yaml:"client_id"`
	DeviceName string `yaml:"device_name"`
}

// Uplink publishes to chimecam/<device>/status (retained) and
// chimecam/<device>/events.
type Uplink struct {
	client mqtt.Client
	device string
	logger *slog.Logger
}

// eventMessage is the wire form of a completed event.
type eventMessage struct {
	MessageID string         `json:"message_id"`
	Device    string         `json:"device"`
	Event     events.Summary `json:"event"`
}

// statusMessage is the retained device status.
type statusMessage struct {
	Device string `json:"device"`
	Online bool   `json:"online"`
}

// New connects to the broker and returns a ready uplink.
func New(cfg Config) (*Uplink, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("chimecam-%s", uuid.New().String()[:8])
	}
	device := cfg.DeviceName
	if device == "" {
		device = "chimecam"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Broker marks the device offline if the connection drops
	will, _ := json.Marshal(statusMessage{Device: device, Online: false})
	opts.SetBinaryWill(statusTopic(device), will, 1, true)

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	u := &Uplink{
		client: cli,
		device: device,
		logger: slog.Default().With("component", "uplink"),
	}

	if err := u.publishStatus(true); err != nil {
		u.logger.Warn("Failed to publish online status", "error", err)
	}

	u.logger.Info("Uplink connected", "broker", broker, "device", device)
	return u, nil
}

// EventCompleted publishes the event summary. Implements the controller's
// sink interface; failures are logged and dropped.
func (u *Uplink) EventCompleted(ev events.Event) {
	msg := eventMessage{
		MessageID: uuid.New().String(),
		Device:    u.device,
		Event:     ev.Summarize(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		u.logger.Warn("Failed to encode event message", "id", ev.ID, "error", err)
		return
	}

	token := u.client.Publish(eventTopic(u.device), 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		u.logger.Warn("Failed to publish event", "id", ev.ID, "error", err)
	}
}

func (u *Uplink) publishStatus(online bool) error {
	payload, err := json.Marshal(statusMessage{Device: u.device, Online: online})
	if err != nil {
		return err
	}

	token := u.client.Publish(statusTopic(u.device), 1, true, payload)
	token.Wait()
	return token.Error()
}

// Close publishes the offline status and disconnects.
func (u *Uplink) Close() {
	if u.client == nil || !u.client.IsConnected() {
		return
	}

	if err := u.publishStatus(false); err != nil {
		u.logger.Warn("Failed to publish offline status", "error", err)
	}
	u.client.Disconnect(250)
}

func statusTopic(device string) string {
	return fmt.Sprintf("chimecam/%s/status", device)
}

func eventTopic(device string) string {
	return fmt.Sprintf("chimecam/%s/events", device)
}
