// Package controller implements the event-driven capture state machine: it
// consumes debounced trigger presses, drives still and audio capture,
// persists results, notifies the BLE subscriber, and keeps the bounded
// in-memory event history served by the HTTP API.
package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chimecam/chimecam/internal/events"
	"github.com/chimecam/chimecam/internal/notify"
	"github.com/chimecam/chimecam/internal/store"
)

// State is the controller's lifecycle state. The machine cycles forever:
// idle -> capturing -> notifying -> cooldown -> idle.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateNotifying State = "notifying"
	StateCooldown  State = "cooldown"
)

// Trigger is the debounced press detector, polled once per loop tick while
// idle.
type Trigger interface {
	Poll(now time.Time) bool
}

// CaptureProvider produces stills and audio windows.
type CaptureProvider interface {
	AcquireStill(ctx context.Context) ([]byte, error)
	AcquireAudioWindow(ctx context.Context, d time.Duration, w io.Writer) error
	HasCamera() bool
	HasMicrophone() bool
}

// ArtifactStore is the durable artifact storage surface the controller needs.
type ArtifactStore interface {
	WriteArtifact(name string, data []byte) error
	Create(name string) (io.WriteCloser, error)
	NextEventID() uint64
}

// EventLog is the durable append-only event log.
type EventLog interface {
	Append(ctx context.Context, ev events.Event) error
}

// Sink receives completed events after the notify step. Used for the
// websocket hub and the MQTT uplink.
type Sink interface {
	EventCompleted(ev events.Event)
}

// Config holds the controller's timing and sizing parameters.
type Config struct {
	Cooldown     time.Duration
	AudioWindow  time.Duration
	HistorySize  int
	LoopInterval time.Duration
}

// DefaultConfig returns the stock controller parameters.
func DefaultConfig() Config {
	return Config{
		Cooldown:     3 * time.Second,
		AudioWindow:  2 * time.Second,
		HistorySize:  10,
		LoopInterval: 10 * time.Millisecond,
	}
}

// Subsystems reports which collaborators initialized. Any of them may be
// absent; the controller runs degraded with whatever is available.
type Subsystems struct {
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
	Storage    bool `json:"storage"`
	EventLog   bool `json:"event_log"`
	BLE        bool `json:"ble"`
}

// Status is the read-only snapshot served by the status endpoint.
type Status struct {
	State               State      `json:"state"`
	StateSinceMs        int64      `json:"state_since_ms"`
	EventCount          uint64     `json:"event_count"`
	SubscriberConnected bool       `json:"subscriber_connected"`
	UptimeMs            int64      `json:"uptime_ms"`
	CaptureFailures     uint64     `json:"capture_failures"`
	Subsystems          Subsystems `json:"subsystems"`
}

// Controller is the capture state machine. All transitions run on the single
// control loop goroutine; readers take snapshots under the lock.
type Controller struct {
	mu sync.RWMutex

	trig     Trigger
	capture  CaptureProvider
	store    ArtifactStore
	log      EventLog
	notifier notify.Notifier
	sinks    []Sink

	ring       *EventRing
	subsystems Subsystems
	logger     *slog.Logger

	state         State
	stateSince    time.Time
	cooldownStart time.Time
	startedAt     time.Time

	nextID          uint64
	pending         events.Event
	eventCount      uint64
	captureFailures uint64

	cooldown     time.Duration
	audioWindow  time.Duration
	loopInterval time.Duration

	nowFn func() time.Time
}

// New wires a controller to its collaborators. Any collaborator may be nil;
// the corresponding step is skipped and the gap surfaces in Status.
func New(cfg Config, trig Trigger, capture CaptureProvider, artifacts ArtifactStore, log EventLog, notifier notify.Notifier) *Controller {
	c := &Controller{
		trig:         trig,
		capture:      capture,
		store:        artifacts,
		log:          log,
		notifier:     notifier,
		ring:         NewEventRing(cfg.HistorySize),
		logger:       slog.Default().With("component", "controller"),
		state:        StateIdle,
		nextID:       1,
		cooldown:     cfg.Cooldown,
		audioWindow:  cfg.AudioWindow,
		loopInterval: cfg.LoopInterval,
		nowFn:        time.Now,
	}

	c.subsystems = Subsystems{
		Camera:     capture != nil && capture.HasCamera(),
		Microphone: capture != nil && capture.HasMicrophone(),
		Storage:    artifacts != nil,
		EventLog:   log != nil,
		BLE:        notifier != nil,
	}

	if artifacts != nil {
		c.nextID = artifacts.NextEventID()
	}

	now := c.nowFn()
	c.startedAt = now
	c.stateSince = now

	return c
}

// AddSink registers a completed-event sink. Call before Run.
func (c *Controller) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// SetCooldown updates the cooldown duration, applied from the next cycle.
// Used by config reload.
func (c *Controller) SetCooldown(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.cooldown = d
	}
}

// Run drives the control loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("Control loop started",
		"cooldown", c.cooldown,
		"audio_window", c.audioWindow,
		"history_size", c.ring.Capacity(),
		"next_event_id", c.nextID,
	)

	ticker := time.NewTicker(c.loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Control loop stopped")
			return
		case <-ticker.C:
			c.Tick(c.nowFn())
		}
	}
}

// Tick executes one control loop iteration. The trigger is polled only while
// idle, so presses during capture, notify, or cooldown are dropped, never
// queued.
func (c *Controller) Tick(now time.Time) {
	switch c.currentState() {
	case StateIdle:
		if c.trig != nil && c.trig.Poll(now) {
			c.logger.Info("Trigger accepted", "next_id", c.nextID)
			c.setState(StateCapturing, now)
		}

	case StateCapturing:
		// The capture sequence runs synchronously inside this state;
		// there is no cancel path once it begins.
		c.pending = c.runCaptureSequence(now)
		c.setState(StateNotifying, now)

	case StateNotifying:
		c.runNotifySequence(c.pending)
		c.mu.Lock()
		c.cooldownStart = now
		c.mu.Unlock()
		c.setState(StateCooldown, now)

	case StateCooldown:
		c.mu.RLock()
		elapsed := now.Sub(c.cooldownStart)
		cooldown := c.cooldown
		c.mu.RUnlock()
		if elapsed >= cooldown {
			c.setState(StateIdle, now)
		}
	}
}

// runCaptureSequence allocates the event id, acquires the still and the audio
// window, and appends the event to the history ring. Each acquisition failure
// is caught and degrades to an absent artifact reference; a ring without a
// photo is still logged.
func (c *Controller) runCaptureSequence(now time.Time) events.Event {
	ctx := context.Background()

	id := c.nextID
	c.nextID++

	ev := events.Event{
		ID:          id,
		TimestampMs: now.Sub(c.startedAt).Milliseconds(),
	}

	c.captureStill(ctx, &ev)
	c.captureAudio(ctx, &ev)

	c.ring.Append(ev)

	c.mu.Lock()
	c.eventCount++
	c.mu.Unlock()

	c.logger.Info("Capture sequence completed",
		"id", ev.ID,
		"has_image", ev.HasImage(),
		"has_audio", ev.HasAudio(),
	)
	return ev
}

func (c *Controller) captureStill(ctx context.Context, ev *events.Event) {
	if c.capture == nil || c.store == nil {
		return
	}

	data, err := c.capture.AcquireStill(ctx)
	if err != nil {
		c.logger.Warn("Still capture failed", "id", ev.ID, "error", err)
		c.bumpCaptureFailures()
		return
	}

	name := store.ImageName(ev.ID)
	if err := c.store.WriteArtifact(name, data); err != nil {
		c.logger.Warn("Still write failed", "id", ev.ID, "error", err)
		return
	}

	ev.ImagePath = name
	c.resetCaptureFailures()
}

func (c *Controller) captureAudio(ctx context.Context, ev *events.Event) {
	if c.capture == nil || c.store == nil {
		return
	}

	name := store.AudioName(ev.ID)
	w, err := c.store.Create(name)
	if err != nil {
		c.logger.Warn("Audio artifact create failed", "id", ev.ID, "error", err)
		return
	}

	captureErr := c.capture.AcquireAudioWindow(ctx, c.audioWindow, w)
	if closeErr := w.Close(); closeErr != nil {
		c.logger.Warn("Audio artifact close failed", "id", ev.ID, "error", closeErr)
	}

	if captureErr != nil {
		c.logger.Warn("Audio capture failed", "id", ev.ID, "error", captureErr)
		return
	}

	ev.AudioPath = name
}

// runNotifySequence appends the durable log row and, when a subscriber is
// connected, sends one fire-and-forget notification. Neither failure blocks
// state progression.
func (c *Controller) runNotifySequence(ev events.Event) {
	if c.log != nil {
		if err := c.log.Append(context.Background(), ev); err != nil {
			c.logger.Warn("Event log append failed", "id", ev.ID, "error", err)
		}
	}

	if c.notifier != nil && c.notifier.IsSubscriberConnected() {
		payload, _ := json.Marshal(map[string]any{
			"id":           ev.ID,
			"timestamp_ms": ev.TimestampMs,
		})
		if err := c.notifier.Notify(string(payload)); err != nil {
			c.logger.Warn("Notification failed", "id", ev.ID, "error", err)
		}
	}

	for _, s := range c.sinks {
		s.EventCompleted(ev)
	}
}

// OnSubscriberConnected implements notify.Observer.
func (c *Controller) OnSubscriberConnected() {
	c.logger.Info("Notification subscriber connected")
}

// OnSubscriberDisconnected implements notify.Observer.
func (c *Controller) OnSubscriberDisconnected() {
	c.logger.Info("Notification subscriber disconnected")
}

// Snapshot returns the current status for the remote interface.
func (c *Controller) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subscriberConnected := false
	if c.notifier != nil {
		subscriberConnected = c.notifier.IsSubscriberConnected()
	}

	return Status{
		State:               c.state,
		StateSinceMs:        c.stateSince.Sub(c.startedAt).Milliseconds(),
		EventCount:          c.eventCount,
		SubscriberConnected: subscriberConnected,
		UptimeMs:            c.nowFn().Sub(c.startedAt).Milliseconds(),
		CaptureFailures:     c.captureFailures,
		Subsystems:          c.subsystems,
	}
}

// History returns a copy of the event history ring, oldest first.
func (c *Controller) History() []events.Event {
	return c.ring.Snapshot()
}

// State returns the current controller state.
func (c *Controller) State() State {
	return c.currentState()
}

func (c *Controller) currentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State, now time.Time) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.stateSince = now
	c.mu.Unlock()

	c.logger.Debug("State transition", "from", prev, "to", s)
}

func (c *Controller) bumpCaptureFailures() {
	c.mu.Lock()
	c.captureFailures++
	c.mu.Unlock()
}

func (c *Controller) resetCaptureFailures() {
	c.mu.Lock()
	c.captureFailures = 0
	c.mu.Unlock()
}
