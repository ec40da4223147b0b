package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/chimecam/chimecam/internal/events"
)

type fakeTrigger struct {
	pressed bool
	polls   int
}

func (f *fakeTrigger) Poll(now time.Time) bool {
	f.polls++
	if f.pressed {
		f.pressed = false
		return true
	}
	return false
}

type fakeCapture struct {
	stillData []byte
	stillErr  error
	audioData []byte
	audioErr  error
	hasCam    bool
	hasMic    bool
}

func (f *fakeCapture) AcquireStill(ctx context.Context) ([]byte, error) {
	if f.stillErr != nil {
		return nil, f.stillErr
	}
	return f.stillData, nil
}

func (f *fakeCapture) AcquireAudioWindow(ctx context.Context, d time.Duration, w io.Writer) error {
	if f.audioErr != nil {
		return f.audioErr
	}
	_, err := w.Write(f.audioData)
	return err
}

func (f *fakeCapture) HasCamera() bool     { return f.hasCam }
func (f *fakeCapture) HasMicrophone() bool { return f.hasMic }

type memStore struct {
	artifacts map[string][]byte
	nextID    uint64
	writeErr  error
}

func newMemStore(nextID uint64) *memStore {
	return &memStore{artifacts: make(map[string][]byte), nextID: nextID}
}

func (s *memStore) WriteArtifact(name string, data []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.artifacts[name] = data
	return nil
}

type memWriter struct {
	store *memStore
	name  string
	buf   bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.store.artifacts[w.name] = w.buf.Bytes()
	return nil
}

func (s *memStore) Create(name string) (io.WriteCloser, error) {
	return &memWriter{store: s, name: name}, nil
}

func (s *memStore) NextEventID() uint64 { return s.nextID }

type memLog struct {
	appended []events.Event
	err      error
}

func (l *memLog) Append(ctx context.Context, ev events.Event) error {
	if l.err != nil {
		return l.err
	}
	l.appended = append(l.appended, ev)
	return nil
}

type fakeNotifier struct {
	connected bool
	payloads  []string
	err       error
}

func (n *fakeNotifier) IsSubscriberConnected() bool { return n.connected }

func (n *fakeNotifier) Notify(payload string) error {
	if n.err != nil {
		return n.err
	}
	n.payloads = append(n.payloads, payload)
	return nil
}

type recordingSink struct {
	received []events.Event
}

func (s *recordingSink) EventCompleted(ev events.Event) {
	s.received = append(s.received, ev)
}

type fixture struct {
	ctrl     *Controller
	trig     *fakeTrigger
	capture  *fakeCapture
	store    *memStore
	log      *memLog
	notifier *fakeNotifier
	base     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		trig:     &fakeTrigger{},
		capture:  &fakeCapture{stillData: []byte("jpeg"), audioData: []byte("pcm"), hasCam: true, hasMic: true},
		store:    newMemStore(1),
		log:      &memLog{},
		notifier: &fakeNotifier{},
		base:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ctrl = New(cfg, f.trig, f.capture, f.store, f.log, f.notifier)
	f.ctrl.startedAt = f.base
	f.ctrl.stateSince = f.base
	return f
}

// runCycle presses the trigger and ticks through capture and notify, leaving
// the controller in cooldown at base+offset.
func (f *fixture) runCycle(offset time.Duration) {
	now := f.base.Add(offset)
	f.trig.pressed = true
	f.ctrl.Tick(now) // idle -> capturing
	f.ctrl.Tick(now) // capture, -> notifying
	f.ctrl.Tick(now) // notify, -> cooldown
}

func TestController_FullCycleFreshBoot(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if f.ctrl.State() != StateIdle {
		t.Fatalf("Expected idle at boot, got %s", f.ctrl.State())
	}

	f.runCycle(0)

	if f.ctrl.State() != StateCooldown {
		t.Fatalf("Expected cooldown after cycle, got %s", f.ctrl.State())
	}

	hist := f.ctrl.History()
	if len(hist) != 1 {
		t.Fatalf("Expected 1 history event, got %d", len(hist))
	}
	ev := hist[0]
	if ev.ID != 1 {
		t.Errorf("Expected first event id 1, got %d", ev.ID)
	}
	if ev.ImagePath != "event_000001.jpg" {
		t.Errorf("Expected image path event_000001.jpg, got %q", ev.ImagePath)
	}
	if ev.AudioPath != "event_000001.pcm" {
		t.Errorf("Expected audio path event_000001.pcm, got %q", ev.AudioPath)
	}

	if got := f.store.artifacts["event_000001.jpg"]; string(got) != "jpeg" {
		t.Errorf("Expected still artifact written, got %q", got)
	}
	if got := f.store.artifacts["event_000001.pcm"]; string(got) != "pcm" {
		t.Errorf("Expected audio artifact written, got %q", got)
	}

	if len(f.log.appended) != 1 || f.log.appended[0].ID != 1 {
		t.Errorf("Expected event 1 appended to log, got %v", f.log.appended)
	}

	// No subscriber: notification skipped silently
	if len(f.notifier.payloads) != 0 {
		t.Errorf("Expected no notification without subscriber, got %v", f.notifier.payloads)
	}

	// Cooldown holds until the full dwell elapses
	f.ctrl.Tick(f.base.Add(2999 * time.Millisecond))
	if f.ctrl.State() != StateCooldown {
		t.Error("Expected still in cooldown before dwell elapses")
	}
	f.ctrl.Tick(f.base.Add(3000 * time.Millisecond))
	if f.ctrl.State() != StateIdle {
		t.Errorf("Expected idle after cooldown, got %s", f.ctrl.State())
	}
}

func TestController_NotifyWithSubscriber(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.notifier.connected = true

	f.runCycle(500 * time.Millisecond)

	if len(f.notifier.payloads) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(f.notifier.payloads))
	}

	var msg struct {
		ID          uint64 `json:"id"`
		TimestampMs int64  `json:"timestamp_ms"`
	}
	if err := json.Unmarshal([]byte(f.notifier.payloads[0]), &msg); err != nil {
		t.Fatalf("Notification payload not valid JSON: %v", err)
	}
	if msg.ID != 1 {
		t.Errorf("Expected notification for event 1, got %d", msg.ID)
	}
	if msg.TimestampMs != 500 {
		t.Errorf("Expected timestamp 500ms, got %d", msg.TimestampMs)
	}
}

func TestController_StillFailsAudioSucceeds(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.capture.stillErr = io.ErrUnexpectedEOF

	f.runCycle(0)

	if f.ctrl.State() != StateCooldown {
		t.Fatalf("Expected cooldown despite still failure, got %s", f.ctrl.State())
	}

	hist := f.ctrl.History()
	if len(hist) != 1 {
		t.Fatalf("Expected degraded event recorded, got %d events", len(hist))
	}
	if hist[0].HasImage() {
		t.Error("Expected no image reference after still failure")
	}
	if !hist[0].HasAudio() {
		t.Error("Expected audio reference to survive still failure")
	}

	if len(f.log.appended) != 1 {
		t.Errorf("Expected degraded event logged, got %d", len(f.log.appended))
	}

	if got := f.ctrl.Snapshot().CaptureFailures; got != 1 {
		t.Errorf("Expected 1 capture failure, got %d", got)
	}
}

func TestController_CaptureFailuresResetOnSuccess(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.capture.stillErr = io.ErrUnexpectedEOF
	f.runCycle(0)
	f.runCycle(4 * time.Second)
	f.ctrl.Tick(f.base.Add(8 * time.Second)) // leave cooldown

	if got := f.ctrl.Snapshot().CaptureFailures; got != 2 {
		t.Fatalf("Expected 2 consecutive failures, got %d", got)
	}

	f.capture.stillErr = nil
	f.runCycle(12 * time.Second)

	if got := f.ctrl.Snapshot().CaptureFailures; got != 0 {
		t.Errorf("Expected failures reset after success, got %d", got)
	}
}

func TestController_PressDuringCooldownIgnored(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.runCycle(0)

	// Press while cooling down: the trigger must not even be polled
	pollsBefore := f.trig.polls
	f.trig.pressed = true
	f.ctrl.Tick(f.base.Add(1 * time.Second))
	f.ctrl.Tick(f.base.Add(2 * time.Second))

	if f.trig.polls != pollsBefore {
		t.Errorf("Expected trigger not polled during cooldown, got %d extra polls", f.trig.polls-pollsBefore)
	}
	if got := f.ctrl.Snapshot().EventCount; got != 1 {
		t.Errorf("Expected 1 event, got %d", got)
	}

	// After cooldown the held press is picked up on the next idle poll
	f.ctrl.Tick(f.base.Add(3 * time.Second))
	if f.ctrl.State() != StateIdle {
		t.Fatalf("Expected idle after cooldown, got %s", f.ctrl.State())
	}
	f.ctrl.Tick(f.base.Add(3100 * time.Millisecond))
	if f.ctrl.State() != StateCapturing {
		t.Errorf("Expected pending press accepted after cooldown, got %s", f.ctrl.State())
	}
}

func TestController_HistoryEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	f := newFixture(t, cfg)

	for i := 0; i < 5; i++ {
		f.runCycle(time.Duration(i) * 4 * time.Second)
		f.ctrl.Tick(f.base.Add(time.Duration(i)*4*time.Second + 3500*time.Millisecond))
	}

	hist := f.ctrl.History()
	if len(hist) != 3 {
		t.Fatalf("Expected history capped at 3, got %d", len(hist))
	}
	want := []uint64{3, 4, 5}
	for i, w := range want {
		if hist[i].ID != w {
			t.Errorf("Expected event %d at index %d, got %d", w, i, hist[i].ID)
		}
	}

	// Durable log keeps everything the ring evicted
	if len(f.log.appended) != 5 {
		t.Errorf("Expected all 5 events in durable log, got %d", len(f.log.appended))
	}
	if got := f.ctrl.Snapshot().EventCount; got != 5 {
		t.Errorf("Expected event count 5, got %d", got)
	}
}

func TestController_IDRecoveryFromStore(t *testing.T) {
	cfg := DefaultConfig()
	f := &fixture{
		trig:     &fakeTrigger{},
		capture:  &fakeCapture{stillData: []byte("jpeg"), audioData: []byte("pcm"), hasCam: true, hasMic: true},
		store:    newMemStore(6),
		log:      &memLog{},
		notifier: &fakeNotifier{},
		base:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ctrl = New(cfg, f.trig, f.capture, f.store, f.log, f.notifier)
	f.ctrl.startedAt = f.base

	f.runCycle(0)

	hist := f.ctrl.History()
	if len(hist) != 1 || hist[0].ID != 6 {
		t.Errorf("Expected recovered id 6, got %v", hist)
	}
	if _, ok := f.store.artifacts["event_000006.jpg"]; !ok {
		t.Error("Expected artifact named for recovered id")
	}
}

func TestController_SinkFanout(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}
	f.ctrl.AddSink(sink1)
	f.ctrl.AddSink(sink2)

	f.runCycle(0)

	if len(sink1.received) != 1 || len(sink2.received) != 1 {
		t.Fatalf("Expected both sinks to receive the event, got %d and %d", len(sink1.received), len(sink2.received))
	}
	if sink1.received[0].ID != 1 {
		t.Errorf("Expected event 1 fanned out, got %d", sink1.received[0].ID)
	}
}

func TestController_LogFailureNonFatal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.log.err = io.ErrClosedPipe

	f.runCycle(0)

	if f.ctrl.State() != StateCooldown {
		t.Errorf("Expected cooldown despite log failure, got %s", f.ctrl.State())
	}
	if len(f.ctrl.History()) != 1 {
		t.Error("Expected event retained in ring despite log failure")
	}
}

func TestController_NilCollaborators(t *testing.T) {
	ctrl := New(DefaultConfig(), nil, nil, nil, nil, nil)

	// Must not panic ticking through a press-less loop
	now := time.Now()
	for i := 0; i < 10; i++ {
		ctrl.Tick(now.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	status := ctrl.Snapshot()
	if status.Subsystems.Camera || status.Subsystems.Storage || status.Subsystems.BLE {
		t.Errorf("Expected all subsystems absent, got %+v", status.Subsystems)
	}
	if status.State != StateIdle {
		t.Errorf("Expected idle, got %s", status.State)
	}
}

func TestController_SetCooldown(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.ctrl.SetCooldown(500 * time.Millisecond)

	f.runCycle(0)

	f.ctrl.Tick(f.base.Add(499 * time.Millisecond))
	if f.ctrl.State() != StateCooldown {
		t.Error("Expected still in cooldown before shortened dwell")
	}
	f.ctrl.Tick(f.base.Add(500 * time.Millisecond))
	if f.ctrl.State() != StateIdle {
		t.Errorf("Expected idle after shortened cooldown, got %s", f.ctrl.State())
	}
}

func TestController_TimestampsMonotonic(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	f.runCycle(1 * time.Second)
	f.ctrl.Tick(f.base.Add(4500 * time.Millisecond))
	f.runCycle(5 * time.Second)

	hist := f.ctrl.History()
	if len(hist) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(hist))
	}
	if hist[0].TimestampMs != 1000 {
		t.Errorf("Expected first timestamp 1000ms, got %d", hist[0].TimestampMs)
	}
	if hist[1].TimestampMs != 5000 {
		t.Errorf("Expected second timestamp 5000ms, got %d", hist[1].TimestampMs)
	}
	if hist[1].TimestampMs <= hist[0].TimestampMs {
		t.Error("Expected strictly increasing timestamps")
	}
	if hist[1].ID != hist[0].ID+1 {
		t.Error("Expected consecutive event ids")
	}
}

func TestController_NotifyFailureNonFatal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.notifier.connected = true
	f.notifier.err = io.ErrShortWrite

	f.runCycle(0)

	if f.ctrl.State() != StateCooldown {
		t.Errorf("Expected cooldown despite notify failure, got %s", f.ctrl.State())
	}
}

func TestController_StatusSnapshot(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.ctrl.nowFn = func() time.Time { return f.base.Add(7 * time.Second) }

	status := f.ctrl.Snapshot()
	if status.UptimeMs != 7000 {
		t.Errorf("Expected uptime 7000ms, got %d", status.UptimeMs)
	}
	if !status.Subsystems.Camera || !status.Subsystems.Microphone {
		t.Errorf("Expected camera and microphone present, got %+v", status.Subsystems)
	}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("Failed to marshal status: %v", err)
	}
	for _, key := range []string{"state", "state_since_ms", "event_count", "subscriber_connected", "uptime_ms", "capture_failures", "subsystems"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("Expected status JSON to contain %q", key)
		}
	}
}

func TestController_StateSinceTracksTransitions(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if got := f.ctrl.Snapshot().StateSinceMs; got != 0 {
		t.Errorf("Expected state since 0 at boot, got %d", got)
	}

	f.runCycle(2 * time.Second)

	// Cooldown was entered on the notify tick at base+2s
	if got := f.ctrl.Snapshot().StateSinceMs; got != 2000 {
		t.Errorf("Expected state since 2000ms after entering cooldown, got %d", got)
	}

	f.ctrl.Tick(f.base.Add(5 * time.Second))
	snap := f.ctrl.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("Expected idle after cooldown, got %s", snap.State)
	}
	if snap.StateSinceMs != 5000 {
		t.Errorf("Expected state since 5000ms after returning to idle, got %d", snap.StateSinceMs)
	}
}
