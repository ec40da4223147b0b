package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Provider owns the sensor and microphone and serializes mode switches. A
// failed still must never leave the sensor stuck outside live mode, or the
// remote live view dies with it.
type Provider struct {
	mu     sync.Mutex
	sensor Sensor
	mic    Microphone
	mode   Mode
	pool   *FramePool
	logger *slog.Logger

	nowFn func() time.Time
}

// NewProvider creates a capture provider. The sensor is assumed to start in
// live mode; poolSize bounds the number of live frames grabbed concurrently.
func NewProvider(sensor Sensor, mic Microphone, poolSize int) *Provider {
	return &Provider{
		sensor: sensor,
		mic:    mic,
		mode:   ModeLive,
		pool:   NewFramePool(poolSize),
		logger: slog.Default().With("component", "capture"),
		nowFn:  time.Now,
	}
}

// HasCamera reports whether a camera sensor is wired.
func (p *Provider) HasCamera() bool { return p.sensor != nil }

// HasMicrophone reports whether a microphone is wired.
func (p *Provider) HasMicrophone() bool { return p.mic != nil }

// AcquireStill switches the sensor to still mode, reads one high-resolution
// frame, and restores live mode. On a failed reconfiguration the prior mode
// is restored so the live view keeps working.
func (p *Provider) AcquireStill(ctx context.Context) ([]byte, error) {
	if p.sensor == nil {
		return nil, ErrDeviceNotReady
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prior := p.mode
	if err := p.sensor.Configure(ModeStill); err != nil {
		if restoreErr := p.sensor.Configure(prior); restoreErr != nil {
			p.logger.Error("Failed to restore sensor mode", "mode", prior, "error", restoreErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}
	p.mode = ModeStill

	frame, readErr := p.sensor.ReadFrame(ctx)

	// Restore live mode before reporting the read result; live view outlives
	// any single still.
	if err := p.sensor.Configure(ModeLive); err != nil {
		p.logger.Error("Failed to restore live mode after still", "error", err)
	} else {
		p.mode = ModeLive
	}

	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, readErr)
	}
	if len(frame) == 0 {
		return nil, ErrNoFrame
	}
	return frame, nil
}

// AcquireAudioWindow reads microphone chunks for the given duration, writing
// each to w as it arrives. The window is finite and not restartable: a chunk
// failure ends it with ErrTimeout, leaving whatever was already written.
func (p *Provider) AcquireAudioWindow(ctx context.Context, d time.Duration, w io.Writer) error {
	if p.mic == nil {
		return ErrDeviceNotReady
	}

	deadline := p.nowFn().Add(d)
	for p.nowFn().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := p.mic.ReadChunk(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write audio chunk: %w", err)
		}
	}

	return nil
}

// GrabLiveFrame reads one low-resolution frame for the live feed. The caller
// must Release the frame after transmission or the pool runs dry.
func (p *Provider) GrabLiveFrame(ctx context.Context) (*Frame, error) {
	if p.sensor == nil {
		return nil, ErrDeviceNotReady
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != ModeLive {
		return nil, ErrDeviceNotReady
	}

	buf, err := p.pool.Grab()
	if err != nil {
		return nil, err
	}

	data, err := p.sensor.ReadFrame(ctx)
	if err != nil {
		p.pool.Release(buf)
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	buf.data = append(buf.data[:0], data...)
	buf.timestamp = p.nowFn()
	return buf, nil
}
