// Package capture coordinates the camera sensor and microphone for one-shot
// stills, bounded audio windows, and the continuous low-resolution live feed.
package capture

import "context"

// CaptureError represents a capture failure.
type CaptureError string

func (e CaptureError) Error() string { return string(e) }

const (
	// ErrNoFrame is returned when the sensor produced no usable frame.
	ErrNoFrame = CaptureError("no frame available")
	// ErrDeviceNotReady is returned when the sensor cannot enter the
	// requested mode.
	ErrDeviceNotReady = CaptureError("capture device not ready")
	// ErrTimeout is returned when an audio chunk did not arrive in time.
	ErrTimeout = CaptureError("audio chunk timeout")
	// ErrPoolExhausted is returned when every live frame buffer is grabbed
	// and none has been released.
	ErrPoolExhausted = CaptureError("frame pool exhausted")
)

// Mode is the sensor's active configuration. Live view runs a continuous
// low-resolution stream; stills require a one-shot high-resolution
// reconfiguration.
type Mode string

const (
	ModeLive  Mode = "live"
	ModeStill Mode = "still"
)

// Sensor is the underlying camera. Exclusively owned by whichever logical
// mode is active; the provider serializes access.
type Sensor interface {
	Configure(mode Mode) error
	ReadFrame(ctx context.Context) ([]byte, error)
}

// Microphone produces raw audio sample chunks.
type Microphone interface {
	ReadChunk(ctx context.Context) ([]byte, error)
}
