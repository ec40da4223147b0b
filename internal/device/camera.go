package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chimecam/chimecam/internal/capture"
)

// CameraConfig holds the HTTP camera module endpoints. The module exposes one
// snapshot URL per resolution profile; switching modes is just switching
// which URL the next read hits.
type CameraConfig struct {
	LiveURL  string `yaml:"live_url"`
	StillURL string `yaml:"still_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TimeoutS int    `yaml:"timeout_s"`
}

// HTTPCamera is a capture.Sensor backed by an HTTP camera module.
type HTTPCamera struct {
	mu     sync.Mutex
	cfg    CameraConfig
	mode   capture.Mode
	client *http.Client
}

// NewHTTPCamera creates a sensor over the camera module endpoints.
func NewHTTPCamera(cfg CameraConfig) *HTTPCamera {
	timeout := time.Duration(cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPCamera{
		cfg:    cfg,
		mode:   capture.ModeLive,
		client: &http.Client{Timeout: timeout},
	}
}

// Configure selects the resolution profile for subsequent reads.
func (c *HTTPCamera) Configure(mode capture.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == capture.ModeStill && c.cfg.StillURL == "" {
		return capture.ErrDeviceNotReady
	}
	c.mode = mode
	return nil
}

// ReadFrame fetches one JPEG frame at the current profile.
func (c *HTTPCamera) ReadFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	url := c.cfg.LiveURL
	if c.mode == capture.ModeStill {
		url = c.cfg.StillURL
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
