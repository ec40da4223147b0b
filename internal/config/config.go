// Package config provides configuration management for the capture device
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/chimecam/chimecam/internal/device"
	"github.com/chimecam/chimecam/internal/uplink"
)

// Config represents the device configuration
type Config struct {
	Version    string           `yaml:"version"`
	System     SystemConfig     `yaml:"system"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Controller ControllerConfig `yaml:"controller"`
	Capture    CaptureConfig    `yaml:"capture"`
	Devices    DevicesConfig    `yaml:"devices"`
	Notify     NotifyConfig     `yaml:"notify"`
	Uplink     UplinkConfig     `yaml:"uplink"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	API        APIConfig        `yaml:"api"`

	// Internal fields
	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// SystemConfig holds system-wide settings
type SystemConfig struct {
	Name    string        `yaml:"name"`
	DataDir string        `yaml:"data_dir"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TriggerConfig holds trigger input settings
type TriggerConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// ControllerConfig holds control loop timing settings
type ControllerConfig struct {
	CooldownMs     int `yaml:"cooldown_ms"`
	HistorySize    int `yaml:"history_size"`
	LoopIntervalMs int `yaml:"loop_interval_ms"`
}

// CaptureConfig holds capture settings
type CaptureConfig struct {
	AudioWindowMs int `yaml:"audio_window_ms"`
	FramePoolSize int `yaml:"frame_pool_size"`
}

// DevicesConfig holds the hardware device paths and endpoints
type DevicesConfig struct {
	GPIOValuePath string                  `yaml:"gpio_value_path"`
	Camera        device.CameraConfig     `yaml:"camera"`
	Microphone    device.MicrophoneConfig `yaml:"microphone"`
}

// NotifyConfig holds BLE notification channel settings
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// UplinkConfig holds MQTT uplink settings
type UplinkConfig struct {
	Enabled bool          `yaml:"enabled"`
	MQTT    uplink.Config `yaml:"mqtt"`
}

// MirrorConfig holds the optional object storage mirror settings
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// APIConfig holds the HTTP interface settings
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.setDefaults()
	cfg.applyEnvOverrides()

	return &cfg, nil
}

// Default returns a configuration with stock values, used when no config
// file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Notify.Enabled = true
	cfg.setDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

// Watch starts watching for configuration file changes
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex
	c.Version = newCfg.Version
	c.System = newCfg.System
	c.Trigger = newCfg.Trigger
	c.Controller = newCfg.Controller
	c.Capture = newCfg.Capture
	c.Devices = newCfg.Devices
	c.Notify = newCfg.Notify
	c.Uplink = newCfg.Uplink
	c.Mirror = newCfg.Mirror
	c.API = newCfg.API
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// Cooldown returns the configured cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Controller.CooldownMs) * time.Millisecond
}

// setDefaults sets default values for unset fields
func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.System.Name == "" {
		c.System.Name = "ChimeCam"
	}
	if c.System.DataDir == "" {
		c.System.DataDir = "/data"
	}
	if c.System.Logging.Level == "" {
		c.System.Logging.Level = "info"
	}
	if c.System.Logging.Format == "" {
		c.System.Logging.Format = "json"
	}
	if c.Trigger.DebounceMs <= 0 {
		c.Trigger.DebounceMs = 50
	}
	if c.Controller.CooldownMs <= 0 {
		c.Controller.CooldownMs = 3000
	}
	if c.Controller.HistorySize <= 0 {
		c.Controller.HistorySize = 10
	}
	if c.Controller.LoopIntervalMs <= 0 {
		c.Controller.LoopIntervalMs = 10
	}
	if c.Capture.AudioWindowMs <= 0 {
		c.Capture.AudioWindowMs = 2000
	}
	if c.Capture.FramePoolSize <= 0 {
		c.Capture.FramePoolSize = 4
	}
	if c.Notify.Name == "" {
		c.Notify.Name = c.System.Name
	}
	if c.Uplink.MQTT.Host == "" {
		c.Uplink.MQTT.Host = "localhost"
	}
	if c.Uplink.MQTT.Port <= 0 {
		c.Uplink.MQTT.Port = 1883
	}
	if c.Uplink.MQTT.DeviceName == "" {
		c.Uplink.MQTT.DeviceName = "chimecam"
	}
	if c.Mirror.Bucket == "" {
		c.Mirror.Bucket = "chimecam-artifacts"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
}

// applyEnvOverrides lets credentials come from the environment (or a local
// .env) instead of sitting in the config file on the SD card.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHIMECAM_MQTT_USERNAME"); v != "" {
		c.Uplink.MQTT.Username = v
	}
	if v := os.Getenv("CHIMECAM_MQTT_PASSWORD"); v != "" {
		c.Uplink.MQTT.Password = v
	}
	if v := os.Getenv("CHIMECAM_MINIO_ACCESS_KEY"); v != "" {
		c.Mirror.AccessKey = v
	}
	if v := os.Getenv("CHIMECAM_MINIO_SECRET_KEY"); v != "" {
		c.Mirror.SecretKey = v
	}
	if v := os.Getenv("CHIMECAM_CAMERA_PASSWORD"); v != "" {
		c.Devices.Camera.Password = v
	}
}
