// Package main provides the doorbell capture device entry point
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chimecam/chimecam/internal/api"
	"github.com/chimecam/chimecam/internal/capture"
	"github.com/chimecam/chimecam/internal/config"
	"github.com/chimecam/chimecam/internal/controller"
	"github.com/chimecam/chimecam/internal/database"
	"github.com/chimecam/chimecam/internal/device"
	"github.com/chimecam/chimecam/internal/events"
	"github.com/chimecam/chimecam/internal/notify"
	"github.com/chimecam/chimecam/internal/store"
	"github.com/chimecam/chimecam/internal/trigger"
	"github.com/chimecam/chimecam/internal/uplink"
)

const version = "0.1.0"

func main() {
	// Local .env for development; ignored when absent
	_ = godotenv.Load()

	cfg := loadConfig()
	setupLogging(cfg)

	slog.Info("Starting capture device",
		"version", version,
		"name", cfg.System.Name,
		"data_dir", cfg.System.DataDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.System.DataDir, 0755); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Database and event log
	db, err := database.Open(database.DefaultConfig(cfg.System.DataDir))
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := database.NewMigrator(db)
	if err := migrator.Run(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	eventLog := events.NewLog(db)

	// Artifact store with optional off-board mirror
	artifacts, err := store.Open(cfg.System.DataDir)
	if err != nil {
		slog.Error("Failed to open artifact store", "error", err)
		os.Exit(1)
	}
	if cfg.Mirror.Enabled {
		mirror, err := store.NewMinioMirror(store.MinioConfig{
			Endpoint:  cfg.Mirror.Endpoint,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Bucket:    cfg.Mirror.Bucket,
			UseSSL:    cfg.Mirror.UseSSL,
		})
		if err != nil {
			slog.Warn("Artifact mirror unavailable", "error", err)
		} else {
			artifacts.SetMirror(mirror)
		}
	}

	// Capture hardware
	var sensor capture.Sensor
	if cfg.Devices.Camera.LiveURL != "" {
		sensor = device.NewHTTPCamera(cfg.Devices.Camera)
	} else {
		slog.Warn("No camera configured, stills and live view disabled")
	}

	var mic capture.Microphone
	if cfg.Devices.Microphone.Device != "" {
		pcm, err := device.OpenPCMMicrophone(cfg.Devices.Microphone)
		if err != nil {
			slog.Warn("Microphone unavailable", "error", err)
		} else {
			defer pcm.Close()
			mic = pcm
		}
	}
	provider := capture.NewProvider(sensor, mic, cfg.Capture.FramePoolSize)

	// Trigger input
	var trig controller.Trigger
	var detector *trigger.Detector
	if cfg.Devices.GPIOValuePath != "" {
		line := device.NewSysfsLine(cfg.Devices.GPIOValuePath)
		detector = trigger.NewDetector(line, time.Duration(cfg.Trigger.DebounceMs)*time.Millisecond)
		trig = detector
	} else {
		slog.Warn("No trigger line configured, running headless")
	}

	// BLE notification channel
	var notifier notify.Notifier
	var channel *notify.Channel
	if cfg.Notify.Enabled {
		channel = notify.NewChannel(cfg.Notify.Name)
		notifier = channel
	}

	// Controller wiring
	ctrl := controller.New(controller.Config{
		Cooldown:     time.Duration(cfg.Controller.CooldownMs) * time.Millisecond,
		AudioWindow:  time.Duration(cfg.Capture.AudioWindowMs) * time.Millisecond,
		HistorySize:  cfg.Controller.HistorySize,
		LoopInterval: time.Duration(cfg.Controller.LoopIntervalMs) * time.Millisecond,
	}, trig, provider, artifacts, eventLog, notifier)

	if channel != nil {
		channel.SetObserver(ctrl)
		if err := channel.Start(); err != nil {
			slog.Warn("BLE channel unavailable", "error", err)
		}
	}

	// Optional MQTT uplink
	if cfg.Uplink.Enabled {
		up, err := uplink.New(cfg.Uplink.MQTT)
		if err != nil {
			slog.Warn("MQTT uplink unavailable", "error", err)
		} else {
			defer up.Close()
			ctrl.AddSink(up)
		}
	}

	// WebSocket hub
	hub := api.NewHub()
	go hub.Run()
	ctrl.AddSink(hub)

	// Config reload applies timing changes without a restart
	cfg.OnChange(func(c *config.Config) {
		ctrl.SetCooldown(c.Cooldown())
		if detector != nil {
			detector.SetDebounce(time.Duration(c.Trigger.DebounceMs) * time.Millisecond)
		}
	})

	// HTTP interface
	server := api.NewServer(ctrl, eventLog, artifacts, provider, hub, db)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.API.Host, cfg.API.Port); err != nil {
			slog.Error("HTTP interface error", "error", err)
			cancel()
		}
	}()

	// Control loop
	go ctrl.Run(ctx)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	cancel()
	time.Sleep(100 * time.Millisecond)
	slog.Info("Stopped")
}

// loadConfig finds and loads the configuration, falling back to defaults
// when no file exists.
func loadConfig() *config.Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "/data"
		}
		path = filepath.Join(dataDir, "config.yaml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("Using default configuration", "path", path, "error", err)
		return config.Default()
	}

	if err := cfg.Watch(); err != nil {
		slog.Warn("Config watch unavailable", "error", err)
	}
	return cfg
}

// setupLogging configures the process-wide structured logger.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.System.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.System.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
