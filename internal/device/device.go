// Package device holds the hardware-facing drivers: the GPIO trigger line,
// the HTTP camera module, and the PCM microphone device. Each satisfies the
// narrow interface its consumer defines, so the rest of the system never
// touches hardware paths directly.
package device

import (
	"bytes"
	"log/slog"
	"os"
)

// SysfsLine reads a GPIO level through the sysfs value file. The doorbell
// button pulls the line low when pressed.
type SysfsLine struct {
	path   string
	logger *slog.Logger
}

// NewSysfsLine creates a line reader over the given sysfs value path, for
// example /sys/class/gpio/gpio17/value.
func NewSysfsLine(path string) *SysfsLine {
	return &SysfsLine{
		path:   path,
		logger: slog.Default().With("component", "gpio"),
	}
}

// Read returns the raw line level. A read failure reports high, the idle
// level, so a flaky sysfs node never fabricates presses.
func (l *SysfsLine) Read() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Warn("Failed to read GPIO line", "path", l.path, "error", err)
		return true
	}
	return len(bytes.TrimSpace(data)) > 0 && bytes.TrimSpace(data)[0] != '0'
}
