// Package trigger provides the debounced edge detector for the physical
// doorbell button.
package trigger

import (
	"sync/atomic"
	"time"
)

// Line reads the raw input level. True means electrically high; the button is
// wired active-low, so an accepted press is a high-to-low transition.
type Line interface {
	Read() bool
}

// LineFunc adapts a function to the Line interface.
type LineFunc func() bool

func (f LineFunc) Read() bool { return f() }

// Detector collapses contact bounce into at most one accepted press per
// physical actuation. It is purely computational: no blocking, no allocation.
type Detector struct {
	line         Line
	debounce     atomic.Int64 // nanoseconds; config reload writes concurrently with Poll
	lastLevel    bool
	lastAccepted time.Time
}

// NewDetector creates a detector over a raw input line.
func NewDetector(line Line, debounce time.Duration) *Detector {
	d := &Detector{
		line:      line,
		lastLevel: true, // idle level for an active-low button
	}
	d.debounce.Store(int64(debounce))
	return d
}

// SetDebounce updates the accept window, applied from the next poll. Safe to
// call from the config reload goroutine while the control loop polls.
func (d *Detector) SetDebounce(debounce time.Duration) {
	if debounce > 0 {
		d.debounce.Store(int64(debounce))
	}
}

// Poll samples the line once and reports whether a debounced press was
// accepted at the given instant. The raw level memory updates on every call
// regardless of the debounce outcome, so a burst of bounces collapses into a
// single accepted edge.
func (d *Detector) Poll(now time.Time) bool {
	level := d.line.Read()
	falling := d.lastLevel && !level
	d.lastLevel = level

	if !falling {
		return false
	}

	if !d.lastAccepted.IsZero() && now.Sub(d.lastAccepted) < time.Duration(d.debounce.Load()) {
		return false
	}

	d.lastAccepted = now
	return true
}
