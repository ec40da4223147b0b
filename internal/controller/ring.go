package controller

import (
	"sync"

	"github.com/chimecam/chimecam/internal/events"
)

// EventRing is the fixed-capacity in-memory history of recent events.
// Insertion order, oldest evicted first once full. Owned by the controller;
// readers get a snapshot copy.
type EventRing struct {
	mu       sync.RWMutex
	events   []events.Event
	head     int
	count    int
	capacity int
}

// NewEventRing creates a ring holding at most capacity events.
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventRing{
		events:   make([]events.Event, capacity),
		capacity: capacity,
	}
}

// Append adds an event, evicting the oldest entry when the ring is full.
func (r *EventRing) Append(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.head] = ev
	r.head = (r.head + 1) % r.capacity

	if r.count < r.capacity {
		r.count++
	}
}

// Snapshot returns the buffered events in insertion order, oldest first.
func (r *EventRing) Snapshot() []events.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	out := make([]events.Event, r.count)
	idx := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.events[idx]
		idx = (idx + 1) % r.capacity
	}
	return out
}

// Len returns the number of buffered events.
func (r *EventRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Capacity returns the ring capacity.
func (r *EventRing) Capacity() int {
	return r.capacity
}
