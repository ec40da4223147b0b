package capture

import (
	"sync"
	"time"
)

// Frame is one live-view image leased from the pool. Release must be called
// exactly once after the frame has been transmitted.
type Frame struct {
	data      []byte
	timestamp time.Time
	pool      *FramePool
	released  bool
}

// Data returns the frame bytes. Valid until Release.
func (f *Frame) Data() []byte { return f.data }

// Timestamp returns when the frame was grabbed.
func (f *Frame) Timestamp() time.Time { return f.timestamp }

// Release returns the frame buffer to the pool. Releasing twice is a no-op.
func (f *Frame) Release() {
	if f.released || f.pool == nil {
		return
	}
	f.released = true
	f.pool.Release(f)
}

// FramePool bounds the number of live frames in flight. Grab without a
// matching Release eventually exhausts the pool and subsequent grabs fail,
// mirroring the buffer discipline of the underlying camera driver.
type FramePool struct {
	mu     sync.Mutex
	free   []*Frame
	leased int
	size   int
}

// NewFramePool creates a pool with the given number of frame buffers.
func NewFramePool(size int) *FramePool {
	if size <= 0 {
		size = 2
	}
	p := &FramePool{size: size}
	for i := 0; i < size; i++ {
		p.free = append(p.free, &Frame{pool: p})
	}
	return p
}

// Grab leases a frame buffer, or returns ErrPoolExhausted.
func (p *FramePool) Grab() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}

	f := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.leased++
	f.released = false
	return f, nil
}

// Release returns a frame buffer to the pool.
func (p *FramePool) Release(f *Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, f)
	p.leased--
}

// Leased returns the number of frames currently grabbed.
func (p *FramePool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leased
}
