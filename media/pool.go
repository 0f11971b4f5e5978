package media

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultPoolSize mirrors the output picture pool of a typical hardware
// decoder: small enough that leaked frames surface quickly as a stall.
const DefaultPoolSize = 8

// FramePool hands out a bounded number of decoded-frame handles. Acquire
// blocks while every slot is held by an unreleased Frame, which is the
// decoder-stall behavior callers must design around: release promptly.
type FramePool struct {
	log   *slog.Logger
	slots chan *Frame

	mu          sync.Mutex
	outstanding int
}

// NewFramePool creates a pool with the given number of slots. If size is
// zero or negative, DefaultPoolSize is used. If log is nil, slog.Default()
// is used.
func NewFramePool(size int, log *slog.Logger) *FramePool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if log == nil {
		log = slog.Default()
	}
	p := &FramePool{
		log:   log.With("component", "frame-pool"),
		slots: make(chan *Frame, size),
	}
	for i := 0; i < size; i++ {
		p.slots <- &Frame{pool: p}
	}
	return p
}

// Acquire takes a slot from the pool and sizes its pixel buffer for a
// width×height RGBA picture, blocking until a slot is released or the
// context is cancelled.
func (p *FramePool) Acquire(ctx context.Context, width, height int) (*Frame, error) {
	select {
	case f := <-p.slots:
		f.Width = width
		f.Height = height
		f.Stride = width * 4
		need := f.Stride * height
		if cap(f.Pix) < need {
			f.Pix = make([]byte, need)
		}
		f.Pix = f.Pix[:need]
		f.Timestamp = 0
		f.released = false

		p.mu.Lock()
		p.outstanding++
		p.mu.Unlock()
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Outstanding reports how many frames are currently held by callers.
func (p *FramePool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *FramePool) release(f *Frame) {
	p.mu.Lock()
	if f.released {
		p.mu.Unlock()
		p.log.Warn("frame released twice, ignoring")
		return
	}
	f.released = true
	p.outstanding--
	p.mu.Unlock()

	p.slots <- f
}
