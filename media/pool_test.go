package media

import (
	"context"
	"testing"
	"time"
)

func TestPoolAcquireRelease(t *testing.T) {
	t.Parallel()
	p := NewFramePool(2, nil)

	f, err := p.Acquire(context.Background(), 320, 240)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if f.Width != 320 || f.Height != 240 {
		t.Errorf("dims: got %dx%d, want 320x240", f.Width, f.Height)
	}
	if len(f.Pix) != 320*4*240 {
		t.Errorf("pix len: got %d, want %d", len(f.Pix), 320*4*240)
	}
	if p.Outstanding() != 1 {
		t.Errorf("outstanding: got %d, want 1", p.Outstanding())
	}

	f.Release()
	if p.Outstanding() != 0 {
		t.Errorf("outstanding after release: got %d, want 0", p.Outstanding())
	}
}

func TestPoolDoubleReleaseIgnored(t *testing.T) {
	t.Parallel()
	p := NewFramePool(1, nil)

	f, err := p.Acquire(context.Background(), 8, 8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	f.Release()
	f.Release() // must not corrupt the pool

	if p.Outstanding() != 0 {
		t.Errorf("outstanding: got %d, want 0", p.Outstanding())
	}

	// The pool must still hand out exactly one slot.
	if _, err := p.Acquire(context.Background(), 8, 8); err != nil {
		t.Fatalf("Acquire after double release: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, 8, 8); err == nil {
		t.Error("second Acquire should block, pool gained a phantom slot")
	}
}

func TestPoolExhaustionBlocksUntilRelease(t *testing.T) {
	t.Parallel()
	p := NewFramePool(1, nil)

	held, err := p.Acquire(context.Background(), 16, 16)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	got := make(chan *Frame, 1)
	go func() {
		f, err := p.Acquire(context.Background(), 16, 16)
		if err != nil {
			return
		}
		got <- f
	}()

	select {
	case <-got:
		t.Fatal("Acquire returned while all slots were held")
	case <-time.After(30 * time.Millisecond):
	}

	held.Release()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after release")
	}
}

func TestPoolAcquireCancellation(t *testing.T) {
	t.Parallel()
	p := NewFramePool(1, nil)

	if _, err := p.Acquire(context.Background(), 4, 4); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx, 4, 4); err == nil {
		t.Error("expected error from cancelled Acquire")
	}
}

func TestFrameImage(t *testing.T) {
	t.Parallel()
	p := NewFramePool(1, nil)

	f, err := p.Acquire(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	img := f.Image()
	if img.Rect.Dx() != 10 || img.Rect.Dy() != 5 {
		t.Errorf("image bounds: got %v, want 10x5", img.Rect)
	}
	if img.Stride != f.Stride {
		t.Errorf("stride: got %d, want %d", img.Stride, f.Stride)
	}
}

func TestFrameKindString(t *testing.T) {
	t.Parallel()
	if got := KeyFrame.String(); got != "key" {
		t.Errorf("KeyFrame: got %q, want %q", got, "key")
	}
	if got := DeltaFrame.String(); got != "delta" {
		t.Errorf("DeltaFrame: got %q, want %q", got, "delta")
	}
}
