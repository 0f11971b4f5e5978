// Package media defines the core frame types that flow through the Periscope
// display pipeline, from socket ingestion through decode to rendering.
package media

import (
	"image"
)

// Channel buffer sizes used by the decode worker (producer) and the renderer
// (consumer) to decouple frame production from presentation. Sized to absorb
// jitter without excessive memory: ~1 second of video at the assumed rate.
const (
	EventBufferSize = 60
	ChunkBufferSize = 120
)

// FrameKind classifies an encoded chunk as a self-contained key frame or a
// delta frame expressed against prior decoded state.
type FrameKind int

const (
	KeyFrame FrameKind = iota
	DeltaFrame
)

// String returns the wire-level name of the frame kind.
func (k FrameKind) String() string {
	if k == DeltaFrame {
		return "delta"
	}
	return "key"
}

// EncodedChunk is one network payload of H.264 Annex B data, classified and
// stamped by the decode worker. Chunks are consumed by the decoder immediately
// and never retained.
type EncodedChunk struct {
	Data      []byte
	Kind      FrameKind
	Timestamp int64 // synthetic, in 1/1,000,000s units
}

// Frame is a pool-backed decoded picture. Ownership transfers from the decoder
// to the renderer, which must call Release exactly once after drawing. While a
// Frame is outstanding its pool slot is unavailable, so a renderer that fails
// to release frames will stall decode output.
type Frame struct {
	Width     int
	Height    int
	Stride    int
	Pix       []byte // RGBA, Stride*Height bytes
	Timestamp int64

	pool     *FramePool
	released bool
}

// Image returns an image.RGBA view over the frame's pixels. The view is only
// valid until Release is called.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Release returns the frame's slot to its pool. Releasing twice is a caller
// bug; the second call is a logged no-op rather than a corruption of the pool.
func (f *Frame) Release() {
	if f.pool == nil {
		return
	}
	f.pool.release(f)
}
