// Package decode runs the isolated decode worker: it classifies incoming
// encoded chunks, assigns synthetic timestamps, feeds a configured stream
// decoder, and emits decoded frames or diagnostic events over a channel.
package decode

import (
	"errors"

	"github.com/periscope-kvm/periscope/media"
)

// TimestampScale is the number of timestamp units per second. FrameInterval
// divides it by the assumed frame rate; at the default 60 fps each chunk
// advances the clock by 16666 units.
const (
	TimestampScale = 1_000_000
	DefaultFPS     = 60
)

// FrameInterval returns the per-chunk timestamp increment for an assumed
// constant frame rate. No capture-side timestamp is transmitted, so arrival
// jitter is deliberately ignored.
func FrameInterval(fps int) int64 {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return TimestampScale / int64(fps)
}

// Config is the fixed decoder configuration carried by an Init message.
type Config struct {
	// Codec is the RFC 6381 codec string, e.g. "avc1.42E01E".
	Codec string
	// AnnexB selects byte-stream framing with start codes, as opposed to
	// length-prefixed AVC1 framing.
	AnnexB bool
	// LowDelay asks the decoder to emit pictures as soon as they are
	// decodable instead of buffering for reordering.
	LowDelay bool
	// Width and Height hint the expected picture size; decoders may revise
	// them from the bitstream.
	Width  int
	Height int
}

// ErrNotConfigured is returned by decoders that receive data before Configure.
var ErrNotConfigured = errors.New("decoder not configured")

// Decoder is a stream decoder that accepts encoded chunks and produces
// pool-backed decoded frames asynchronously. Implementations own a bounded
// frame pool; output stalls while too many frames are unreleased.
type Decoder interface {
	// Configure prepares the decoder. It must be called once before Decode.
	Configure(cfg Config) error
	// Decode submits one chunk for asynchronous decode. An error covers
	// submission only; decode failures surface on Errors.
	Decode(chunk media.EncodedChunk) error
	// Frames delivers decoded frames in presentation order.
	Frames() <-chan *media.Frame
	// Errors delivers decoder-level failures. The decoder keeps running
	// after reporting one.
	Errors() <-chan error
	// Close tears the decoder down, discarding any decode in flight.
	Close() error
}
