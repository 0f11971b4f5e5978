package decode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/periscope-kvm/periscope/internal/nal"
	"github.com/periscope-kvm/periscope/internal/stats"
	"github.com/periscope-kvm/periscope/media"
)

// Worker is the isolated decode context. It consumes Messages in post order,
// classifies and stamps each chunk, feeds the decoder, and emits Events.
// All decode-path errors become LogEvents; nothing on that path terminates
// the worker. Termination is forcible, via context cancellation: any decode
// in flight is discarded without a drain.
type Worker struct {
	log      *slog.Logger
	dec      Decoder
	interval int64

	in     chan Message
	events chan Event
	stats  *stats.Pipeline

	configured bool
	timestamp  int64
}

// NewWorker creates a Worker around the given decoder. fps is the assumed
// constant frame rate used to derive the per-chunk timestamp increment; zero
// means DefaultFPS. If log is nil, slog.Default() is used.
func NewWorker(dec Decoder, fps int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		log:      log.With("component", "decode-worker"),
		dec:      dec,
		interval: FrameInterval(fps),
		in:       make(chan Message, media.ChunkBufferSize),
		events:   make(chan Event, media.EventBufferSize),
	}
}

// SetStats attaches a pipeline stats collector. Must be called before Run.
func (w *Worker) SetStats(s *stats.Pipeline) {
	w.stats = s
}

// Post queues a message for the worker. Messages are processed in post
// order; the call blocks only if the worker's inbox is full.
func (w *Worker) Post(m Message) {
	w.in <- m
}

// Events returns the worker's output channel. It is closed when Run returns,
// after which no further frame or log events are emitted.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Run processes messages and decoder output until the context is cancelled.
// It always returns nil; the context is the only way to stop a worker.
func (w *Worker) Run(ctx context.Context) error {
	defer w.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case m := <-w.in:
			w.handle(ctx, m)

		case frame, ok := <-w.dec.Frames():
			if !ok {
				w.log.Info("decoder output closed")
				return nil
			}
			if w.stats != nil {
				w.stats.FramesDecoded.Inc()
			}
			w.emit(ctx, FrameEvent{Frame: frame})

		case err, ok := <-w.dec.Errors():
			if !ok {
				return nil
			}
			if w.stats != nil {
				w.stats.DecodeErrors.Inc()
			}
			w.emit(ctx, LogEvent{Level: slog.LevelError, Message: fmt.Sprintf("decoder: %v", err)})
		}
	}
}

// handle dispatches one message. The switch is exhaustive over the closed
// Message set.
func (w *Worker) handle(ctx context.Context, m Message) {
	switch m := m.(type) {
	case Init:
		if w.configured {
			w.emit(ctx, LogEvent{Level: slog.LevelWarn, Message: "init ignored: decoder already configured"})
			return
		}
		if err := w.dec.Configure(m.Config); err != nil {
			w.emit(ctx, LogEvent{Level: slog.LevelError, Message: fmt.Sprintf("configure decoder: %v", err)})
			return
		}
		w.configured = true
		w.log.Debug("decoder configured", "codec", m.Config.Codec, "lowDelay", m.Config.LowDelay)

	case VideoData:
		if !w.configured {
			w.emit(ctx, LogEvent{Level: slog.LevelError, Message: "protocol violation: videoData before init, chunk dropped"})
			return
		}
		w.ingest(ctx, m.Data)

	default:
		// Closed set; a new Message variant must be handled above.
		w.emit(ctx, LogEvent{Level: slog.LevelError, Message: fmt.Sprintf("unknown message %T", m)})
	}
}

// ingest classifies and stamps one chunk, then submits it to the decoder.
// The timestamp advances once per submitted chunk regardless of frame kind;
// a chunk rejected by classification does not consume a timestamp.
func (w *Worker) ingest(ctx context.Context, b []byte) {
	kind, err := nal.Classify(b)
	if err != nil {
		w.emit(ctx, LogEvent{Level: slog.LevelWarn, Message: fmt.Sprintf("classify chunk: %v", err)})
		return
	}

	chunk := media.EncodedChunk{
		Data:      b,
		Kind:      kind,
		Timestamp: w.timestamp,
	}
	w.timestamp += w.interval

	if w.stats != nil {
		w.stats.ChunksReceived.Inc()
		w.stats.BytesReceived.Add(float64(len(b)))
		if kind == media.KeyFrame {
			w.stats.Keyframes.Inc()
		}
	}

	if err := w.dec.Decode(chunk); err != nil {
		w.emit(ctx, LogEvent{Level: slog.LevelError, Message: fmt.Sprintf("decode chunk ts=%d kind=%s: %v", chunk.Timestamp, kind, err)})
	}
}

func (w *Worker) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// teardown closes the decoder, releases any frames it already produced, and
// closes the event channel so consumers observe the forcible stop.
func (w *Worker) teardown() {
	if err := w.dec.Close(); err != nil {
		w.log.Warn("decoder close", "error", err)
	}
	for {
		select {
		case frame, ok := <-w.dec.Frames():
			if !ok {
				close(w.events)
				return
			}
			frame.Release()
		default:
			close(w.events)
			return
		}
	}
}
