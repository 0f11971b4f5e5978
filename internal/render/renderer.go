package render

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/periscope-kvm/periscope/internal/decode"
	"github.com/periscope-kvm/periscope/internal/stats"
	"github.com/periscope-kvm/periscope/media"
)

// DefaultQueueDepth bounds the frame queue between decode and draw. When
// drawing falls behind, the oldest queued frame is dropped and released so
// decoder pool pressure cannot grow without limit.
const DefaultQueueDepth = 8

// Renderer consumes decode worker events: frames are drawn onto the surface
// in the exact order the worker emitted them and released immediately after
// drawing; log events are forwarded to the process-wide diagnostic sink.
type Renderer struct {
	log     *slog.Logger
	surface Surface
	stats   *stats.Pipeline

	queue    chan *media.Frame
	fallback image.Image
}

// NewRenderer creates a Renderer drawing onto surface. queueDepth bounds the
// decode-to-draw queue; zero means DefaultQueueDepth. If log is nil,
// slog.Default() is used.
func NewRenderer(surface Surface, queueDepth int, log *slog.Logger) *Renderer {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{
		log:     log.With("component", "renderer"),
		surface: surface,
		queue:   make(chan *media.Frame, queueDepth),
	}
}

// SetStats attaches a pipeline stats collector. Must be called before Run.
func (r *Renderer) SetStats(s *stats.Pipeline) {
	r.stats = s
}

// SetFallback sets the placeholder image shown whenever the pipeline is
// unavailable. Must be called before Run.
func (r *Renderer) SetFallback(img image.Image) {
	r.fallback = img
}

// Run consumes events until the channel closes or the context is cancelled.
// The fallback placeholder is drawn at startup and again once the event
// stream ends. Always returns nil.
func (r *Renderer) Run(ctx context.Context, events <-chan decode.Event) error {
	r.ShowFallback()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.drawLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			close(r.queue)
			<-done
			return nil

		case ev, ok := <-events:
			if !ok {
				close(r.queue)
				<-done
				r.ShowFallback()
				r.log.Info("event stream ended, showing fallback")
				return nil
			}
			r.handle(ev)
		}
	}
}

// ShowFallback draws the placeholder image, if one is configured.
func (r *Renderer) ShowFallback() {
	if r.fallback == nil {
		return
	}
	r.surface.Draw(r.fallback)
}

// handle dispatches one event. The switch is exhaustive over the closed
// Event set.
func (r *Renderer) handle(ev decode.Event) {
	switch ev := ev.(type) {
	case decode.FrameEvent:
		r.enqueue(ev.Frame)
	case decode.LogEvent:
		r.log.Log(context.Background(), ev.Level, ev.Message)
	default:
		r.log.Error("unknown event", "event", ev)
	}
}

// enqueue adds a frame to the draw queue, dropping and releasing the oldest
// queued frame when the queue is full. Queue order is never reordered, so
// frames still reach the surface in emission order.
func (r *Renderer) enqueue(frame *media.Frame) {
	for {
		select {
		case r.queue <- frame:
			return
		default:
		}

		select {
		case old := <-r.queue:
			old.Release()
			if r.stats != nil {
				r.stats.FramesDropped.Inc()
			}
			r.log.Debug("queue full, dropped oldest frame", "ts", old.Timestamp)
		default:
		}
	}
}

// drawLoop drains the queue, drawing each frame and releasing it on every
// path. After cancellation, remaining frames are released without drawing.
func (r *Renderer) drawLoop(ctx context.Context) {
	rendered := 0
	lastReport := time.Now()

	for frame := range r.queue {
		if ctx.Err() != nil {
			frame.Release()
			continue
		}

		r.draw(frame)
		rendered++

		if elapsed := time.Since(lastReport); elapsed >= time.Second {
			r.log.Debug("rendering", "fps", float64(rendered)/elapsed.Seconds())
			rendered = 0
			lastReport = time.Now()
		}
	}
}

// draw composites one frame onto the surface. Release is guaranteed even if
// drawing panics.
func (r *Renderer) draw(frame *media.Frame) {
	defer frame.Release()

	r.surface.Draw(frame.Image())
	if r.stats != nil {
		r.stats.FramesRendered.Inc()
	}
}
