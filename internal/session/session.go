// Package session owns one display pipeline end to end: socket manager,
// decode worker, and renderer, wired at construction and torn down by a
// single Close. No module-level mutable state.
package session

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/periscope-kvm/periscope/internal/decode"
	"github.com/periscope-kvm/periscope/internal/render"
	"github.com/periscope-kvm/periscope/internal/socket"
	"github.com/periscope-kvm/periscope/internal/stats"
	"github.com/periscope-kvm/periscope/internal/viewport"
)

// Config assembles the collaborators of a Session.
type Config struct {
	// URL is the ws:// or wss:// stream endpoint.
	URL string
	// FPS is the assumed constant frame rate for synthetic timestamps.
	// Zero means decode.DefaultFPS.
	FPS int
	// Decoder is the stream decoder fed by the decode worker.
	Decoder decode.Decoder
	// DecoderConfig is posted to the worker as the init message when the
	// socket opens.
	DecoderConfig decode.Config
	// Surface is the render target.
	Surface render.Surface
	// Viewport provides the startup surface dimensions.
	Viewport viewport.Source
	// Fallback is the placeholder image shown while no stream is active.
	Fallback image.Image
	// QueueDepth bounds the decode-to-draw queue. Zero means
	// render.DefaultQueueDepth.
	QueueDepth int
	// Stats is optional; nil disables metrics.
	Stats *stats.Pipeline
	// Log is optional; nil means slog.Default().
	Log *slog.Logger
}

// Session is one run of the display pipeline against one connection.
type Session struct {
	id  string
	log *slog.Logger

	sock     *socket.Manager
	worker   *decode.Worker
	renderer *render.Renderer
	vc       *viewport.Controller
	surface  render.Surface
	initCfg  decode.Config

	mu           sync.Mutex
	workerCancel context.CancelFunc
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// New wires a Session from cfg. The connection is not opened until Run.
func New(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	log = log.With("session", id)

	s := &Session{
		id:      id,
		log:     log,
		surface: cfg.Surface,
		initCfg: cfg.DecoderConfig,
	}

	s.worker = decode.NewWorker(cfg.Decoder, cfg.FPS, log)
	s.renderer = render.NewRenderer(cfg.Surface, cfg.QueueDepth, log)
	s.renderer.SetFallback(cfg.Fallback)
	s.vc = viewport.NewController(cfg.Viewport, log)
	s.sock = socket.NewManager(cfg.URL, s, log)

	if cfg.Stats != nil {
		s.worker.SetStats(cfg.Stats)
		s.renderer.SetStats(cfg.Stats)
		s.sock.SetStats(cfg.Stats)
	}
	return s
}

// ID returns the session's correlation ID.
func (s *Session) ID() string {
	return s.id
}

// Socket exposes the connection manager for state and counter queries.
func (s *Session) Socket() *socket.Manager {
	return s.sock
}

// Run sizes the surface, starts the worker and renderer, and opens the
// connection. It blocks until the pipeline winds down, either because the
// connection closed or because ctx was cancelled. On a socket close the
// renderer leaves the fallback placeholder on the surface before Run returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	workerCtx, workerCancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.workerCancel = workerCancel
	s.mu.Unlock()

	s.vc.Apply(s.surface)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.worker.Run(workerCtx)
	})
	g.Go(func() error {
		return s.renderer.Run(ctx, s.worker.Events())
	})
	g.Go(func() error {
		return s.sock.Run(ctx)
	})

	err := g.Wait()
	s.log.Info("session ended", "socket_state", s.sock.State().String())
	return err
}

// Close tears the session down: the worker stops forcibly, the connection
// closes, and Run returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// OnOpen marks the pipeline ready: the decoder is configured via the init
// message before any video data can arrive.
func (s *Session) OnOpen() {
	s.worker.Post(decode.Init{Config: s.initCfg})
}

// OnMessage forwards one binary payload to the worker, transferring
// ownership of the buffer.
func (s *Session) OnMessage(data []byte) {
	s.worker.Post(decode.VideoData{Data: data})
}

// OnClose terminates the decode worker. Any decode in flight is discarded;
// the renderer observes the closed event stream and switches to the
// fallback placeholder.
func (s *Session) OnClose(err error) {
	s.mu.Lock()
	workerCancel := s.workerCancel
	s.mu.Unlock()
	if workerCancel != nil {
		workerCancel()
	}
}
