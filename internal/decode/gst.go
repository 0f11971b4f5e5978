package decode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/periscope-kvm/periscope/internal/nal"
	"github.com/periscope-kvm/periscope/media"
)

// GstDecoder decodes H.264 byte-stream chunks with a GStreamer pipeline:
//
//	appsrc → h264parse → avdec_h264 → videoconvert → capsfilter(RGBA) → appsink
//
// Decoded pictures are copied into pool-backed media.Frames. The pool is
// bounded, so unreleased frames eventually stall the appsink callback and,
// through it, the whole pipeline.
type GstDecoder struct {
	log  *slog.Logger
	pool *media.FramePool

	frames chan *media.Frame
	errs   chan error

	mu       sync.Mutex
	pipeline *gst.Pipeline
	src      *app.Source
	sink     *app.Sink
	width    int
	height   int
	pending  chan int64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewGstDecoder creates an unconfigured GStreamer decoder drawing frames
// from pool. If log is nil, slog.Default() is used.
func NewGstDecoder(pool *media.FramePool, log *slog.Logger) *GstDecoder {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GstDecoder{
		log:     log.With("component", "gst-decoder"),
		pool:    pool,
		frames:  make(chan *media.Frame, media.EventBufferSize),
		errs:    make(chan error, 8),
		pending: make(chan int64, media.ChunkBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Configure builds and starts the pipeline. Safe to call once.
func (d *GstDecoder) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline != nil {
		return fmt.Errorf("gst decoder already configured")
	}
	if !cfg.AnnexB {
		return fmt.Errorf("gst decoder supports Annex B byte-stream input only")
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("create appsrc: %w", err)
	}
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)
	src.SetProperty("format", 3) // GST_FORMAT_TIME
	src.SetProperty("caps", gst.NewCapsFromString(
		"video/x-h264,stream-format=byte-stream,alignment=au"))

	parse, err := gst.NewElement("h264parse")
	if err != nil {
		return fmt.Errorf("create h264parse: %w", err)
	}

	dec, err := gst.NewElement("avdec_h264")
	if err != nil {
		return fmt.Errorf("create avdec_h264: %w", err)
	}
	if cfg.LowDelay {
		// Skip damaged pictures instead of waiting on reference repair.
		dec.SetProperty("output-corrupt", false)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA"))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)

	pipeline.AddMany(src.Element, parse, dec, convert, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(src.Element, parse, dec, convert, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("link pipeline: %w", err)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.pipeline = pipeline
	d.src = src
	d.sink = sink
	d.width = cfg.Width
	d.height = cfg.Height

	go d.watchBus(pipeline)
	return nil
}

// Decode pushes one chunk into the appsrc. Keyframe payloads are scanned for
// an SPS so the picture size tracks the bitstream.
func (d *GstDecoder) Decode(chunk media.EncodedChunk) error {
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		return ErrNotConfigured
	}

	if chunk.Kind == media.KeyFrame {
		d.updateDimensions(chunk.Data)
	}

	select {
	case d.pending <- chunk.Timestamp:
	default:
		// Timestamp backlog means the pipeline is stalled; keep feeding,
		// presentation stamps for the overflow are approximated downstream.
	}

	if ret := src.PushBuffer(gst.NewBufferFromBytes(chunk.Data)); ret != gst.FlowOK {
		return fmt.Errorf("push buffer: flow %v", ret)
	}
	return nil
}

// Frames delivers decoded frames in presentation order.
func (d *GstDecoder) Frames() <-chan *media.Frame {
	return d.frames
}

// Errors delivers pipeline-level errors.
func (d *GstDecoder) Errors() <-chan error {
	return d.errs
}

// Close stops the pipeline and closes the frame channel. Any decode in
// flight is discarded.
func (d *GstDecoder) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.cancel()

		d.mu.Lock()
		pipeline := d.pipeline
		d.pipeline = nil
		d.src = nil
		d.mu.Unlock()

		if pipeline != nil {
			if serr := pipeline.SetState(gst.StateNull); serr != nil {
				err = fmt.Errorf("stop pipeline: %w", serr)
			}
		}
		close(d.frames)
	})
	return err
}

func (d *GstDecoder) updateDimensions(data []byte) {
	for _, unit := range nal.ParseAnnexB(data) {
		if unit.Type != nal.TypeSPS {
			continue
		}
		info, err := nal.ParseSPS(unit.Data)
		if err != nil {
			d.log.Debug("SPS parse failed", "error", err)
			return
		}
		d.mu.Lock()
		if info.Width != d.width || info.Height != d.height {
			d.log.Info("stream dimensions", "width", info.Width, "height", info.Height, "codec", info.CodecString())
			d.width = info.Width
			d.height = info.Height
		}
		d.mu.Unlock()
		return
	}
}

// onNewSample copies one decoded picture out of GStreamer memory into a
// pool-backed frame. Pulling is skipped rather than failed on transient
// sample problems so one bad picture cannot kill the pipeline.
func (d *GstDecoder) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		d.log.Warn("failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		d.log.Warn("sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		d.log.Warn("empty buffer, skipping frame")
		return gst.FlowOK
	}

	d.mu.Lock()
	width, height := d.width, d.height
	d.mu.Unlock()
	if width <= 0 || height <= 0 {
		buffer.Unmap()
		d.log.Warn("sample before dimensions known, skipping frame")
		return gst.FlowOK
	}

	frame, err := d.pool.Acquire(d.ctx, width, height)
	if err != nil {
		buffer.Unmap()
		return gst.FlowEOS
	}
	n := copy(frame.Pix, data)
	buffer.Unmap()
	if n < len(frame.Pix) {
		d.log.Warn("short picture copy", "copied", n, "want", len(frame.Pix))
	}

	select {
	case ts := <-d.pending:
		frame.Timestamp = ts
	default:
	}

	select {
	case d.frames <- frame:
	case <-d.ctx.Done():
		frame.Release()
		return gst.FlowEOS
	}
	return gst.FlowOK
}

// watchBus surfaces pipeline errors on the Errors channel. EOS and state
// changes are logged only.
func (d *GstDecoder) watchBus(pipeline *gst.Pipeline) {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			d.log.Info("pipeline end of stream")
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			select {
			case d.errs <- fmt.Errorf("pipeline: %s", gerr.Error()):
			case <-d.ctx.Done():
				return
			}
		}
	}
}
