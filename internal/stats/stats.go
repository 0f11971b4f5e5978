// Package stats exposes Prometheus metrics for the display pipeline.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "periscope"

// Pipeline holds the counters recorded along the ingest-decode-render path.
type Pipeline struct {
	ChunksReceived prometheus.Counter
	BytesReceived  prometheus.Counter
	Keyframes      prometheus.Counter
	FramesDecoded  prometheus.Counter
	DecodeErrors   prometheus.Counter
	FramesRendered prometheus.Counter
	FramesDropped  prometheus.Counter
	SocketOpen     prometheus.Gauge
}

// NewPipeline registers the pipeline metrics with the given registerer.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Pipeline{
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Encoded chunks accepted by the decode worker.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Encoded payload bytes accepted by the decode worker.",
		}),
		Keyframes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyframes_total",
			Help:      "Chunks classified as key frames.",
		}),
		FramesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Decoded frames emitted by the decoder.",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Decoder-level errors converted to log events.",
		}),
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames drawn onto the display surface.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the renderer's drop-oldest overflow policy.",
		}),
		SocketOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_open",
			Help:      "1 while the stream socket is open, 0 otherwise.",
		}),
	}
}
