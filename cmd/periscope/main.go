package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/periscope-kvm/periscope/internal/decode"
	"github.com/periscope-kvm/periscope/internal/render"
	"github.com/periscope-kvm/periscope/internal/session"
	"github.com/periscope-kvm/periscope/internal/stats"
	"github.com/periscope-kvm/periscope/internal/viewport"
	"github.com/periscope-kvm/periscope/media"
)

var version = "dev"

type options struct {
	url          string
	fps          int
	width        int
	height       int
	fallbackPath string
	metricsAddr  string
	poolSize     int
	queueDepth   int
}

func main() {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:     "periscope",
		Short:   "Low-latency remote display client",
		Version: version,
		Long: `Periscope connects to a remote-display backend over a WebSocket,
decodes the incoming H.264 byte stream, and renders it to a display
surface with minimal latency. A static placeholder is shown whenever
no stream is available.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.url, "url", envOr("PERISCOPE_URL", "ws://localhost:8000/websocket/kvm-stream"), "stream endpoint")
	flags.IntVar(&opts.fps, "fps", decode.DefaultFPS, "assumed stream frame rate for synthetic timestamps")
	flags.IntVar(&opts.width, "width", 1280, "viewport width")
	flags.IntVar(&opts.height, "height", 720, "viewport height")
	flags.StringVar(&opts.fallbackPath, "fallback", "", "placeholder image shown while no stream is active")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (empty disables)")
	flags.IntVar(&opts.poolSize, "pool-size", media.DefaultPoolSize, "decoded frame pool size")
	flags.IntVar(&opts.queueDepth, "queue-depth", render.DefaultQueueDepth, "decode-to-draw queue depth")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var fallback image.Image
	if opts.fallbackPath != "" {
		img, err := loadImage(opts.fallbackPath)
		if err != nil {
			return fmt.Errorf("load fallback image: %w", err)
		}
		fallback = img
	}

	pipelineStats := stats.NewPipeline(nil)
	pool := media.NewFramePool(opts.poolSize, slog.Default())
	surface := render.NewImageSurface(opts.width, opts.height)

	sess := session.New(session.Config{
		URL:     opts.url,
		FPS:     opts.fps,
		Decoder: decode.NewGstDecoder(pool, slog.Default()),
		DecoderConfig: decode.Config{
			Codec:    "avc1.42E01E",
			AnnexB:   true,
			LowDelay: true,
			Width:    opts.width,
			Height:   opts.height,
		},
		Surface:    surface,
		Viewport:   viewport.Fixed{Width: opts.width, Height: opts.height},
		Fallback:   fallback,
		QueueDepth: opts.queueDepth,
		Stats:      pipelineStats,
	})

	slog.Info("periscope starting",
		"version", version,
		"url", opts.url,
		"fps", opts.fps,
		"viewport", fmt.Sprintf("%dx%d", opts.width, opts.height),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return sess.Run(ctx)
	})

	if opts.metricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:    opts.metricsAddr,
			Handler: promhttp.Handler(),
		}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", opts.metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("session error", "error", err)
		return err
	}
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
