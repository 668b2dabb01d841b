package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"posewire/pkg/bridge/foxglove"
	"posewire/pkg/config"
	"posewire/pkg/engine"
	"posewire/pkg/logger"
	"posewire/pkg/logging"
	"posewire/pkg/metrics"
	"posewire/pkg/monitor"
	"posewire/pkg/scene"
	"posewire/pkg/transport"
)

type serveFlags struct {
	addr        string
	bankSize    int
	renderHz    int
	mode        string
	flipZ       bool
	foxglove    bool
	wsAddr      string
	jsonlPath   string
	rawPath     string
	metricsAddr string
	tui         bool
}

func newServeCmd(g *globalFlags, stdout io.Writer, stderr io.Writer) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive skeleton frames and drive the render side",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, f, &cfg)
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}

			logOut := stderr
			if f.tui {
				logOut = io.Discard
			}
			log := logging.Configure(configureLogging(cfg, "posed", logOut))
			return serve(cmd.Context(), cfg, f.tui, stdout, log)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "TCP listen address for capture clients")
	fl.IntVar(&f.bankSize, "bank-size", 0, "reassembly bank size in bytes")
	fl.IntVar(&f.renderHz, "render-hz", 0, "render tick rate")
	fl.StringVar(&f.mode, "mode", "", "apply mode (local_rotation, local_pose, local_pose_model_rotation)")
	fl.BoolVar(&f.flipZ, "flip-z", false, "convert poses to the opposite handedness")
	fl.BoolVar(&f.foxglove, "foxglove", false, "serve the Foxglove WebSocket bridge")
	fl.StringVar(&f.wsAddr, "ws-addr", "", "Foxglove WebSocket address")
	fl.StringVar(&f.jsonlPath, "jsonl", "", "record frames as JSON lines")
	fl.StringVar(&f.rawPath, "raw", "", "record frames in wire format")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fl.BoolVar(&f.tui, "tui", false, "show the terminal monitor")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	fl := cmd.Flags()
	overrideString(fl, "addr", &cfg.Server.Addr, f.addr)
	overrideString(fl, "mode", &cfg.Render.Mode, f.mode)
	overrideString(fl, "ws-addr", &cfg.Foxglove.WSAddr, f.wsAddr)
	overrideString(fl, "jsonl", &cfg.Record.JSONLPath, f.jsonlPath)
	overrideString(fl, "raw", &cfg.Record.RawPath, f.rawPath)
	overrideString(fl, "metrics-addr", &cfg.Metrics.Addr, f.metricsAddr)
	if fl.Changed("bank-size") {
		cfg.Server.BankSize = f.bankSize
	}
	if fl.Changed("render-hz") {
		cfg.Render.Hz = f.renderHz
	}
	if fl.Changed("flip-z") {
		cfg.Render.FlipZ = f.flipZ
	}
	if fl.Changed("foxglove") {
		cfg.Foxglove.Enabled = f.foxglove
	}
}

func serve(parent context.Context, cfg config.Config, tui bool, stdout io.Writer, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	metrics.Register()
	latest := engine.NewLatest()
	hub := engine.NewHub()
	rig := scene.NewFullRig(
		scene.WithMode(cfg.ApplyMode()),
		scene.WithFlipZ(cfg.Render.FlipZ),
		scene.WithAliases(cfg.Render.Aliases),
	)
	sinks := []engine.FrameSink{rig, dropCounter(latest)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	acceptorOpts := []transport.Option{
		transport.WithBankSize(cfg.Server.BankSize),
		transport.WithLogger(log.With().Str("component", "acceptor").Logger()),
	}
	if cfg.Foxglove.Enabled {
		fox := foxglove.NewServer(foxglove.Config{
			WSAddr:         cfg.Foxglove.WSAddr,
			Name:           cfg.Foxglove.Name,
			ParentFrameID:  cfg.Foxglove.ParentFrame,
			TransformTopic: cfg.Foxglove.Topics.Transforms,
			SkeletonTopic:  cfg.Foxglove.Topics.Skeleton,
			LogTopic:       cfg.Foxglove.Topics.Log,
		}, foxglove.WithLogger(log.With().Str("component", "foxglove").Logger()))
		sinks = append(sinks, fox)
		acceptorOpts = append(acceptorOpts, transport.WithConnHooks(fox.ConnectionOpened, fox.ConnectionClosed))
		g.Go(func() error { return fox.Run(ctx) })
	}

	if err := startRecorders(ctx, g, cfg, hub, log); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		startMetricsServer(ctx, g, cfg.Metrics.Addr, log)
	}

	acceptor := transport.NewAcceptor(cfg.Server.Addr, transport.FrameHandlerFunc(func(pkt engine.FramePacket) {
		latest.Publish(pkt)
		hub.Publish(pkt)
	}), acceptorOpts...)
	if err := acceptor.Listen(); err != nil {
		return err
	}
	g.Go(func() error { return acceptor.Serve(ctx) })

	g.Go(func() error {
		engine.RunRenderLoop(ctx, latest, cfg.Render.Hz, sinks...)
		return nil
	})

	if tui {
		g.Go(func() error {
			defer cancel()
			return monitor.Run(ctx, latest, nil, stdout)
		})
	}

	log.Info().
		Str("addr", acceptor.Addr().String()).
		Str("mode", rig.Mode().String()).
		Int("render_hz", cfg.Render.Hz).
		Bool("foxglove", cfg.Foxglove.Enabled).
		Msg("posed started")

	err := g.Wait()
	count, seq := rig.Applied()
	stats := latest.Stats()
	log.Info().
		Uint64("applied", count).
		Uint64("last_seq", seq).
		Uint64("published", stats.Published).
		Uint64("dropped", stats.Dropped).
		Msg("posed stopped")
	return err
}

// dropCounter forwards hand-off drops to the metrics registry on each render
// tick that applies a frame.
func dropCounter(latest *engine.Latest) engine.FrameSink {
	var reported uint64
	return engine.FrameSinkFunc(func(engine.FramePacket) {
		dropped := latest.Stats().Dropped
		if dropped > reported {
			metrics.RecordRenderDropped(dropped - reported)
			reported = dropped
		}
	})
}

func startRecorders(ctx context.Context, g *errgroup.Group, cfg config.Config, hub *engine.Hub, log zerolog.Logger) error {
	if path := cfg.ResolvePath(cfg.Record.JSONLPath); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open jsonl recording: %w", err)
		}
		w := logger.NewJSONLWriter(file, cfg.Record.Joints...)
		sub := hub.Subscribe()
		g.Go(func() error {
			defer file.Close()
			return w.Consume(ctx, sub)
		})
		log.Info().Str("path", path).Msg("recording json lines")
	}
	if path := cfg.ResolvePath(cfg.Record.RawPath); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("open raw recording: %w", err)
		}
		w := logger.NewRawWriter(file)
		sub := hub.Subscribe()
		g.Go(func() error {
			defer file.Close()
			return w.Consume(ctx, sub)
		})
		log.Info().Str("path", path).Msg("recording raw frames")
	}
	return nil
}

func startMetricsServer(ctx context.Context, g *errgroup.Group, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
