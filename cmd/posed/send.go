package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"posewire/pkg/config"
	"posewire/pkg/logging"
	"posewire/pkg/source"
	"posewire/pkg/transport"
)

type sendFlags struct {
	addr       string
	hz         int
	source     string
	replayPath string
	frames     uint64
}

func newSendCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Stream skeleton frames to a receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			overrideString(fl, "addr", &cfg.Sender.Addr, f.addr)
			overrideString(fl, "source", &cfg.Sender.Source, f.source)
			overrideString(fl, "replay", &cfg.Sender.ReplayPath, f.replayPath)
			if fl.Changed("hz") {
				cfg.Sender.Hz = f.hz
			}
			if fl.Changed("replay") && !fl.Changed("source") {
				cfg.Sender.Source = config.SourceReplay
			}
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}

			log := logging.Configure(configureLogging(cfg, "posed-send", stderr))

			var src source.Source
			switch cfg.Sender.Source {
			case config.SourceReplay:
				replay, err := source.OpenReplay(cfg.ResolvePath(cfg.Sender.ReplayPath))
				if err != nil {
					return fmt.Errorf("open replay: %w", err)
				}
				defer replay.Close()
				src = replay
			default:
				src = newMockSource(time.Now())
			}

			sender := transport.NewSender(cfg.Sender.Addr, src,
				transport.WithRate(cfg.Sender.Hz),
				transport.WithDialTimeout(cfg.DialTimeout()),
				transport.WithFrameLimit(f.frames),
				transport.WithLogger(log.With().Str("component", "sender").Logger()),
			)
			return sender.Run(cmd.Context())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "receiver address")
	fl.IntVar(&f.hz, "hz", 0, "frames per second")
	fl.StringVar(&f.source, "source", "", "frame source (mock, replay)")
	fl.StringVar(&f.replayPath, "replay", "", "raw capture to play back")
	fl.Uint64Var(&f.frames, "frames", 0, "stop after this many frames (0 = unlimited)")
	return cmd
}
