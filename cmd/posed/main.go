package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"posewire/pkg/config"
	"posewire/pkg/logging"
	"posewire/pkg/protocol"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		var ue usageError
		if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "posed",
		Short:         "Skeleton pose streaming over TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultConfigPath, "TOML config path")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format (console, json)")
	pf.StringVar(&g.logFile, "log-file", "", "also write logs to a rotating file")

	root.AddCommand(
		newServeCmd(g, stdout, stderr),
		newSendCmd(g, stderr),
		newJointsCmd(stdout),
	)
	return root
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	cfg, _, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	overrideString(flags, "log-level", &cfg.Log.Level, g.logLevel)
	overrideString(flags, "log-format", &cfg.Log.Format, g.logFormat)
	overrideString(flags, "log-file", &cfg.Log.File, g.logFile)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, usageError{err: err}
	}
	return cfg, nil
}

func overrideString(flags *pflag.FlagSet, name string, dst *string, value string) {
	if flags.Changed(name) {
		*dst = value
	}
}

func configureLogging(cfg config.Config, app string, out io.Writer) logging.Options {
	opts := cfg.LogOptions()
	opts.App = app
	opts.Output = out
	return opts
}

func newJointsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "joints",
		Short: "Print the wire joint table",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for i, name := range protocol.JointNames() {
				j := protocol.Joint(i)
				fmt.Fprintf(stdout, "%2d  %-28s offset %d\n", i, name, j.Offset())
			}
			return nil
		},
	}
}
