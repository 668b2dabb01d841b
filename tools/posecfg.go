package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"posewire/pkg/config"
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "show":
		return runShow(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runInit(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "posewire TOML config path")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Fprintf(stderr, "%s already exists (use --force to overwrite)\n", *configPath)
		return 1
	}
	cfg := config.Default()
	if err := cfg.Save(*configPath); err != nil {
		fmt.Fprintln(stderr, "init failed:", err)
		return 1
	}
	fmt.Fprintf(stdout, "[Init] Wrote defaults to %s\n", *configPath)
	return 0
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "posewire TOML config path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "check failed:", err)
		return 1
	}
	fmt.Fprintf(stdout, "[Check] %s is valid (listen %s, render %d Hz, mode %s)\n",
		*configPath, cfg.Server.Addr, cfg.Render.Hz, cfg.ApplyMode())
	return 0
}

func runShow(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultConfigPath, "posewire TOML config path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "show failed:", err)
		return 1
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "show failed:", err)
		return 1
	}
	_, _ = stdout.Write(data)
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  go run tools/posecfg.go init [--config path] [--force]")
	fmt.Fprintln(w, "  go run tools/posecfg.go check [--config path]")
	fmt.Fprintln(w, "  go run tools/posecfg.go show [--config path]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init    write a posewire.toml with default values")
	fmt.Fprintln(w, "  check   load and validate a config file")
	fmt.Fprintln(w, "  show    print the effective config, defaults filled in")
}
