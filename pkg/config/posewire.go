package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"posewire/pkg/engine"
	"posewire/pkg/logging"
	"posewire/pkg/protocol"
	"posewire/pkg/scene"
)

const DefaultConfigPath = "posewire.toml"

// Sender sources.
const (
	SourceMock   = "mock"
	SourceReplay = "replay"
)

type Config struct {
	Server     ServerConfig   `toml:"server"`
	Sender     SenderConfig   `toml:"sender"`
	Render     RenderConfig   `toml:"render"`
	Foxglove   FoxgloveConfig `toml:"foxglove"`
	Record     RecordConfig   `toml:"record"`
	Metrics    MetricsConfig  `toml:"metrics"`
	Log        LogConfig      `toml:"log"`
	configPath string         `toml:"-"`
}

type ServerConfig struct {
	Addr     string `toml:"addr"`
	BankSize int    `toml:"bank_size"`
}

type SenderConfig struct {
	Addr        string `toml:"addr"`
	Hz          int    `toml:"hz"`
	DialTimeout string `toml:"dial_timeout"`
	Source      string `toml:"source"`
	ReplayPath  string `toml:"replay_path,omitempty"`
}

type RenderConfig struct {
	Hz      int               `toml:"hz"`
	Mode    string            `toml:"mode"`
	FlipZ   bool              `toml:"flip_z"`
	Aliases map[string]string `toml:"aliases,omitempty"`
}

type FoxgloveConfig struct {
	Enabled     bool           `toml:"enabled"`
	WSAddr      string         `toml:"ws_addr"`
	Name        string         `toml:"name"`
	ParentFrame string         `toml:"parent_frame"`
	Topics      FoxgloveTopics `toml:"topics"`
}

type FoxgloveTopics struct {
	Transforms string `toml:"transforms"`
	Skeleton   string `toml:"skeleton"`
	Log        string `toml:"log"`
}

type RecordConfig struct {
	JSONLPath string   `toml:"jsonl_path,omitempty"`
	RawPath   string   `toml:"raw_path,omitempty"`
	Joints    []string `toml:"joints,omitempty"`
}

type MetricsConfig struct {
	Addr string `toml:"addr,omitempty"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

func Default() Config {
	logDefaults := logging.DefaultOptions()
	return Config{
		Server: ServerConfig{
			Addr:     "0.0.0.0:5555",
			BankSize: protocol.DefaultBankSize,
		},
		Sender: SenderConfig{
			Addr:        "127.0.0.1:5555",
			Hz:          60,
			DialTimeout: "5s",
			Source:      SourceMock,
		},
		Render: RenderConfig{
			Hz:   60,
			Mode: scene.ApplyLocalRotation.String(),
		},
		Foxglove: FoxgloveConfig{
			WSAddr:      "127.0.0.1:8765",
			Name:        "posewire",
			ParentFrame: "world",
			Topics: FoxgloveTopics{
				Transforms: "/tf",
				Skeleton:   "/posewire/skeleton",
				Log:        "/posewire/log",
			},
		},
		Log: LogConfig{
			Level:      logDefaults.Level,
			Format:     logDefaults.Format,
			MaxSizeMB:  logDefaults.MaxSizeMB,
			MaxBackups: logDefaults.MaxBackups,
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path, filling unset keys from Default. A missing file
// yields the defaults and exists=false.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize(path)
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize(path)

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

// ResolvePath makes a relative path relative to the config file's directory.
// Empty stays empty.
func (cfg *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := filepath.Dir(cfg.configPath)
	if base == "" {
		base = "."
	}
	return filepath.Clean(filepath.Join(base, p))
}

func (cfg *Config) DialTimeout() time.Duration {
	d, err := time.ParseDuration(cfg.Sender.DialTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (cfg *Config) ApplyMode() scene.ApplyMode {
	mode, err := scene.ParseApplyMode(cfg.Render.Mode)
	if err != nil {
		return scene.ApplyLocalRotation
	}
	return mode
}

// LogOptions converts the [log] section for logging.Configure.
func (cfg *Config) LogOptions() logging.Options {
	opts := logging.DefaultOptions()
	opts.Level = cfg.Log.Level
	opts.Format = cfg.Log.Format
	opts.File = cfg.ResolvePath(cfg.Log.File)
	opts.MaxSizeMB = cfg.Log.MaxSizeMB
	opts.MaxBackups = cfg.Log.MaxBackups
	return opts
}

func (cfg *Config) Validate() error {
	if cfg.Server.BankSize < protocol.RecordSize {
		return fmt.Errorf("server.bank_size must be at least %d, got %d", protocol.RecordSize, cfg.Server.BankSize)
	}
	if cfg.Sender.Hz <= 0 || cfg.Sender.Hz > engine.MaxRateHz {
		return fmt.Errorf("sender.hz must be in 1..%d, got %d", engine.MaxRateHz, cfg.Sender.Hz)
	}
	if d, err := time.ParseDuration(cfg.Sender.DialTimeout); err != nil || d <= 0 {
		return fmt.Errorf("sender.dial_timeout invalid: %q", cfg.Sender.DialTimeout)
	}
	switch cfg.Sender.Source {
	case SourceMock:
	case SourceReplay:
		if cfg.Sender.ReplayPath == "" {
			return fmt.Errorf("sender.replay_path is required for source %q", SourceReplay)
		}
	default:
		return fmt.Errorf("sender.source must be %q or %q, got %q", SourceMock, SourceReplay, cfg.Sender.Source)
	}
	if cfg.Render.Hz <= 0 || cfg.Render.Hz > engine.MaxRateHz {
		return fmt.Errorf("render.hz must be in 1..%d, got %d", engine.MaxRateHz, cfg.Render.Hz)
	}
	if _, err := scene.ParseApplyMode(cfg.Render.Mode); err != nil {
		return fmt.Errorf("render.mode: %w", err)
	}
	for joint := range cfg.Render.Aliases {
		if _, ok := protocol.LookupJoint(joint); !ok {
			return fmt.Errorf("render.aliases: unknown joint %q", joint)
		}
	}
	for _, joint := range cfg.Record.Joints {
		if _, ok := protocol.LookupJoint(joint); !ok {
			return fmt.Errorf("record.joints: unknown joint %q", joint)
		}
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level invalid: %q", cfg.Log.Level)
	}
	if cfg.Log.Format != logging.FormatConsole && cfg.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatConsole, logging.FormatJSON, cfg.Log.Format)
	}
	return nil
}

func (cfg *Config) normalize(path string) {
	def := Default()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.BankSize == 0 {
		cfg.Server.BankSize = def.Server.BankSize
	}

	if cfg.Sender.Addr == "" {
		cfg.Sender.Addr = def.Sender.Addr
	}
	if cfg.Sender.Hz == 0 {
		cfg.Sender.Hz = def.Sender.Hz
	}
	if cfg.Sender.DialTimeout == "" {
		cfg.Sender.DialTimeout = def.Sender.DialTimeout
	}
	cfg.Sender.Source = strings.ToLower(strings.TrimSpace(cfg.Sender.Source))
	if cfg.Sender.Source == "" {
		cfg.Sender.Source = def.Sender.Source
	}

	if cfg.Render.Hz == 0 {
		cfg.Render.Hz = def.Render.Hz
	}
	if cfg.Render.Mode == "" {
		cfg.Render.Mode = def.Render.Mode
	}

	if cfg.Foxglove.WSAddr == "" {
		cfg.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if cfg.Foxglove.Name == "" {
		cfg.Foxglove.Name = def.Foxglove.Name
	}
	if cfg.Foxglove.ParentFrame == "" {
		cfg.Foxglove.ParentFrame = def.Foxglove.ParentFrame
	}
	if cfg.Foxglove.Topics.Transforms == "" {
		cfg.Foxglove.Topics.Transforms = def.Foxglove.Topics.Transforms
	}
	if cfg.Foxglove.Topics.Skeleton == "" {
		cfg.Foxglove.Topics.Skeleton = def.Foxglove.Topics.Skeleton
	}
	if cfg.Foxglove.Topics.Log == "" {
		cfg.Foxglove.Topics.Log = def.Foxglove.Topics.Log
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = def.Log.MaxBackups
	}

	if path == "" {
		path = cfg.configPath
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg.configPath = path
}
