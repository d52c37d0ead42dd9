// Package config loads the settings of a simulation run from defaults, an
// optional meshsim.yaml file and MESHSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MESHSIM"

// Topology shapes that can be generated.
const (
	ShapeLine   = "line"
	ShapeRing   = "ring"
	ShapeGrid   = "grid"
	ShapeRandom = "random"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration of a simulation run.
type Config struct {
	// Seed seeds every random source of the run.
	Seed uint64 `mapstructure:"seed"`

	// Ticks is the number of ticks to simulate.
	Ticks int `mapstructure:"ticks"`

	// Shuffle steps the nodes in a new random order every tick.
	Shuffle bool `mapstructure:"shuffle"`

	Topology TopologyConfig `mapstructure:"topology"`
	Traffic  TrafficConfig  `mapstructure:"traffic"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

// TopologyConfig selects a topology file or a generated shape.
type TopologyConfig struct {
	// File is a YAML topology. Shape and sizes are ignored when it is set.
	File   string `mapstructure:"file"`
	Shape  string `mapstructure:"shape"`
	Nodes  int    `mapstructure:"nodes"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Degree int    `mapstructure:"degree"`

	// RandomLinks draws link quality and latency instead of using the
	// defaults.
	RandomLinks bool `mapstructure:"random_links"`
}

// TrafficConfig controls the application packets injected every tick.
type TrafficConfig struct {
	// Rate is the chance, per node and tick, of sending a data packet.
	Rate float64 `mapstructure:"rate"`
}

// TraceConfig controls what is written into the trace database.
type TraceConfig struct {
	// Database is the SQLite file, without extension. Tracing is off when
	// it is empty.
	Database string `mapstructure:"database"`

	// SnapshotEvery records the state of every node every that many ticks.
	// Zero disables snapshots.
	SnapshotEvery uint64 `mapstructure:"snapshot_every"`
}

// MonitorConfig controls the monitoring web server.
type MonitorConfig struct {
	Enable      bool `mapstructure:"enable"`
	Port        int  `mapstructure:"port"`
	OpenBrowser bool `mapstructure:"open_browser"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// File receives a copy of the log in text format when set.
	File string `mapstructure:"file"`

	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls the rotation of the log file.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with the defaults.
func Default() *Config {
	return &Config{
		Seed:  1,
		Ticks: 1000,
		Topology: TopologyConfig{
			Shape:  ShapeRandom,
			Nodes:  16,
			Width:  4,
			Height: 4,
			Degree: 3,
		},
		Traffic: TrafficConfig{Rate: 0.01},
		Log: LogConfig{
			Level: "info",
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("seed", cfg.Seed)
	v.SetDefault("ticks", cfg.Ticks)
	v.SetDefault("shuffle", cfg.Shuffle)
	v.SetDefault("topology.file", cfg.Topology.File)
	v.SetDefault("topology.shape", cfg.Topology.Shape)
	v.SetDefault("topology.nodes", cfg.Topology.Nodes)
	v.SetDefault("topology.width", cfg.Topology.Width)
	v.SetDefault("topology.height", cfg.Topology.Height)
	v.SetDefault("topology.degree", cfg.Topology.Degree)
	v.SetDefault("topology.random_links", cfg.Topology.RandomLinks)
	v.SetDefault("traffic.rate", cfg.Traffic.Rate)
	v.SetDefault("trace.database", cfg.Trace.Database)
	v.SetDefault("trace.snapshot_every", cfg.Trace.SnapshotEvery)
	v.SetDefault("monitor.enable", cfg.Monitor.Enable)
	v.SetDefault("monitor.port", cfg.Monitor.Port)
	v.SetDefault("monitor.open_browser", cfg.Monitor.OpenBrowser)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
}

// Load reads the configuration from path, or from meshsim.yaml in the
// working directory or in $HOME/.meshsim when path is empty. A missing
// meshsim.yaml is not an error. A .env file in the working directory is
// loaded into the environment first. Environment variables override the
// file, with `.` replaced by `_`, e.g. MESHSIM_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("meshsim")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".meshsim"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be used to run a simulation.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Ticks <= 0 {
		return fmt.Errorf("%w: ticks must be positive, got %d",
			ErrInvalidConfig, c.Ticks)
	}

	if c.Topology.File == "" {
		switch c.Topology.Shape {
		case ShapeLine, ShapeRing, ShapeGrid, ShapeRandom:
		default:
			return fmt.Errorf("%w: unknown topology shape %q",
				ErrInvalidConfig, c.Topology.Shape)
		}
	}

	if c.Traffic.Rate < 0 || c.Traffic.Rate > 1 {
		return fmt.Errorf("%w: traffic rate must be within [0, 1], got %v",
			ErrInvalidConfig, c.Traffic.Rate)
	}

	if c.Monitor.Port != 0 && (c.Monitor.Port < 1000 || c.Monitor.Port > 65535) {
		return fmt.Errorf("%w: monitor port %d out of range",
			ErrInvalidConfig, c.Monitor.Port)
	}

	return nil
}

// ParseLevel converts a level name into a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: invalid log level %q", ErrInvalidConfig, level)
	}
}
