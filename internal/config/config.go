// Package config loads kfreplay settings from a TOML file.
//
// Every setting has a default, so a missing file is not an error. Command
// line flags override file values; the CLI applies them after Load.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is looked up in the working directory when no path is
// given.
const DefaultFileName = "kfreplay.toml"

// Recorder holds keyframe encoding settings.
type Recorder struct {
	// MaxDecimalPlaces rounds floats in stored and streamed keyframes.
	// Negative disables rounding.
	MaxDecimalPlaces int `toml:"max_decimal_places"`
}

// Store holds the SQLite database location.
type Store struct {
	Path string `toml:"path"`
}

// Stream holds websocket publishing settings.
type Stream struct {
	Addr       string `toml:"addr"`
	Path       string `toml:"path"`
	SendBuffer int    `toml:"send_buffer"`
}

// Metrics holds the prometheus endpoint settings. An empty Addr serves
// /metrics on the stream listener.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Log holds structured logging settings.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete kfreplay configuration.
type Config struct {
	Recorder Recorder `toml:"recorder"`
	Store    Store    `toml:"store"`
	Stream   Stream   `toml:"stream"`
	Metrics  Metrics  `toml:"metrics"`
	Log      Log      `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Recorder: Recorder{MaxDecimalPlaces: 7},
		Store:    Store{Path: "kfreplay.db"},
		Stream:   Stream{Addr: "127.0.0.1:8765", Path: "/keyframes", SendBuffer: 256},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// means DefaultFileName in the working directory. The boolean reports
// whether a file was found.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, false, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, err == nil, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Recorder.MaxDecimalPlaces > 9 {
		return fmt.Errorf("recorder.max_decimal_places must be at most 9, got %d", c.Recorder.MaxDecimalPlaces)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path is required")
	}
	if c.Stream.SendBuffer <= 0 {
		return fmt.Errorf("stream.send_buffer must be positive, got %d", c.Stream.SendBuffer)
	}
	if !strings.HasPrefix(c.Stream.Path, "/") {
		return fmt.Errorf("stream.path must start with '/', got %q", c.Stream.Path)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the structured logger described by the Log section.
// verbose forces debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil || verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// CreateSample writes the default configuration as TOML to path.
func CreateSample(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
