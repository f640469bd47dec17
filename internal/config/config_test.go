package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/kfreplay/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kfreplay.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected no config file in empty dir")
	}
	if *cfg != config.Default() {
		t.Fatalf("cfg = %+v, want defaults", *cfg)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, _, err := config.Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[recorder]
max_decimal_places = 3

[stream]
addr = ":9000"

[log]
format = "json"
level = "debug"
`)
	cfg, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists = true")
	}
	if cfg.Recorder.MaxDecimalPlaces != 3 {
		t.Errorf("max_decimal_places = %d, want 3", cfg.Recorder.MaxDecimalPlaces)
	}
	if cfg.Stream.Addr != ":9000" {
		t.Errorf("stream.addr = %q", cfg.Stream.Addr)
	}
	if cfg.Stream.Path != "/keyframes" || cfg.Stream.SendBuffer != 256 {
		t.Errorf("unset stream fields lost defaults: %+v", cfg.Stream)
	}
	if cfg.Store.Path != "kfreplay.db" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[recorder]\nmax_places = 3\n")
	if _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*config.Config){
		"precision":   func(c *config.Config) { c.Recorder.MaxDecimalPlaces = 12 },
		"store path":  func(c *config.Config) { c.Store.Path = " " },
		"send buffer": func(c *config.Config) { c.Stream.SendBuffer = 0 },
		"stream path": func(c *config.Config) { c.Stream.Path = "keyframes" },
		"log level":   func(c *config.Config) { c.Log.Level = "loud" },
		"log format":  func(c *config.Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewLoggerFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	cfg.NewLogger(&buf, false).Info("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}

	buf.Reset()
	cfg.NewLogger(&buf, false).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line logged at info level: %q", buf.String())
	}
	cfg.NewLogger(&buf, true).Debug("shown")
	if buf.Len() == 0 {
		t.Fatal("verbose did not enable debug")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kfreplay.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded != config.Default() {
		t.Fatalf("sample = %+v, want defaults", decoded)
	}
}
