package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelPath != "models/wordpiece.model" {
		t.Errorf("ModelPath = %q; want %q", cfg.Paths.ModelPath, "models/wordpiece.model")
	}

	if cfg.Paths.VocabPath != "models/vocab.txt" {
		t.Errorf("VocabPath = %q; want %q", cfg.Paths.VocabPath, "models/vocab.txt")
	}

	if cfg.Build.SuffixIndicator != "##" {
		t.Errorf("Build.SuffixIndicator = %q; want %q", cfg.Build.SuffixIndicator, "##")
	}

	if cfg.Build.UnkToken != "[UNK]" {
		t.Errorf("Build.UnkToken = %q; want %q", cfg.Build.UnkToken, "[UNK]")
	}

	if cfg.Build.MaxBytesPerToken != 100 {
		t.Errorf("Build.MaxBytesPerToken = %d; want 100", cfg.Build.MaxBytesPerToken)
	}

	if !cfg.Build.EndToEnd {
		t.Error("Build.EndToEnd = false; want true")
	}

	if !cfg.Build.SupportDetokenization {
		t.Error("Build.SupportDetokenization = false; want true")
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.MaxTextBytes != 1<<20 {
		t.Errorf("Server.MaxTextBytes = %d; want %d", cfg.Server.MaxTextBytes, 1<<20)
	}

	if cfg.Server.Workers != 4 {
		t.Errorf("Server.Workers = %d; want 4", cfg.Server.Workers)
	}

	if cfg.Server.RequestTimeout != 30 {
		t.Errorf("Server.RequestTimeout = %d; want 30", cfg.Server.RequestTimeout)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
}

// --- Load ---

func TestLoadDefaultsWithoutSources(t *testing.T) {
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg != DefaultConfig() {
		t.Errorf("Load without sources = %+v; want defaults", cfg)
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fastwordpiece.yaml")
	contents := `paths:
  model_path: /models/custom.model
build:
  suffix_indicator: "++"
  max_bytes_per_token: 64
server:
  listen_addr: ":9999"
log_level: debug
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigFile: path, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Paths.ModelPath != "/models/custom.model" {
		t.Errorf("ModelPath = %q", cfg.Paths.ModelPath)
	}
	if cfg.Build.SuffixIndicator != "++" {
		t.Errorf("SuffixIndicator = %q", cfg.Build.SuffixIndicator)
	}
	if cfg.Build.MaxBytesPerToken != 64 {
		t.Errorf("MaxBytesPerToken = %d", cfg.Build.MaxBytesPerToken)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Untouched keys keep their defaults.
	if cfg.Build.UnkToken != "[UNK]" {
		t.Errorf("UnkToken = %q; want default", cfg.Build.UnkToken)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"),
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	binder := newFlagBinder(DefaultConfig())
	if err := binder.fs.Parse([]string{
		"--model", "/tmp/override.model",
		"--build-end-to-end=false",
		"--server-workers", "9",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Paths.ModelPath != "/tmp/override.model" {
		t.Errorf("ModelPath = %q; want flag override", cfg.Paths.ModelPath)
	}
	if cfg.Build.EndToEnd {
		t.Error("EndToEnd = true; want flag override false")
	}
	if cfg.Server.Workers != 9 {
		t.Errorf("Workers = %d; want 9", cfg.Server.Workers)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("FASTWORDPIECE_LOG_LEVEL", "warn")
	t.Setenv("FASTWORDPIECE_SERVER_LISTEN_ADDR", ":7777")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want env override", cfg.LogLevel)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %q; want env override", cfg.Server.ListenAddr)
	}
}
