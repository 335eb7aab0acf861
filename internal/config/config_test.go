package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}

	if cfg.Zoom != 3.0 {
		t.Errorf("Expected default zoom to be 3.0, got %g", cfg.Zoom)
	}

	if cfg.Merge.Threshold != 0.25 {
		t.Errorf("Expected default merge threshold to be 0.25, got %g", cfg.Merge.Threshold)
	}

	if !cfg.Merge.SuppressGeometricWithWidgets {
		t.Error("Expected geometric suppression on widget pages to be enabled by default")
	}

	if cfg.Classifier.MinSamples != 3 {
		t.Errorf("Expected default minimum samples to be 3, got %d", cfg.Classifier.MinSamples)
	}

	if cfg.ServerName != "mcp-form-autofill" {
		t.Errorf("Expected default server name to be 'mcp-form-autofill', got '%s'", cfg.ServerName)
	}

	if len(cfg.Detect.Strategies) != len(DefaultStrategies) {
		t.Errorf("Expected %d default strategies, got %d", len(DefaultStrategies), len(cfg.Detect.Strategies))
	}

	// Mutating the copy must not leak into the package default.
	cfg.Detect.Strategies[0] = "changed"
	if DefaultStrategies[0] != "native_widget" {
		t.Error("DefaultConfig must copy the default strategy list")
	}

	currentDir, _ := os.Getwd()
	if cfg.DocumentDirectory != currentDir {
		t.Errorf("Expected default directory to be '%s', got '%s'", currentDir, cfg.DocumentDirectory)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "server mode", mutate: func(c *Config) { c.Mode = ModeServer }},
		{name: "invalid mode", mutate: func(c *Config) { c.Mode = "invalid" }, wantErr: "mode must be"},
		{name: "bad port", mutate: func(c *Config) { c.Mode = ModeServer; c.Port = 70000 }, wantErr: "port"},
		{name: "empty dir", mutate: func(c *Config) { c.DocumentDirectory = "" }, wantErr: "directory"},
		{name: "zero zoom", mutate: func(c *Config) { c.Zoom = 0 }, wantErr: "zoom"},
		{name: "threshold above one", mutate: func(c *Config) { c.Merge.Threshold = 1.5 }, wantErr: "merge threshold"},
		{name: "threshold zero", mutate: func(c *Config) { c.Merge.Threshold = 0 }, wantErr: "merge threshold"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Detect.Strategies = []string{"magic"} }, wantErr: "unknown detection strategy"},
		{name: "no strategies", mutate: func(c *Config) { c.Detect.Strategies = nil }, wantErr: "at least one"},
		{name: "no workers", mutate: func(c *Config) { c.Detect.Workers = 0 }, wantErr: "workers"},
		{name: "bad dark ratio", mutate: func(c *Config) { c.Detect.DarkRatioMax = 1 }, wantErr: "dark ratio"},
		{name: "bad min samples", mutate: func(c *Config) { c.Classifier.MinSamples = 0 }, wantErr: "training samples"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
		{name: "bad file size", mutate: func(c *Config) { c.MaxFileSize = -1 }, wantErr: "file size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DocumentDirectory = "/srv/forms"

	if got := cfg.ResolvePath("a.pdf"); got != filepath.Join("/srv/forms", "a.pdf") {
		t.Errorf("ResolvePath(relative) = %s", got)
	}
	if got := cfg.ResolvePath("/tmp/b.pdf"); got != "/tmp/b.pdf" {
		t.Errorf("ResolvePath(absolute) = %s", got)
	}
	if got := cfg.ResolvePath(""); got != "" {
		t.Errorf("ResolvePath(empty) = %s", got)
	}
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmp := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(tmp, "data", "store.db")
	cfg.Classifier.ModelPath = filepath.Join(tmp, "models", "model.json")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error: %v", err)
	}
	for _, dir := range []string{"data", "models"} {
		if info, err := os.Stat(filepath.Join(tmp, dir)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Address() != "127.0.0.1:8080" {
		t.Errorf("Address() = %s", cfg.Address())
	}
	if cfg.IsDebug() {
		t.Error("IsDebug() should be false for info level")
	}
	if !cfg.IsStdioMode() || cfg.IsServerMode() {
		t.Error("default mode should be stdio")
	}
	if !strings.Contains(cfg.String(), "Zoom: 3") {
		t.Errorf("String() = %s", cfg.String())
	}
}
