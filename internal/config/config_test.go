package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Format != "text" {
		t.Fatalf("expected default format text, got %q", cfg.Format)
	}
	if cfg.RelayInterval != 2*time.Second {
		t.Fatalf("expected default interval 2s, got %s", cfg.RelayInterval)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.Level())
	}
	if cfg.LayoutDir != "" {
		t.Fatalf("expected empty layout dir, got %q", cfg.LayoutDir)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REQSYNC_FORMAT", "json")
	t.Setenv("REQSYNC_LAYOUT_DIR", "/tmp/layout")
	t.Setenv("REQSYNC_RELAY_INTERVAL", "250ms")
	t.Setenv("REQSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Format != "json" || cfg.LayoutDir != "/tmp/layout" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RelayInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.RelayInterval)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.Level())
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("REQSYNC_RELAY_INTERVAL", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"format", "REQSYNC_FORMAT", "yaml", "REQSYNC_FORMAT"},
		{"interval", "REQSYNC_RELAY_INTERVAL", "0s", "REQSYNC_RELAY_INTERVAL"},
		{"level", "REQSYNC_LOG_LEVEL", "loud", "REQSYNC_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}
