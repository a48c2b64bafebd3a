package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReader(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		yaml := `
backend:
  base_url: https://calls.example.com
channel:
  reconnect_attempts: 3
  reconnect_delay: 2s
playback:
  timeout: 45s
capture:
  api_key: dg-test
  language: de-DE
  sample_rate: 48000
log_level: debug
metrics_addr: 127.0.0.1:9465
`
		cfg, err := LoadFromReader(strings.NewReader(yaml))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Backend.BaseURL != "https://calls.example.com" {
			t.Errorf("base_url: got %q", cfg.Backend.BaseURL)
		}
		if cfg.Channel.ReconnectAttempts != 3 || cfg.Channel.ReconnectDelay != 2*time.Second {
			t.Errorf("channel: got %+v", cfg.Channel)
		}
		if cfg.Playback.Timeout != 45*time.Second {
			t.Errorf("playback timeout: got %v", cfg.Playback.Timeout)
		}
		if cfg.Capture.Language != "de-DE" || cfg.Capture.SampleRate != 48000 {
			t.Errorf("capture: got %+v", cfg.Capture)
		}
		if cfg.LogLevel != LogDebug {
			t.Errorf("log level: got %q", cfg.LogLevel)
		}
		if cfg.MetricsAddr != "127.0.0.1:9465" {
			t.Errorf("metrics_addr: got %q", cfg.MetricsAddr)
		}
	})

	t.Run("empty input yields defaults", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Backend.BaseURL != DefaultBackendURL {
			t.Errorf("base_url: got %q, want default", cfg.Backend.BaseURL)
		}
		if cfg.Channel.ReconnectAttempts != 5 || cfg.Channel.ReconnectDelay != time.Second {
			t.Errorf("channel defaults: got %+v", cfg.Channel)
		}
		if cfg.Playback.Timeout != 30*time.Second {
			t.Errorf("playback default: got %v", cfg.Playback.Timeout)
		}
		if cfg.LogLevel != LogInfo {
			t.Errorf("log level default: got %q", cfg.LogLevel)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("bakend:\n  base_url: http://x\n"))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("log_level: loud\n"))
		if err == nil || !strings.Contains(err.Error(), "log_level") {
			t.Fatalf("expected log_level validation error, got %v", err)
		}
	})

	t.Run("relative backend url", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("backend:\n  base_url: localhost:8080\n"))
		if err == nil {
			t.Fatal("expected validation error for non-absolute URL")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Backend.BaseURL != DefaultBackendURL {
			t.Errorf("base_url: got %q, want default", cfg.Backend.BaseURL)
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(BackendURLEnv, "https://override.example.com")
	t.Setenv(DeepgramKeyEnv, "dg-env")

	cfg, err := LoadFromReader(strings.NewReader("backend:\n  base_url: http://file.example.com\ncapture:\n  api_key: dg-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "https://override.example.com" {
		t.Errorf("env override lost: got %q", cfg.Backend.BaseURL)
	}
	if cfg.Capture.APIKey != "dg-env" {
		t.Errorf("env override lost: got %q", cfg.Capture.APIKey)
	}
}
