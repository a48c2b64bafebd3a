// Package config provides the configuration schema and loader for the
// pitchpoint call client.
package config

import "time"

// DefaultBackendURL is used when no backend address is configured.
const DefaultBackendURL = "http://localhost:8080"

// BackendURLEnv overrides the configured backend base URL when set.
const BackendURLEnv = "PITCHPOINT_BACKEND_URL"

// DeepgramKeyEnv overrides the configured Deepgram API key when set.
const DeepgramKeyEnv = "DEEPGRAM_API_KEY"

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the pitchpoint client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Channel  ChannelConfig  `yaml:"channel"`
	Playback PlaybackConfig `yaml:"playback"`
	Capture  CaptureConfig  `yaml:"capture"`
	LogLevel LogLevel       `yaml:"log_level"`

	// MetricsAddr, when set, serves Prometheus metrics on
	// http://<addr>/metrics. Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// BackendConfig locates the call backend.
type BackendConfig struct {
	// BaseURL is the backend base address for both the session-creation
	// API and the realtime channel endpoint. Defaults to
	// [DefaultBackendURL]; the PITCHPOINT_BACKEND_URL environment
	// variable takes precedence over both.
	BaseURL string `yaml:"base_url"`
}

// ChannelConfig tunes the realtime channel's reconnection policy.
type ChannelConfig struct {
	// ReconnectAttempts bounds automatic reconnection. Defaults to 5 if zero.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// ReconnectDelay is the fixed delay between attempts. Defaults to 1s if zero.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// PlaybackConfig tunes the audio playback queue.
type PlaybackConfig struct {
	// Timeout bounds a single segment's playback before it is abandoned.
	// Defaults to 30s if zero.
	Timeout time.Duration `yaml:"timeout"`
}

// CaptureConfig tunes the speech capture engine.
type CaptureConfig struct {
	// APIKey authenticates against the Deepgram streaming API. The
	// DEEPGRAM_API_KEY environment variable takes precedence. Required
	// to start a call.
	APIKey string `yaml:"api_key"`

	// Language is the BCP-47 recognition language. Defaults to "en-US".
	Language string `yaml:"language"`

	// SampleRate is the microphone sample rate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`
}

// withDefaults returns cfg with zero values replaced by defaults.
func (c *Config) withDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	if c.Channel.ReconnectAttempts <= 0 {
		c.Channel.ReconnectAttempts = 5
	}
	if c.Channel.ReconnectDelay <= 0 {
		c.Channel.ReconnectDelay = time.Second
	}
	if c.Playback.Timeout <= 0 {
		c.Playback.Timeout = 30 * time.Second
	}
	if c.Capture.Language == "" {
		c.Capture.Language = "en-US"
	}
	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = 16000
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
}
