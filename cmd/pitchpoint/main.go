// Command pitchpoint is a terminal client for practising sales calls
// against a simulated prospect. It creates a session on the backend,
// joins the realtime channel, plays the prospect's replies and captures
// the operator's push-to-talk speech.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kevinxygu/pitchpoint/internal/backend"
	"github.com/Kevinxygu/pitchpoint/internal/channel"
	"github.com/Kevinxygu/pitchpoint/internal/config"
	"github.com/Kevinxygu/pitchpoint/internal/observe"
	"github.com/Kevinxygu/pitchpoint/internal/session"
	opusout "github.com/Kevinxygu/pitchpoint/pkg/audioout/opus"
	"github.com/Kevinxygu/pitchpoint/pkg/call"
	"github.com/Kevinxygu/pitchpoint/pkg/capture/deepgram"
	"github.com/Kevinxygu/pitchpoint/pkg/media/miniaudio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	personaPath := flag.String("persona", "", "path to a YAML persona file (built-in demo persona when empty)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitchpoint: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("pitchpoint starting",
		"config", *configPath,
		"backend", cfg.Backend.BaseURL,
		"log_level", cfg.LogLevel,
	)

	if cfg.Capture.APIKey == "" {
		fmt.Fprintf(os.Stderr, "pitchpoint: no Deepgram API key configured — set capture.api_key or %s\n", config.DeepgramKeyEnv)
		return 1
	}

	persona, err := loadPersona(*personaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitchpoint: %v\n", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "pitchpoint",
		MetricsAddr: cfg.MetricsAddr,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio devices ─────────────────────────────────────────────────────────
	mic, err := miniaudio.NewDevice(miniaudio.WithSampleRate(cfg.Capture.SampleRate))
	if err != nil {
		slog.Error("failed to open microphone backend", "err", err)
		return 1
	}
	defer mic.Close()

	player, err := opusout.NewPlayer()
	if err != nil {
		slog.Error("failed to open playback backend", "err", err)
		return 1
	}
	defer player.Close()

	// ── Capture engine ────────────────────────────────────────────────────────
	capturer, err := deepgram.New(cfg.Capture.APIKey, mic,
		deepgram.WithLanguage(cfg.Capture.Language),
		deepgram.WithSampleRate(cfg.Capture.SampleRate),
	)
	if err != nil {
		slog.Error("failed to create capture engine", "err", err)
		return 1
	}

	// ── Realtime channel ──────────────────────────────────────────────────────
	ch, err := channel.New(channel.Config{
		BaseURL:           cfg.Backend.BaseURL,
		ReconnectAttempts: cfg.Channel.ReconnectAttempts,
		ReconnectDelay:    cfg.Channel.ReconnectDelay,
	})
	if err != nil {
		slog.Error("failed to create realtime channel", "err", err)
		return 1
	}

	printStartupSummary(cfg, persona)

	// ── Session ───────────────────────────────────────────────────────────────
	handoff := session.NewHandoff()
	orch := session.New(session.Config{
		Persona:         persona,
		Creator:         backend.NewClient(cfg.Backend.BaseURL),
		Channel:         ch,
		Capturer:        capturer,
		Output:          player,
		Handoff:         handoff,
		PlaybackTimeout: cfg.Playback.Timeout,
		Metrics:         metrics,
		Callbacks: session.Callbacks{
			OnConnectionState: func(s call.ConnectionState) {
				slog.Info("connection state", "state", s)
			},
			OnCaptureState: func(s call.CaptureState) {
				if s == call.CaptureListening {
					fmt.Println("… listening (press Enter to stop)")
				}
			},
			OnTranscript: func(e call.TranscriptEntry) {
				name := "You"
				if e.Speaker == call.SpeakerAgent {
					name = persona.Name
				}
				fmt.Printf("%s: %s\n", name, e.Text)
			},
			OnError: func(err error) {
				slog.Warn("session error", "kind", session.KindOf(err), "err", err)
			},
		},
	})

	if err := orch.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	fmt.Println("call connected — press Enter to talk, Enter again to stop, q+Enter to hang up")

	// ── Push-to-talk loop ─────────────────────────────────────────────────────
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	talking := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || line == "q" || line == "quit" {
				break loop
			}
			if talking {
				orch.ReleaseTalk()
			} else {
				orch.PressToTalk()
			}
			talking = !talking
		}
	}

	// ── Hang up ───────────────────────────────────────────────────────────────
	result := orch.End()
	fmt.Println()
	fmt.Println("call ended after", result.Duration.Round(time.Second))
	if result.Transcript != "" {
		fmt.Println()
		fmt.Println(result.Transcript)
	}
	return 0
}

// defaultPersona is the built-in demo prospect used when no persona file
// is given.
func defaultPersona() *call.Persona {
	return &call.Persona{
		Name:        "Sam Carter",
		Role:        "VP of Operations",
		Company:     "Northwind Logistics",
		Personality: "skeptical, busy, warms up to concrete numbers",
		Objective:   "book a follow-up demo",
		Difficulty:  "medium",
		Background:  "evaluating routing software after a rough quarter",
	}
}

// loadPersona reads a YAML persona file, falling back to the built-in
// demo persona when path is empty.
func loadPersona(path string) (*call.Persona, error) {
	if path == "" {
		return defaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona %q: %w", path, err)
	}
	var p call.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %q: %w", path, err)
	}
	if p.Name == "" {
		return nil, errors.New("persona file must set a name")
	}
	return &p, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, persona *call.Persona) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Pitchpoint — call setup        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Backend", cfg.Backend.BaseURL)
	printRow("Prospect", persona.Name)
	printRow("Role", persona.Role)
	printRow("Company", persona.Company)
	printRow("Difficulty", persona.Difficulty)
	printRow("Language", cfg.Capture.Language)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(not set)"
	}
	if len(value) > 20 {
		value = value[:17] + "…"
	}
	fmt.Printf("║  %-12s : %-20s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
