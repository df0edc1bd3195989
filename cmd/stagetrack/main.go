// Command stagetrack is the voice-tracking teleprompter server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tightfive/stagetrack/internal/config"
	"github.com/tightfive/stagetrack/internal/observe"
	"github.com/tightfive/stagetrack/internal/server"
	"github.com/tightfive/stagetrack/pkg/provider/stt"
	"github.com/tightfive/stagetrack/pkg/provider/stt/deepgram"
	sttmock "github.com/tightfive/stagetrack/pkg/provider/stt/mock"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// shutdownTimeout bounds telemetry flushing at exit.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "stagetrack: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "stagetrack: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("stagetrack starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry providers ───────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Speech recognition provider ───────────────────────────────────────────
	sttProvider, err := buildSTTProvider(cfg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(server.Options{
		Config: cfg,
		STT:    sttProvider,
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildSTTProvider instantiates the configured recognizer. An empty
// provider name is valid: sessions then track on client-supplied
// transcripts only.
func buildSTTProvider(cfg *config.Config) (stt.Provider, error) {
	switch cfg.STT.Provider {
	case "":
		return nil, nil

	case "deepgram":
		var opts []deepgram.Option
		if cfg.STT.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.STT.Model))
		}
		if cfg.STT.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.STT.Language))
		}
		if cfg.STT.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(cfg.STT.BaseURL))
		}
		if cfg.Audio.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(cfg.Audio.SampleRate))
		}
		p, err := deepgram.New(cfg.STT.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("provider created", "kind", "stt", "name", "deepgram", "model", cfg.STT.Model)
		return p, nil

	case "mock":
		// Local development recognizer: accepts audio, emits nothing.
		slog.Warn("using the mock stt provider; no transcripts will be produced")
		return &sttmock.Provider{}, nil

	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
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
