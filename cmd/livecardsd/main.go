// Command livecardsd is the main entry point for the livecards analytics
// daemon: it monitors a single Douyin live room, fuses ASR transcripts with
// chat/gift/like events into rolling analysis cards, and persists the
// resulting artifacts.
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

	"github.com/zitemo/livecards/internal/app"
	"github.com/zitemo/livecards/internal/config"
	"github.com/zitemo/livecards/internal/observe"
	"github.com/zitemo/livecards/internal/relay"
	relaymock "github.com/zitemo/livecards/internal/relay/mock"
	"github.com/zitemo/livecards/internal/session"
	"github.com/zitemo/livecards/pkg/provider/asr"
	asrmock "github.com/zitemo/livecards/pkg/provider/asr/mock"
	"github.com/zitemo/livecards/pkg/provider/asr/whisper"
	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/provider/llm/anthropic"
	llmmock "github.com/zitemo/livecards/pkg/provider/llm/mock"
	"github.com/zitemo/livecards/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livecardsd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livecardsd: %v\n", err)
		}
		return 1
	}

	// ── Logger ──────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("livecardsd starting",
		"config", *configPath,
		"room_id", cfg.Room.RoomID,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "livecardsd",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ───────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ─────────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Application wiring ──────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot-reload ────────────────────────────────────────────────────
	// Only the session's live-tunable knobs (vad/agc/diarize) can be applied
	// without a restart; everything else (room, providers, persist root) is
	// fixed for the process lifetime and a changed value there is logged but
	// otherwise ignored until the next restart.
	watcher, err := config.NewWatcher(*configPath, onConfigReload(application))
	if err != nil {
		slog.Warn("config hot-reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

// ── Provider wiring ────────────────────────────────────────────────────────

// registerBuiltinProviders registers every provider implementation that
// ships with livecards. Real-world rooms use whisper-native/openai/
// anthropic; "mock" stands in for the Douyin credential/websocket surface,
// since the real wire protocol is out of scope.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterASR("whisper-native", func(e config.ProviderEntry) (asr.Recognizer, error) {
		return whisper.New(e.Model)
	})
	reg.RegisterASR("mock", func(config.ProviderEntry) (asr.Recognizer, error) {
		return &asrmock.Recognizer{}, nil
	})

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterLLM("anthropic", func(e config.ProviderEntry) (llm.Provider, error) {
		return anthropic.New(e.APIKey, e.Model)
	})
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	reg.RegisterCredential("mock", func(config.ProviderEntry) (relay.CredentialProvider, error) {
		return &relaymock.CredentialProvider{}, nil
	})
}

// buildProviders instantiates every provider named in cfg using the
// registry and returns them in an [app.Providers] struct. Unlike Glyphoxa's
// optional-provider model, every slot here is required: a session cannot
// run without an ASR recognizer, both LLM roles, and a credential signer.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	asrRecognizer, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	ps.ASR = asrRecognizer
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)

	analysisLLM, err := reg.CreateLLM(cfg.Providers.AnalysisLLM)
	if err != nil {
		return nil, fmt.Errorf("create analysis_llm provider %q: %w", cfg.Providers.AnalysisLLM.Name, err)
	}
	ps.AnalysisLLM = analysisLLM
	slog.Info("provider created", "kind", "analysis_llm", "name", cfg.Providers.AnalysisLLM.Name)

	answerLLM, err := reg.CreateLLM(cfg.Providers.AnswerLLM)
	if err != nil {
		return nil, fmt.Errorf("create answer_llm provider %q: %w", cfg.Providers.AnswerLLM.Name, err)
	}
	ps.AnswerLLM = answerLLM
	slog.Info("provider created", "kind", "answer_llm", "name", cfg.Providers.AnswerLLM.Name)

	credential, err := reg.CreateCredential(cfg.Room.Credential)
	if err != nil {
		return nil, fmt.Errorf("create credential provider %q: %w", cfg.Room.Credential.Name, err)
	}
	ps.Credential = credential
	slog.Info("provider created", "kind", "credential", "name", cfg.Room.Credential.Name)

	return ps, nil
}

// ── Hot-reload ────────────────────────────────────────────────────────────────

// onConfigReload builds the config.Watcher callback that applies a changed
// on-disk config's live-tunable fields to the running session via
// UpdateAdvanced. Fields outside AdvancedParams' scope (room, providers,
// persist root, window geometry) require a process restart to take effect.
func onConfigReload(a *app.App) func(old, new *config.Config) {
	return func(_, newCfg *config.Config) {
		params := session.AdvancedParams{
			AGCTargetRMS:     &newCfg.Audio.AGCTargetRMS,
			AGCMaxGain:       &newCfg.Audio.AGCMaxGain,
			VADMinRMS:        &newCfg.VAD.RMSThreshold,
			VADMinSpeechSec:  &newCfg.VAD.MinSpeechSec,
			VADMinSilenceSec: &newCfg.VAD.MinSilenceSec,
			MaxGuestSpeakers: &newCfg.Diarize.MaxGuestSpeakers,
		}
		if err := a.Controller().UpdateAdvanced(params); err != nil {
			slog.Warn("config hot-reload: could not apply updated values", "err", err)
			return
		}
		slog.Info("config hot-reload: applied updated vad/agc/diarize parameters")
	}
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        livecards — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Room ID", cfg.Room.RoomID)
	printField("Live URL", cfg.Room.LiveURL)
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("Analysis LLM", cfg.Providers.AnalysisLLM.Name, cfg.Providers.AnalysisLLM.Model)
	printProvider("Answer LLM", cfg.Providers.AnswerLLM.Name, cfg.Providers.AnswerLLM.Model)
	printProvider("Credential", cfg.Room.Credential.Name, "")
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.Persist.OutputDir != "" {
		printField("Output dir", cfg.Persist.OutputDir)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printField(kind, value)
}

func printField(label, value string) {
	if value == "" {
		value = "(none)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
