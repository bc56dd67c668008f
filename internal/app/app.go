// Package app wires every livecards subsystem into one running application
// for a single Douyin live room.
//
// App owns the full process lifecycle: New resolves providers, constructs
// the session controller and health surface, and Run drives the session
// until the context is cancelled. Shutdown tears everything down in order.
//
// For testing, inject the session controller or other subsystems via
// functional options (WithController, WithMetrics, WithSessionIndex). When
// an option is not provided, New builds the real implementation from cfg.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/zitemo/livecards/internal/config"
	"github.com/zitemo/livecards/internal/health"
	"github.com/zitemo/livecards/internal/observe"
	"github.com/zitemo/livecards/internal/persist/postgres"
	"github.com/zitemo/livecards/internal/relay"
	relaymock "github.com/zitemo/livecards/internal/relay/mock"
	"github.com/zitemo/livecards/internal/resilience"
	"github.com/zitemo/livecards/internal/session"
	"github.com/zitemo/livecards/pkg/provider/asr"
	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/types"
)

// Providers holds one interface value per registry-resolved provider slot.
// Populated by main.go via [config.Registry]; nil fields are treated as
// "not configured" and fail New with a descriptive error, since every slot
// here is required for a session to run.
type Providers struct {
	ASR         asr.Recognizer
	AnalysisLLM llm.Provider
	AnswerLLM   llm.Provider
	Credential  relay.CredentialProvider
}

// App owns the session controller, health surface, and (optional) Postgres
// session index for one running livecards process.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics      *observe.Metrics
	sessionIndex *postgres.SessionIndex
	controller   *session.Controller
	health       *health.Handler
	httpServer   *http.Server

	// closers are called in order during Shutdown, after the session has
	// been stopped.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithController injects a session controller instead of building one from
// the registry-resolved providers.
func WithController(c *session.Controller) Option {
	return func(a *App) { a.controller = c }
}

// WithMetrics injects a metrics instance instead of creating one from the
// global OTel meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionIndex injects a Postgres session index instead of connecting
// to cfg.Persist.PostgresDSN.
func WithSessionIndex(idx *postgres.SessionIndex) Option {
	return func(a *App) { a.sessionIndex = idx }
}

// New wires an App together: resolves the metrics instance, optionally
// connects the Postgres session index, wraps the registry-resolved ASR/LLM
// providers in resilience.FallbackGroup circuit breakers, and constructs
// the session controller and health surface.
//
// New performs all initialisation synchronously; it does not start a
// session — that happens in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ────────────────────────────────────────────────────────
	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	// ── 2. Postgres session index (optional) ─────────────────────────────
	if a.sessionIndex == nil && cfg.Persist.PostgresDSN != "" {
		idx, err := postgres.NewSessionIndex(ctx, cfg.Persist.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: init session index: %w", err)
		}
		a.sessionIndex = idx
		a.closers = append(a.closers, func() error { idx.Close(); return nil })
	}

	// ── 3. Session controller ─────────────────────────────────────────────
	if a.controller == nil {
		deps, err := a.buildSessionDeps()
		if err != nil {
			return nil, fmt.Errorf("app: build session deps: %w", err)
		}
		a.controller = session.New(deps)
	}

	// ── 4. Health surface ──────────────────────────────────────────────────
	a.health = health.New(a.statusSnapshot, a.readinessCheckers()...)

	// ── 5. HTTP server (health + Prometheus scrape endpoint) ─────────────
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		a.health.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())
		a.httpServer = &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	}

	return a, nil
}

// buildSessionDeps wraps the registry-resolved ASR and LLM providers in
// resilience.FallbackGroup circuit breakers (A3), so a string of timeouts
// against either trips the breaker instead of stalling every subsequent
// pipeline tick behind the same dead dependency, and assembles them into
// the session.Deps the controller is constructed with.
func (a *App) buildSessionDeps() (session.Deps, error) {
	if a.providers == nil {
		return session.Deps{}, errors.New("app: no providers configured")
	}
	if a.providers.ASR == nil {
		return session.Deps{}, errors.New("app: providers.asr is required")
	}
	if a.providers.AnalysisLLM == nil {
		return session.Deps{}, errors.New("app: providers.analysis_llm is required")
	}
	if a.providers.AnswerLLM == nil {
		return session.Deps{}, errors.New("app: providers.answer_llm is required")
	}
	if a.providers.Credential == nil {
		return session.Deps{}, errors.New("app: room.credential is required")
	}

	asrFB := resilience.NewASRFallback(a.providers.ASR, a.cfg.Providers.ASR.Name, resilience.FallbackConfig{})
	analysisFB := resilience.NewLLMFallback(a.providers.AnalysisLLM, a.cfg.Providers.AnalysisLLM.Name, resilience.FallbackConfig{})
	answerFB := resilience.NewLLMFallback(a.providers.AnswerLLM, a.cfg.Providers.AnswerLLM.Name, resilience.FallbackConfig{})

	return session.Deps{
		Recognizer:  asrFB,
		AnalysisLLM: analysisFB,
		AnswerLLM:   answerFB,
		Credential:  a.providers.Credential,
		// The real Douyin wire-format decoder is out of scope (spec §9);
		// the mock decoder stands in until a concrete implementation
		// lands, mirroring the placeholder websocket URL template in
		// internal/session.Controller.
		Decoder:      relaymock.NewFrameDecoder(),
		SessionIndex: a.sessionIndex,
		Metrics:      a.metrics,
	}, nil
}

// readinessCheckers builds the /readyz checks: that required providers were
// resolved, and that the persist root directory exists and is writable.
func (a *App) readinessCheckers() []health.Checker {
	checkers := []health.Checker{
		{Name: "asr", Check: a.checkProvider("asr", a.providers != nil && a.providers.ASR != nil)},
		{Name: "analysis_llm", Check: a.checkProvider("analysis_llm", a.providers != nil && a.providers.AnalysisLLM != nil)},
		{Name: "answer_llm", Check: a.checkProvider("answer_llm", a.providers != nil && a.providers.AnswerLLM != nil)},
		{Name: "credential", Check: a.checkProvider("credential", a.providers != nil && a.providers.Credential != nil)},
	}
	if a.cfg.Persist.OutputDir != "" {
		checkers = append(checkers, health.Checker{Name: "persist_root", Check: a.checkPersistRoot})
	}
	return checkers
}

func (a *App) checkProvider(name string, ok bool) func(context.Context) error {
	return func(context.Context) error {
		if !ok {
			return fmt.Errorf("%s provider not resolved", name)
		}
		return nil
	}
}

func (a *App) checkPersistRoot(_ context.Context) error {
	info, err := os.Stat(a.cfg.Persist.OutputDir)
	if err != nil {
		return fmt.Errorf("persist.output_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("persist.output_dir %q is not a directory", a.cfg.Persist.OutputDir)
	}
	f, err := os.CreateTemp(a.cfg.Persist.OutputDir, ".readyz-*")
	if err != nil {
		return fmt.Errorf("persist.output_dir %q is not writable: %w", a.cfg.Persist.OutputDir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// statusSnapshot is the health.StatusFunc wired to /statusz.
func (a *App) statusSnapshot() any {
	return a.controller.Status()
}

// Controller returns the session controller, for callers that drive
// start/stop/generate_answers/update_advanced directly (e.g. a future
// administrative CLI).
func (a *App) Controller() *session.Controller { return a.controller }

// Health returns the health handler backing /healthz, /readyz, /statusz.
func (a *App) Health() *health.Handler { return a.health }

// ─── Run ─────────────────────────────────────────────────────────────────

// Run starts the health HTTP server (if configured), starts the configured
// room's session, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.httpServer != nil {
		go func() {
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	liveURL := a.cfg.Room.LiveURL
	if liveURL == "" {
		liveURL = a.cfg.Room.RoomID
	}
	if err := a.controller.Start(ctx, liveURL, *a.cfg); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	slog.Info("app running", "room_id", a.cfg.Room.RoomID, "listen_addr", a.cfg.Server.ListenAddr)
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────

// Shutdown stops the active session, then the health server, then runs the
// remaining closers in order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.controller.Status().State == types.StateRunning {
			if err := a.controller.Stop(ctx); err != nil {
				slog.Warn("session stop error", "error", err)
			}
		}

		if a.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("health server shutdown error", "error", err)
			}
			cancel()
		}

		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
