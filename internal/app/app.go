// Package app wires the live tutor's subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the journal and wraps
// the translator, Run serves health and metrics and hot-reloads the topic
// catalogue, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithJournal,
// WithClips, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livetutor/internal/config"
	"github.com/MrWong99/livetutor/internal/health"
	"github.com/MrWong99/livetutor/internal/journal"
	"github.com/MrWong99/livetutor/internal/journal/postgres"
	"github.com/MrWong99/livetutor/internal/live"
	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/internal/resilience"
	"github.com/MrWong99/livetutor/pkg/device"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

// shutdownTimeout bounds the HTTP server drain when Run's context ends.
const shutdownTimeout = 5 * time.Second

// Providers holds the collaborators built by main.go via the config registry.
// Translator may be nil.
type Providers struct {
	Live       providerlive.Provider
	Translator translate.Translator
	Microphone device.Microphone
	Speaker    device.Speaker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	journal    journal.Store
	clips      live.ClipRecorder
	translator translate.Translator
	sessions   *SessionManager
	health     *health.Handler
	checkers   []health.Checker
	metrics    *observe.Metrics

	configPath string
	levelVar   *slog.LevelVar

	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects a transcript journal instead of creating one from config.
func WithJournal(j journal.Store) Option {
	return func(a *App) { a.journal = j }
}

// WithClips injects a clip recorder instead of creating one from config.
func WithClips(c live.ClipRecorder) Option {
	return func(a *App) { a.clips = c }
}

// WithMetrics sets the metrics instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch makes Run poll path and apply topic and log level changes.
// levelVar, if non-nil, is updated when the log level changes.
func WithConfigWatch(path string, levelVar *slog.LevelVar) Option {
	return func(a *App) {
		a.configPath = path
		a.levelVar = levelVar
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil || providers.Microphone == nil || providers.Speaker == nil {
		return nil, errors.New("app: live provider, microphone and speaker are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Clip recording ────────────────────────────────────────────────
	if err := a.initClips(); err != nil {
		return nil, fmt.Errorf("app: init clips: %w", err)
	}

	// ── 3. Translation ───────────────────────────────────────────────────
	a.initTranslator()

	// ── 4. Sessions + health ─────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Microphone:  providers.Microphone,
		Speaker:     providers.Speaker,
		Provider:    providers.Live,
		Translator:  a.translator,
		Journal:     a.journal,
		Clips:       a.clips,
		Audio:       cfg.Audio,
		Translation: cfg.Translation,
		Topics:      cfg.Topics,
		Metrics:     a.metrics,
	})
	a.health = health.New(a.checkers...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal connects the PostgreSQL journal, or keeps entries in memory
// when no DSN is configured.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		if p, ok := a.journal.(health.Pinger); ok {
			a.checkers = append(a.checkers, health.PingCheck("journal", p))
		}
		return nil
	}

	dsn := a.cfg.Journal.PostgresDSN
	if dsn == "" {
		a.journal = journal.NewMemory()
		slog.Info("journal kept in memory")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.journal = store
	a.checkers = append(a.checkers, health.PingCheck("journal", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initClips creates the clip writer when a recording directory is set.
func (a *App) initClips() error {
	if a.clips != nil || a.cfg.Recording.Dir == "" {
		return nil
	}
	w, err := journal.NewClipWriter(a.cfg.Recording.Dir)
	if err != nil {
		return err
	}
	a.clips = w
	return nil
}

// initTranslator guards the configured translator with a circuit breaker.
func (a *App) initTranslator() {
	if a.providers.Translator == nil {
		slog.Info("translation disabled")
		return
	}
	tr := resilience.NewTranslator(a.providers.Translator, resilience.CircuitBreakerConfig{
		Name:         "translation",
		MaxFailures:  a.cfg.Translation.MaxFailures,
		ResetTimeout: a.cfg.Translation.ResetTimeout,
	})
	a.translator = tr
	a.checkers = append(a.checkers, health.CircuitCheck("translation", func() string {
		return tr.State().String()
	}))
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Journal returns the transcript journal.
func (a *App) Journal() journal.Store { return a.journal }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving health probes, metrics and the
// session endpoints.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	mux.HandleFunc("GET /session", a.handleSession)
	mux.HandleFunc("POST /session", a.handleStartSession)
	mux.HandleFunc("DELETE /session", a.handleStopSession)
	mux.HandleFunc("GET /session/transcript", a.handleTranscript)
	mux.HandleFunc("GET /journal/{session}", a.handleJournal)
	mux.HandleFunc("GET /topics", a.handleTopics)
	return observe.Middleware(a.metrics)(mux)
}

// Run serves HTTP on the configured listen address and watches the config
// file until ctx is cancelled. The running session is ended when Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.mu.Lock()
		a.listener = ln
		a.mu.Unlock()

		srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("http server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			w.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := a.sessions.Stop(stopCtx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}
		return nil
	})

	slog.Info("app running", "topics", len(a.sessions.Topics()))
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Addr returns the HTTP listener address once Run has started it, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// applyConfig applies the hot-reloadable parts of a config change.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if len(d.Added)+len(d.Removed)+len(d.Changed) > 0 {
		a.sessions.SetTopics(new.Topics)
		slog.Info("topic catalogue reloaded",
			"added", d.Added,
			"removed", d.Removed,
			"changed", d.Changed,
		)
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
}

// SlogLevel maps a config log level to its slog equivalent. Unknown levels
// map to Info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the running session and tears down all subsystems in order.
// It respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
