// Command livetutor runs a live spoken conversation with a language tutor.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/livetutor/internal/app"
	"github.com/MrWong99/livetutor/internal/config"
	"github.com/MrWong99/livetutor/internal/live"
	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/internal/transcript"
	"github.com/MrWong99/livetutor/pkg/device/portaudio"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
	"github.com/MrWong99/livetutor/pkg/provider/live/gemini"
	"github.com/MrWong99/livetutor/pkg/provider/llm"
	"github.com/MrWong99/livetutor/pkg/provider/llm/anyllm"
	"github.com/MrWong99/livetutor/pkg/provider/llm/openai"
	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	topicID := flag.String("topic", "", "topic to start (default: first topic in the config)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livetutor: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livetutor: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	slog.SetDefault(newLogger(cfg.Server.LogLevel, levelVar))

	slog.Info("livetutor starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "livetutor"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithConfigWatch(*configPath, levelVar))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Conversation ──────────────────────────────────────────────────────────
	events, unsubscribe := application.Sessions().Subscribe()
	defer unsubscribe()
	go printEvents(events, stop)

	id := *topicID
	if id == "" {
		id = cfg.Topics[0].ID
	}
	if _, err := application.Sessions().StartTopic(ctx, id); err != nil {
		slog.Error("failed to start session", "topic", id, "err", err)
		return 1
	}

	slog.Info("session running, press Ctrl+C to hang up", "topic", id)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// printEvents writes finalized entries and their translations to stdout. When
// the session ends on its own, hangup cancels the run context.
func printEvents(events <-chan live.Event, hangup context.CancelFunc) {
	for ev := range events {
		switch ev.Kind {
		case live.EventEntry:
			fmt.Printf("%s: %s\n", speaker(ev.Entry.Role), ev.Entry.Text)
		case live.EventTranslation:
			if ev.Entry.Translated {
				fmt.Printf("%s  ↳ %s\n", speaker(ev.Entry.Role), ev.Entry.Translation)
			}
		case live.EventEnded:
			if ev.Err != nil {
				slog.Error("session ended", "reason", ev.Reason, "err", ev.Err)
			} else {
				slog.Info("session ended", "reason", ev.Reason)
			}
			if ev.Reason != live.ReasonUser {
				hangup()
			}
		}
	}
}

func speaker(r transcript.Role) string {
	if r == transcript.RoleUser {
		return "you"
	}
	return "tutor"
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with livetutor. Used for startup logging.
var builtinProviders = map[string][]string{
	"live":  {"gemini-live"},
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"audio": {"portaudio"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (providerlive.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("gemini-live: api_key is required")
		}
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, gemini.WithVoice(voice))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to the chat completions API directly.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(ac config.AudioConfig) (config.Devices, error) {
		return config.Devices{
			Microphone: &portaudio.Microphone{DeviceName: ac.InputDevice},
			Speaker:    &portaudio.Speaker{DeviceName: ac.OutputDevice},
		}, nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	liveProvider, err := reg.CreateLive(cfg.Providers.Live)
	if err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	ps.Live = liveProvider
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	if entry := cfg.Providers.Translate; entry.Name != "" {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", entry.Name, err)
		}
		lang := optString(entry.Options, "target_language")
		if lang == "" {
			lang = cfg.Translation.TargetLanguage
		}
		ps.Translator = translate.NewLLM(p, translate.WithTargetLanguage(lang))
		slog.Info("provider created", "kind", "translate", "name", entry.Name, "target_language", lang)
	}

	devices, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	ps.Microphone = devices.Microphone
	ps.Speaker = devices.Speaker
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        livetutor startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printProvider("Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider("Audio", cfg.Audio.Backend, "")
	fmt.Printf("║  Target lang     : %-19s ║\n", cfg.Translation.TargetLanguage)
	fmt.Printf("║  Topics          : %-19d ║\n", len(cfg.Topics))
	if cfg.Journal.PostgresDSN != "" {
		fmt.Printf("║  Journal         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Journal         : %-19s ║\n", "(memory)")
	}
	if cfg.Recording.Dir != "" {
		fmt.Printf("║  Recording       : %-19s ║\n", truncate(cfg.Recording.Dir))
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The level lives in levelVar so a
// config reload can change it at runtime.
func newLogger(level config.LogLevel, levelVar *slog.LevelVar) *slog.Logger {
	levelVar.Set(app.SlogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
