package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":      {"gemini-live"},
	"translate": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"audio":     {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = DefaultCaptureRate
	}
	if cfg.Audio.PlaybackRate == 0 {
		cfg.Audio.PlaybackRate = DefaultPlaybackRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Translation.TargetLanguage == "" {
		cfg.Translation.TargetLanguage = DefaultTargetLanguage
	}
	if cfg.Translation.Timeout == 0 {
		cfg.Translation.Timeout = DefaultTranslateTimeout
	}
	if cfg.Translation.MaxFailures == 0 {
		cfg.Translation.MaxFailures = DefaultMaxFailures
	}
	if cfg.Translation.ResetTimeout == 0 {
		cfg.Translation.ResetTimeout = DefaultResetTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if cfg.Providers.Live.Name == "" {
		errs = append(errs, errors.New("providers.live.name is required"))
	}
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	if cfg.Providers.Translate.Name != "" && cfg.Providers.Translate.Model == "" {
		errs = append(errs, errors.New("providers.translate.model is required when providers.translate.name is set"))
	}
	if cfg.Providers.Translate.Name == "" {
		slog.Warn("providers.translate is not configured; transcript entries will not be translated")
	}

	// Audio
	validateProviderName("audio", cfg.Audio.Backend)
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must be positive", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must be positive", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Translation
	if cfg.Translation.Timeout < 0 {
		errs = append(errs, fmt.Errorf("translation.timeout %s must not be negative", cfg.Translation.Timeout))
	}
	if cfg.Translation.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("translation.max_failures %d must not be negative", cfg.Translation.MaxFailures))
	}
	if cfg.Translation.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("translation.reset_timeout %s must not be negative", cfg.Translation.ResetTimeout))
	}

	// Journal
	if cfg.Journal.PostgresDSN == "" {
		slog.Debug("journal.postgres_dsn is empty; transcripts are kept in memory only")
	}

	// Topics
	if len(cfg.Topics) == 0 {
		errs = append(errs, errors.New("topics: at least one topic is required"))
	}
	seen := make(map[string]int, len(cfg.Topics))
	for i, t := range cfg.Topics {
		prefix := fmt.Sprintf("topics[%d]", i)
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[t.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of topics[%d]", prefix, t.ID, prev))
			}
			seen[t.ID] = i
		}
		if t.Title == "" && t.Instruction == "" {
			errs = append(errs, fmt.Errorf("%s: title or instruction is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
