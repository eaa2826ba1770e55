// Package translate defines the Translator interface used to attach a
// translation to each finalized transcript entry, plus an implementation that
// prompts any llm.Provider.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/livetutor/pkg/provider/llm"
)

// ErrEmptyTranslation is returned when the backend produced no text.
var ErrEmptyTranslation = errors.New("translate: empty translation")

// Translator translates one utterance. Implementations must be safe for
// concurrent use and must honour ctx cancellation.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Option configures an LLM translator.
type Option func(*LLM)

// WithTargetLanguage sets the language translations are written in. Defaults to English.
func WithTargetLanguage(lang string) Option {
	return func(t *LLM) { t.target = lang }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(t *LLM) { t.maxTokens = n }
}

// LLM translates by prompting a completion model.
type LLM struct {
	provider  llm.Provider
	target    string
	maxTokens int
}

var _ Translator = (*LLM)(nil)

// NewLLM returns a Translator backed by p.
func NewLLM(p llm.Provider, opts ...Option) *LLM {
	t := &LLM{
		provider:  p,
		target:    "English",
		maxTokens: 256,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate implements Translator.
func (t *LLM) Translate(ctx context.Context, text string) (string, error) {
	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: t.systemPrompt(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  0.1,
		MaxTokens:    t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyTranslation
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

func (t *LLM) systemPrompt() string {
	return "You translate single utterances from a spoken language lesson into " + t.target +
		". Reply with the translation only, without quotes, notes or alternatives. " +
		"If the utterance is already in " + t.target + ", repeat it unchanged."
}
