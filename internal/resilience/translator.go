package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

// Translator guards a translate.Translator with a [CircuitBreaker]. Context
// cancellation is passed through without counting as a backend failure;
// deadline expiry counts.
type Translator struct {
	inner   translate.Translator
	breaker *CircuitBreaker
}

var _ translate.Translator = (*Translator)(nil)

// NewTranslator wraps inner with a breaker built from cfg.
func NewTranslator(inner translate.Translator, cfg CircuitBreakerConfig) *Translator {
	if cfg.Name == "" {
		cfg.Name = "translator"
	}
	return &Translator{inner: inner, breaker: NewCircuitBreaker(cfg)}
}

// Translate implements translate.Translator. It returns [ErrCircuitOpen]
// without calling the backend while the breaker is open.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	var out string
	var callErr error
	err := t.breaker.Execute(func() error {
		out, callErr = t.inner.Translate(ctx, text)
		if callErr != nil && (errors.Is(callErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return "", err
	}
	if callErr != nil {
		return "", callErr
	}
	return out, nil
}

// State reports the breaker state.
func (t *Translator) State() State { return t.breaker.State() }
