// Package mock provides a test double for translate.Translator.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Func, if non-nil, produces the result. Otherwise Translate returns
	// Prefix+text, Err.
	Func func(ctx context.Context, text string) (string, error)

	// Prefix is prepended to the input when Func is nil.
	Prefix string

	// Err, if non-nil, is returned when Func is nil.
	Err error

	// Block, if non-nil, makes Translate wait until it is closed or ctx is done.
	Block chan struct{}

	calls []string
}

// Translate records the call and returns the configured result.
func (m *Translator) Translate(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	fn, prefix, err, block := m.Func, m.Prefix, m.Err, m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return "", err
	}
	return prefix + text, nil
}

// Calls returns the texts passed to Translate in call order.
func (m *Translator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var _ translate.Translator = (*Translator)(nil)
