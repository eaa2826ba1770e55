// Package journal persists the transcripts of live sessions so learners can
// review past conversations.
//
// A [Store] receives every finalized entry once and each translation patch at
// most once. Two implementations exist: [Memory] for single-process use and
// tests, and the PostgreSQL store in the postgres subpackage. Journal failures
// never end a session; callers log them and carry on.
package journal

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/livetutor/internal/transcript"
)

// ErrNotFound is returned by SetTranslation when the session has no
// untranslated entry with the given ID.
var ErrNotFound = errors.New("journal: entry not found")

// SearchOpts narrows a [Store.Search]. Zero values mean "no filter".
type SearchOpts struct {
	SessionID string
	Role      transcript.Role

	// Limit caps the number of results. Zero returns every match.
	Limit int
}

// Store is a transcript journal. Implementations must be safe for concurrent use.
type Store interface {
	// Append records e under sessionID. Appending an entry ID twice is a no-op.
	Append(ctx context.Context, sessionID string, e transcript.Entry) error

	// SetTranslation attaches a translation to a previously appended entry.
	SetTranslation(ctx context.Context, sessionID, entryID, translation string) error

	// Entries returns a session's entries in the order they were appended.
	Entries(ctx context.Context, sessionID string) ([]transcript.Entry, error)

	// Search returns entries whose original text contains query, oldest first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]transcript.Entry, error)
}

// Memory is an in-process [Store].
type Memory struct {
	mu       sync.Mutex
	order    []record
	index    map[string]int // "<session>/<entry>" → position in order
	sessions map[string][]int
}

type record struct {
	sessionID string
	entry     transcript.Entry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		index:    make(map[string]int),
		sessions: make(map[string][]int),
	}
}

func key(sessionID, entryID string) string { return sessionID + "/" + entryID }

// Append implements [Store].
func (m *Memory) Append(_ context.Context, sessionID string, e transcript.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(sessionID, e.ID)
	if _, ok := m.index[k]; ok {
		return nil
	}
	m.index[k] = len(m.order)
	m.sessions[sessionID] = append(m.sessions[sessionID], len(m.order))
	m.order = append(m.order, record{sessionID: sessionID, entry: e})
	return nil
}

// SetTranslation implements [Store].
func (m *Memory) SetTranslation(_ context.Context, sessionID, entryID, translation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[key(sessionID, entryID)]
	if !ok || m.order[i].entry.Translated {
		return ErrNotFound
	}
	m.order[i].entry.Translation = translation
	m.order[i].entry.Translated = true
	return nil
}

// Entries implements [Store].
func (m *Memory) Entries(_ context.Context, sessionID string) ([]transcript.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcript.Entry, 0, len(m.sessions[sessionID]))
	for _, i := range m.sessions[sessionID] {
		out = append(out, m.order[i].entry)
	}
	return out, nil
}

// Search implements [Store] with a case-insensitive substring match.
func (m *Memory) Search(_ context.Context, query string, opts SearchOpts) ([]transcript.Entry, error) {
	q := strings.ToLower(query)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []transcript.Entry{}
	for _, r := range m.order {
		if opts.SessionID != "" && r.sessionID != opts.SessionID {
			continue
		}
		if opts.Role != "" && r.entry.Role != opts.Role {
			continue
		}
		if !strings.Contains(strings.ToLower(r.entry.Text), q) {
			continue
		}
		out = append(out, r.entry)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Sessions returns the IDs of every session with at least one entry, sorted.
func (m *Memory) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
