// Package transcript assembles the running text record of a live session.
//
// The remote model streams transcript deltas for both sides of the
// conversation. An [Assembler] accumulates them per side and, when the model
// signals the end of its turn, finalizes the accumulated text into immutable
// [Entry] values: the user's line first, then the model's. Each entry can later
// be patched exactly once with a translation, matched by its ID.
//
// An Assembler is owned by a single goroutine (the session's event loop) and
// is not safe for concurrent use.
package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who spoke an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is one finalized utterance.
type Entry struct {
	// ID is "<turnID>-user" or "<turnID>-model".
	ID string

	// TurnID is shared by the user and model entries of one turn.
	TurnID string

	Role Role

	// Text is the trimmed accumulated transcript.
	Text string

	// Translation is set once Translated is true.
	Translation string
	Translated  bool

	// At is when the turn was finalized.
	At time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTurnIDs overrides how turn IDs are generated. Tests only.
func WithTurnIDs(next func() string) Option {
	return func(a *Assembler) { a.newTurnID = next }
}

// WithClock overrides the clock used to stamp entries. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler accumulates transcript deltas and finalizes them into entries.
type Assembler struct {
	user  strings.Builder
	model strings.Builder

	entries []Entry
	byID    map[string]int

	newTurnID func() string
	now       func() time.Time
}

// NewAssembler returns an empty Assembler. Turn IDs are random UUIDs.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		byID:      make(map[string]int),
		newTurnID: uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AppendInput appends a delta of the user's recognised speech.
func (a *Assembler) AppendInput(delta string) { a.user.WriteString(delta) }

// AppendOutput appends a delta of the model's spoken response.
func (a *Assembler) AppendOutput(delta string) { a.model.WriteString(delta) }

// Pending returns the untrimmed accumulated text of both sides.
func (a *Assembler) Pending() (user, model string) {
	return a.user.String(), a.model.String()
}

// Finalize closes the current turn. The trimmed text of each non-empty side
// becomes an entry (user before model) sharing one fresh turn ID; both
// accumulators are reset regardless. It returns the entries it appended.
func (a *Assembler) Finalize() []Entry {
	userText := strings.TrimSpace(a.user.String())
	modelText := strings.TrimSpace(a.model.String())
	a.user.Reset()
	a.model.Reset()

	if userText == "" && modelText == "" {
		return nil
	}

	turnID := a.newTurnID()
	at := a.now()
	var added []Entry
	if userText != "" {
		added = append(added, a.append(turnID, RoleUser, userText, at))
	}
	if modelText != "" {
		added = append(added, a.append(turnID, RoleModel, modelText, at))
	}
	return added
}

func (a *Assembler) append(turnID string, role Role, text string, at time.Time) Entry {
	e := Entry{
		ID:     turnID + "-" + string(role),
		TurnID: turnID,
		Role:   role,
		Text:   text,
		At:     at,
	}
	a.byID[e.ID] = len(a.entries)
	a.entries = append(a.entries, e)
	return e
}

// SetTranslation attaches a translation to the entry with the given ID. It
// reports false, changing nothing, when no such entry exists (for example
// after Reset) or the entry is already translated.
func (a *Assembler) SetTranslation(id, translation string) (Entry, bool) {
	i, ok := a.byID[id]
	if !ok || a.entries[i].Translated {
		return Entry{}, false
	}
	a.entries[i].Translation = translation
	a.entries[i].Translated = true
	return a.entries[i], true
}

// Entries returns a copy of the finalized entries in order.
func (a *Assembler) Entries() []Entry {
	return append([]Entry(nil), a.entries...)
}

// Len reports the number of finalized entries.
func (a *Assembler) Len() int { return len(a.entries) }

// Reset discards all entries and pending text.
func (a *Assembler) Reset() {
	a.user.Reset()
	a.model.Reset()
	a.entries = nil
	clear(a.byID)
}
