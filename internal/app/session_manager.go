package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/livetutor/internal/config"
	"github.com/MrWong99/livetutor/internal/live"
	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/internal/transcript"
	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

var (
	// ErrNoSession is returned by Stop when no session is running.
	ErrNoSession = errors.New("session: no active session")

	// ErrUnknownTopic is returned by StartTopic for an ID missing from the catalogue.
	ErrUnknownTopic = errors.New("session: unknown topic")
)

// subscriberBuffer is the event backlog per subscriber. Events beyond it are
// dropped for that subscriber only.
const subscriberBuffer = 32

// SessionInfo holds metadata about the current session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// TopicID and TopicTitle describe the conversation scenario.
	TopicID    string
	TopicTitle string

	// StartedAt is when Start was called.
	StartedAt time.Time

	// State is the session's connection state at the time of the call.
	State live.State
}

// SessionManager runs at most one live session at a time. Starting a new
// session tears down the previous one first.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active *live.Session
	info   SessionInfo
	topics []config.TopicConfig

	// startMu serialises device acquisition between successive sessions. It is
	// never held together with mu.
	startMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan live.Event
	nextSub int

	// Dependencies injected at construction.
	cfg SessionManagerConfig
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Microphone device.Microphone
	Speaker    device.Speaker
	Provider   providerlive.Provider

	// Translator, Journal and Clips are optional.
	Translator translate.Translator
	Journal    live.Journal
	Clips      live.ClipRecorder

	Audio       config.AudioConfig
	Translation config.TranslationConfig
	Topics      []config.TopicConfig

	// Voice overrides the live provider's default voice.
	Voice string

	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		cfg:    cfg,
		topics: slices.Clone(cfg.Topics),
		subs:   make(map[int]chan live.Event),
	}
}

// SetTopics replaces the topic catalogue. A running session keeps its topic.
func (sm *SessionManager) SetTopics(topics []config.TopicConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.topics = slices.Clone(topics)
}

// Topics returns the current topic catalogue.
func (sm *SessionManager) Topics() []config.TopicConfig {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return slices.Clone(sm.topics)
}

// StartTopic starts a session for the catalogue topic with the given ID.
func (sm *SessionManager) StartTopic(ctx context.Context, topicID string) (SessionInfo, error) {
	sm.mu.Lock()
	idx := slices.IndexFunc(sm.topics, func(t config.TopicConfig) bool { return t.ID == topicID })
	var tc config.TopicConfig
	if idx >= 0 {
		tc = sm.topics[idx]
	}
	sm.mu.Unlock()
	if idx < 0 {
		return SessionInfo{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topicID)
	}
	return sm.Start(ctx, live.Topic{ID: tc.ID, Title: tc.Title, Instruction: tc.Instruction})
}

// Start begins a new session on topic. A running session is ended first, so
// at most one session holds the devices at any time. The new session is
// visible to Stop, Info and IsActive while it waits for microphone consent and
// the remote, so it can be hung up in any state. On failure the new session is
// already torn down and the error wraps its cause (device.ErrPermissionDenied
// when the microphone was refused, live.ErrClosed when Stop won the race).
func (sm *SessionManager) Start(ctx context.Context, topic live.Topic) (SessionInfo, error) {
	tr := sm.cfg.Translation
	s, err := live.New(live.Config{
		Microphone:       sm.cfg.Microphone,
		Speaker:          sm.cfg.Speaker,
		Provider:         sm.cfg.Provider,
		Translator:       sm.cfg.Translator,
		Journal:          sm.cfg.Journal,
		Clips:            sm.cfg.Clips,
		Voice:            sm.cfg.Voice,
		TargetLanguage:   tr.TargetLanguage,
		CaptureFormat:    audio.Format{SampleRate: sm.cfg.Audio.CaptureRate, Channels: 1},
		FrameSize:        sm.cfg.Audio.FrameSize,
		PlaybackRate:     sm.cfg.Audio.PlaybackRate,
		TranslateTimeout: tr.Timeout,
		OnEvent:          sm.dispatch,
		Metrics:          sm.cfg.Metrics,
	})
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session: %w", err)
	}

	sm.mu.Lock()
	prev, prevID := sm.active, sm.info.SessionID
	sm.active = s
	sm.info = SessionInfo{
		SessionID:  s.ID(),
		TopicID:    topic.ID,
		TopicTitle: topic.Title,
		StartedAt:  time.Now().UTC(),
	}
	info := sm.info
	sm.mu.Unlock()

	if prev != nil {
		prev.End()
		slog.Info("session replaced", "session_id", prevID, "by", s.ID())
	}

	sm.startMu.Lock()
	err = s.Start(ctx, topic)
	sm.startMu.Unlock()
	if err != nil {
		sm.mu.Lock()
		if sm.active == s {
			sm.active = nil
			sm.info = SessionInfo{}
		}
		sm.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("session: start %q: %w", topic.ID, err)
	}

	slog.Info("session started", "session_id", s.ID(), "topic", topic.ID)

	info.State = s.State()
	return info, nil
}

// Stop ends the current session and waits for its resources to be released
// or ctx to expire.
//
// Returns [ErrNoSession] if no session is running.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	s := sm.current()
	sm.active = nil
	sm.info = SessionInfo{}
	sm.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}

	done := make(chan struct{})
	go func() {
		s.End()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("session stopped", "session_id", s.ID())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: stop: %w", ctx.Err())
	}
}

// current returns the active session unless it has already ended. Callers
// hold sm.mu.
func (sm *SessionManager) current() *live.Session {
	if sm.active == nil {
		return nil
	}
	select {
	case <-sm.active.Done():
		return nil
	default:
		return sm.active
	}
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current() != nil
}

// Info returns metadata about the running session, or the zero value.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.current()
	if s == nil {
		return SessionInfo{}
	}
	info := sm.info
	info.State = s.State()
	return info
}

// Transcript returns the running session's finalized entries.
func (sm *SessionManager) Transcript() []transcript.Entry {
	sm.mu.Lock()
	s := sm.current()
	sm.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Entries()
}

// Subscribe returns a channel receiving every session event until cancel is
// called. Slow subscribers miss events rather than stall the session.
func (sm *SessionManager) Subscribe() (events <-chan live.Event, cancel func()) {
	ch := make(chan live.Event, subscriberBuffer)
	sm.subMu.Lock()
	id := sm.nextSub
	sm.nextSub++
	sm.subs[id] = ch
	sm.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.subMu.Lock()
			delete(sm.subs, id)
			sm.subMu.Unlock()
			close(ch)
		})
	}
}

// dispatch fans a session event out to subscribers. It never takes sm.mu:
// sessions emit while Start and Stop hold it.
func (sm *SessionManager) dispatch(ev live.Event) {
	sm.subMu.Lock()
	defer sm.subMu.Unlock()
	for id, ch := range sm.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("session event dropped for slow subscriber", "subscriber", id, "kind", ev.Kind)
		}
	}
}
