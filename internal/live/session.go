// Package live runs one real-time spoken conversation with a remote model.
//
// A [Session] owns the microphone, the speaker and the live connection for
// the duration of a call. Its lifecycle is Idle → Connecting → Open → Closed;
// Closed is terminal and reachable from every state. While open, a single
// event-loop goroutine dispatches everything that mutates conversation state:
// inbound transport messages and translation results. Microphone frames are
// pumped by a [Capture] and response audio is queued gaplessly by a
// [Scheduler].
//
// This package is internal because it encapsulates application-private
// session logic.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/internal/resilience"
	"github.com/MrWong99/livetutor/internal/transcript"
	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
	"github.com/MrWong99/livetutor/pkg/provider/translate"
)

var (
	// ErrNotIdle is returned by Start on a session that was already started.
	ErrNotIdle = errors.New("live: session already started")

	// ErrClosed is returned when a session is torn down while Start is still
	// acquiring resources.
	ErrClosed = errors.New("live: session closed")
)

const (
	defaultFrameSize        = 4096
	defaultTranslateTimeout = 15 * time.Second
	persistTimeout          = 5 * time.Second

	// persistBacklog bounds queued journal and clip writes. Writes beyond it
	// are dropped with a warning.
	persistBacklog = 64

	translationBuf = 16
)

// Reasons reported when a session ends.
const (
	ReasonUser   = "user"
	ReasonRemote = "remote"
	ReasonError  = "error"
)

// State is the connection state of a [Session].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind identifies what an [Event] reports.
type EventKind int

const (
	// EventState reports a state transition.
	EventState EventKind = iota
	// EventEntry reports a newly finalized transcript entry.
	EventEntry
	// EventTranslation reports an entry that received its translation.
	EventTranslation
	// EventEnded is the last event of a session, sent after teardown finished.
	EventEnded
)

// Event is a notification delivered to [Config.OnEvent].
type Event struct {
	Kind  EventKind
	State State

	// Entry is set for EventEntry and EventTranslation.
	Entry transcript.Entry

	// Reason and Err are set for EventEnded. Err is nil for a user hang-up or
	// a clean remote close.
	Reason string
	Err    error
}

// Journal persists finalized entries and their translations.
type Journal interface {
	Append(ctx context.Context, sessionID string, e transcript.Entry) error
	SetTranslation(ctx context.Context, sessionID, entryID, translation string) error
}

// ClipRecorder stores the model audio of a finalized model entry.
type ClipRecorder interface {
	Record(entryID string, pcm []byte, sampleRate int) error
}

// Config holds the collaborators and tuning of a [Session].
type Config struct {
	Microphone device.Microphone
	Speaker    device.Speaker
	Provider   providerlive.Provider

	// Translator, if non-nil, translates every finalized entry. Wrap it in a
	// resilience.Translator to stop calling a failing backend.
	Translator translate.Translator

	// Journal and Clips are optional sinks. Their failures are logged only.
	Journal Journal
	Clips   ClipRecorder

	// Voice names the remote's prebuilt voice. Empty selects its default.
	Voice string

	// TargetLanguage is the learner's own language, used for explanations.
	TargetLanguage string

	// CaptureFormat is the microphone format. Default: 16 kHz mono.
	CaptureFormat audio.Format

	// FrameSize is the number of samples per captured frame. Default: 4096.
	FrameSize int

	// PlaybackRate is the speaker clock rate. Default: 24000.
	PlaybackRate int

	// TranslateTimeout bounds one translation. Default: 15s.
	TranslateTimeout time.Duration

	// ID overrides the generated session ID.
	ID string

	// OnEvent, if non-nil, receives lifecycle and transcript events. It may be
	// called from several goroutines and must not block.
	OnEvent func(Event)

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Session is one live conversation. Create it with [New], call Start once and
// End when done. All methods are safe for concurrent use.
type Session struct {
	cfg     Config
	id      string
	metrics *observe.Metrics

	mu       sync.Mutex
	state    State
	topic    Topic
	log      *slog.Logger
	entries  []transcript.Entry
	reason   string
	endErr   error
	openedAt time.Time
	in       device.Input
	out      device.Output
	conn     providerlive.Conn
	sched    *Scheduler
	cancel   context.CancelFunc
	// acquire bounds device and connect calls in Start; teardown cancels it.
	acquire context.CancelFunc

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Owned by the event loop.
	asm      *transcript.Assembler
	results  chan translationResult
	persist  chan persistOp
	turnPCM  []byte
	turnRate int
}

// translationResult carries a finished translation back to the event loop.
type translationResult struct {
	id   string
	text string
}

// persistOp is one queued journal or clip write.
type persistOp struct {
	entry       *transcript.Entry
	entryID     string
	translation string
	pcm         []byte
	rate        int
}

// New validates cfg, applies defaults and returns an idle Session.
func New(cfg Config) (*Session, error) {
	var errs []error
	if cfg.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if cfg.Speaker == nil {
		errs = append(errs, errors.New("speaker is required"))
	}
	if cfg.Provider == nil {
		errs = append(errs, errors.New("live provider is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("live: new session: %w", err)
	}

	if cfg.CaptureFormat.SampleRate <= 0 {
		cfg.CaptureFormat.SampleRate = audio.InputSampleRate
	}
	if cfg.CaptureFormat.Channels <= 0 {
		cfg.CaptureFormat.Channels = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = audio.OutputSampleRate
	}
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = defaultTranslateTimeout
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:     cfg,
		id:      cfg.ID,
		metrics: cfg.Metrics,
		log:     cfg.Logger.With("session_id", cfg.ID),
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
		asm:     transcript.NewAssembler(),
		results: make(chan translationResult, translationBuf),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Topic returns the topic the session was started with. It is cleared on
// teardown.
func (s *Session) Topic() Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// Entries returns a snapshot of the finalized transcript.
func (s *Session) Entries() []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transcript.Entry(nil), s.entries...)
}

// Opened is closed once the remote acknowledged the configuration.
func (s *Session) Opened() <-chan struct{} { return s.opened }

// Done is closed after teardown has released every resource.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// Start acquires the microphone and speaker and connects to the remote with
// instructions derived from topic. It returns once the configuration has been
// sent; the session becomes open when the remote acknowledges it. On failure
// the session is closed and the error returned, wrapping
// device.ErrPermissionDenied when microphone access was refused.
//
// ctx bounds resource acquisition only; the session lives until End or a
// remote close. End may be called while Start is still waiting for the
// microphone or the remote: Start then releases what it acquired and returns
// ErrClosed, and Done is not closed before it has.
func (s *Session) Start(ctx context.Context, topic Topic) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.state = StateConnecting
	s.topic = topic
	s.log = s.log.With("topic", topic.ID)
	log := s.log
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	ctx, acquire := context.WithCancel(ctx)
	defer acquire()
	s.acquire = acquire
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.emit(Event{Kind: EventState, State: StateConnecting})
	log.Info("session starting")

	in, err := s.cfg.Microphone.Open(ctx, s.cfg.CaptureFormat, s.cfg.FrameSize)
	if err != nil {
		return s.abort(fmt.Errorf("live: open microphone: %w", err))
	}
	if err := s.attach(func() { s.in = in }, in.Close); err != nil {
		return err
	}

	out, err := s.cfg.Speaker.Open(ctx, audio.Format{SampleRate: s.cfg.PlaybackRate, Channels: 1})
	if err != nil {
		return s.abort(fmt.Errorf("live: open speaker: %w", err))
	}
	sched := NewScheduler(out, 1, s.metrics)
	if err := s.attach(func() { s.out, s.sched = out, sched }, out.Close); err != nil {
		return err
	}

	connectStart := time.Now()
	spanCtx, span := observe.StartSpan(ctx, "live.connect")
	conn, err := s.cfg.Provider.Connect(spanCtx, providerlive.Config{
		Instructions:        BuildInstructions(topic, s.cfg.TargetLanguage),
		Voice:               s.cfg.Voice,
		ResponseModalities:  []providerlive.Modality{providerlive.ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
	})
	observe.EndSpan(span, err)
	if err != nil {
		return s.abort(fmt.Errorf("live: connect: %w", err))
	}

	// Background work is registered under the lock so a concurrent teardown
	// either sees it in the wait group or never lets it start.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	if s.cfg.Journal != nil || s.cfg.Clips != nil {
		s.persist = make(chan persistOp, persistBacklog)
		persist := s.persist
		s.wg.Go(func() { s.persistLoop(loopCtx, persist, log) })
	}
	s.wg.Go(func() { s.run(loopCtx, conn, in, connectStart, log) })
	return nil
}

// attach stores an acquired resource unless the session was closed meanwhile,
// in which case the resource is released and ErrClosed returned.
func (s *Session) attach(store func(), release func() error) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = release()
		return ErrClosed
	}
	store()
	s.mu.Unlock()
	return nil
}

// abort tears the session down after a failed Start step and returns err, or
// ErrClosed when the failure was caused by a concurrent End.
func (s *Session) abort(err error) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	s.shutdown(ReasonError, err)
	return err
}

// End hangs up and waits until every resource is released. It is safe to call
// in any state and more than once.
func (s *Session) End() error {
	s.shutdown(ReasonUser, nil)
	<-s.done
	return nil
}

// shutdown is the single teardown path for user, remote and error endings.
// It never blocks on the event loop; Done is closed once background work has
// drained.
func (s *Session) shutdown(reason string, cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		s.reason = reason
		s.endErr = cause
		in, out, conn, sched, cancel, acquire := s.in, s.out, s.conn, s.sched, s.cancel, s.acquire
		openedAt := s.openedAt
		log := s.log
		s.mu.Unlock()

		if acquire != nil {
			acquire()
		}
		if cancel != nil {
			cancel()
		}
		if sched != nil {
			sched.Close()
		}
		if in != nil {
			_ = in.Close()
		}
		if conn != nil {
			_ = conn.Close()
		}
		if out != nil {
			_ = out.Close()
		}

		ctx := context.Background()
		var openFor time.Duration
		if prev == StateOpen {
			openFor = time.Since(openedAt)
			s.metrics.ActiveSessions.Add(ctx, -1)
		}
		s.metrics.RecordSessionEnd(ctx, reason, openFor)

		switch {
		case cause != nil:
			log.Warn("session ended", "reason", reason, "from", prev, "err", cause)
		case reason == ReasonRemote:
			log.Warn("session ended by remote", "from", prev)
		default:
			log.Info("session ended", "reason", reason, "from", prev)
		}
		s.emit(Event{Kind: EventState, State: StateClosed})

		go func() {
			s.wg.Wait()
			s.asm.Reset()
			s.turnPCM = nil
			s.mu.Lock()
			s.entries = nil
			s.topic = Topic{}
			s.mu.Unlock()
			s.emit(Event{Kind: EventEnded, State: StateClosed, Reason: reason, Err: cause})
			close(s.done)
		}()
	})
}

// run is the session's event loop.
func (s *Session) run(ctx context.Context, conn providerlive.Conn, in device.Input, connectStart time.Time, log *slog.Logger) {
	if s.persist != nil {
		defer close(s.persist)
	}
	msgs := conn.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				err := conn.Err()
				reason := ReasonRemote
				if err != nil {
					reason = ReasonError
				}
				s.shutdown(reason, err)
				return
			}
			s.handle(ctx, msg, conn, in, connectStart, log)
		case res := <-s.results:
			s.applyTranslation(res)
		}
	}
}

// handle applies one inbound message. Text deltas are applied before audio,
// interruption and turn completion so a delta riding on the final message is
// part of the finalized turn.
func (s *Session) handle(ctx context.Context, msg providerlive.Message, conn providerlive.Conn, in device.Input, connectStart time.Time, log *slog.Logger) {
	if msg.SetupComplete {
		s.markOpen(ctx, conn, in, connectStart, log)
	}
	if s.State() != StateOpen {
		if msg.InputTranscript != "" || msg.OutputTranscript != "" || len(msg.Audio) > 0 || msg.TurnComplete {
			log.Debug("content before setup complete ignored")
		}
		return
	}

	if msg.InputTranscript != "" {
		s.asm.AppendInput(msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		s.asm.AppendOutput(msg.OutputTranscript)
	}
	for _, frag := range msg.Audio {
		s.mu.Lock()
		sched := s.sched
		s.mu.Unlock()
		if _, err := sched.Schedule(ctx, frag); err != nil {
			log.Warn("playback: chunk dropped", "bytes", len(frag.Data), "err", err)
			continue
		}
		if s.cfg.Clips != nil {
			s.turnPCM = append(s.turnPCM, frag.Data...)
			s.turnRate = audio.ParseMIMERate(frag.MIMEType, audio.OutputSampleRate)
		}
	}
	if msg.Interrupted {
		s.mu.Lock()
		sched := s.sched
		s.mu.Unlock()
		sched.Interrupt(ctx)
		s.turnPCM = nil
		log.Debug("model interrupted, queued playback discarded")
	}
	if msg.TurnComplete {
		s.finalizeTurn(ctx, log)
	}
}

// markOpen moves Connecting → Open and starts the capture pump.
func (s *Session) markOpen(ctx context.Context, conn providerlive.Conn, in device.Input, connectStart time.Time, log *slog.Logger) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	s.openedAt = time.Now()
	s.mu.Unlock()
	close(s.opened)

	s.metrics.ConnectDuration.Record(ctx, time.Since(connectStart).Seconds())
	s.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("session open")
	s.emit(Event{Kind: EventState, State: StateOpen})

	capture := NewCapture(in, conn, s.metrics, log)
	s.wg.Go(func() {
		n := capture.Run(ctx)
		log.Debug("capture stopped", "frames_sent", n)
	})
}

// finalizeTurn closes the current turn and hands new entries to the journal,
// the clip recorder and the translator.
func (s *Session) finalizeTurn(ctx context.Context, log *slog.Logger) {
	entries := s.asm.Finalize()
	pcm, rate := s.turnPCM, s.turnRate
	s.turnPCM = nil
	if len(entries) == 0 {
		return
	}
	s.publish()

	for _, e := range entries {
		log.Debug("turn finalized", "entry_id", e.ID, "role", e.Role)
		s.metrics.RecordTranscriptEntry(ctx, string(e.Role))
		s.emit(Event{Kind: EventEntry, State: StateOpen, Entry: e})

		if s.cfg.Journal != nil {
			s.enqueue(persistOp{entry: &e}, log)
		}
		if s.cfg.Clips != nil && e.Role == transcript.RoleModel && len(pcm) > 0 {
			s.enqueue(persistOp{entryID: e.ID, pcm: pcm, rate: rate}, log)
		}
		s.translate(ctx, e, log)
	}
}

// translate starts a background translation of e. The result is delivered to
// the event loop; it is dropped if the session ends first.
func (s *Session) translate(ctx context.Context, e transcript.Entry, log *slog.Logger) {
	if s.cfg.Translator == nil {
		return
	}
	s.wg.Go(func() {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TranslateTimeout)
		defer cancel()
		tctx, span := observe.StartSpan(tctx, "live.translate")
		start := time.Now()
		text, err := s.cfg.Translator.Translate(tctx, e.Text)
		observe.EndSpan(span, err)

		if ctx.Err() != nil {
			return
		}
		reason := ""
		switch {
		case err == nil:
		case errors.Is(err, resilience.ErrCircuitOpen):
			reason = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		default:
			reason = "error"
		}
		s.metrics.RecordTranslation(ctx, time.Since(start), reason)
		if err != nil {
			log.Warn("translation failed", "entry_id", e.ID, "err", err)
			return
		}

		select {
		case s.results <- translationResult{id: e.ID, text: text}:
		case <-ctx.Done():
		}
	})
}

// applyTranslation patches the matching entry. Unknown or already translated
// IDs are ignored.
func (s *Session) applyTranslation(res translationResult) {
	e, ok := s.asm.SetTranslation(res.id, res.text)
	if !ok {
		return
	}
	s.publish()
	s.emit(Event{Kind: EventTranslation, State: StateOpen, Entry: e})
	if s.cfg.Journal != nil {
		s.mu.Lock()
		log := s.log
		s.mu.Unlock()
		s.enqueue(persistOp{entryID: e.ID, translation: e.Translation}, log)
	}
}

// publish refreshes the snapshot returned by Entries.
func (s *Session) publish() {
	entries := s.asm.Entries()
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

// enqueue hands op to the persist goroutine without blocking the event loop.
func (s *Session) enqueue(op persistOp, log *slog.Logger) {
	if s.persist == nil {
		return
	}
	select {
	case s.persist <- op:
	default:
		log.Warn("persist backlog full, write dropped", "entry_id", op.entryID)
	}
}

// persistLoop performs journal and clip writes in order. It drains the queue
// after the session ends so entries finalized just before a hang-up are kept.
func (s *Session) persistLoop(ctx context.Context, ops <-chan persistOp, log *slog.Logger) {
	base := context.WithoutCancel(ctx)
	for op := range ops {
		ctx, cancel := context.WithTimeout(base, persistTimeout)
		var err error
		switch {
		case op.entry != nil:
			err = s.cfg.Journal.Append(ctx, s.id, *op.entry)
		case op.pcm != nil:
			err = s.cfg.Clips.Record(op.entryID, op.pcm, op.rate)
		default:
			err = s.cfg.Journal.SetTranslation(ctx, s.id, op.entryID, op.translation)
		}
		cancel()
		if err != nil {
			log.Warn("persist failed", "entry_id", op.entryID, "err", err)
		}
	}
}

// emit forwards ev to OnEvent.
func (s *Session) emit(ev Event) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}
