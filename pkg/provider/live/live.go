// Package live defines the transport contract for a real-time, bidirectional
// audio conversation with a remote model.
//
// A Conn is one persistent session: the caller streams encoded microphone
// audio up with SendAudio, and the remote streams Messages down carrying
// transcript deltas, synthesised audio, and turn boundaries. A Conn is opened
// with a Config and cannot be reconfigured; start a new Conn instead.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/MrWong99/livetutor/pkg/audio"
)

// ErrClosed is returned by SendAudio after the connection has been closed.
var ErrClosed = errors.New("live: connection closed")

// Modality is a response kind the remote model may produce.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config is the configuration payload sent when a connection is opened.
type Config struct {
	// Instructions is the system instruction that frames the conversation.
	Instructions string

	// Voice names a prebuilt voice. Empty selects the provider default.
	Voice string

	// ResponseModalities lists what the model should respond with. Empty means
	// audio only.
	ResponseModalities []Modality

	// InputTranscription asks the remote to stream text of what the user said.
	InputTranscription bool

	// OutputTranscription asks the remote to stream text of what the model said.
	OutputTranscription bool
}

// Fragment is one piece of synthesised audio.
type Fragment struct {
	// MIMEType is the audio descriptor, e.g. "audio/pcm;rate=24000".
	MIMEType string

	// Data is raw 16-bit little-endian PCM (already base64-decoded).
	Data []byte
}

// Message is one inbound event from the remote. Any combination of fields may
// be set on a single message; consumers handle each independently.
type Message struct {
	// SetupComplete acknowledges the configuration payload. Audio may be sent
	// before it arrives but the session is not considered open until then.
	SetupComplete bool

	// InputTranscript is a delta of the user's recognised speech.
	InputTranscript string

	// OutputTranscript is a delta of the model's spoken response.
	OutputTranscript string

	// Audio holds response audio fragments in playback order.
	Audio []Fragment

	// Interrupted reports that the user spoke over the model and the rest of the
	// current response was discarded.
	Interrupted bool

	// TurnComplete marks the end of the model's turn.
	TurnComplete bool
}

// Provider opens connections.
type Provider interface {
	// Connect dials the remote and sends cfg. It returns once the configuration
	// payload has been written; SetupComplete arrives later on Messages.
	Connect(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is an open live connection.
type Conn interface {
	// SendAudio delivers one encoded chunk of microphone audio. It returns
	// ErrClosed after Close, or the transport error if the write failed.
	SendAudio(chunk audio.EncodedChunk) error

	// Messages returns the inbound event stream. The channel is closed when the
	// remote closes the connection, a transport error occurs, or Close is called.
	// Check Err after it closes.
	Messages() <-chan Message

	// Err returns the error that ended the connection, or nil if it ended
	// cleanly.
	Err() error

	// Close terminates the connection. Safe to call more than once.
	Close() error
}
