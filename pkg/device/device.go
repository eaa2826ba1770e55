// Package device defines the audio endpoints a live session talks to: a
// microphone that yields fixed-size frames and a speaker that plays decoded
// buffers at precise times on its own clock.
//
// Implementations live in subpackages: portaudio for real hardware and mock
// for tests. All implementations must be safe for concurrent use.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/livetutor/pkg/audio"
)

var (
	// ErrPermissionDenied is returned by Microphone.Open when the user or the
	// operating system refuses access to the capture device. It is never retried.
	ErrPermissionDenied = errors.New("device: permission denied")

	// ErrUnavailable is returned when no suitable device exists or it cannot be
	// opened at the requested format.
	ErrUnavailable = errors.New("device: unavailable")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("device: closed")
)

// Microphone opens capture streams.
type Microphone interface {
	// Open requests access to the capture device and starts delivering frames of
	// frameSize mono samples at format.SampleRate. Open blocks until access is
	// granted or refused, or ctx is cancelled.
	Open(ctx context.Context, format audio.Format, frameSize int) (Input, error)
}

// Input is an open capture stream.
type Input interface {
	// Frames returns the channel of captured frames in capture order. The
	// channel holds at most one frame in flight and is closed when the input is
	// closed or the device fails.
	Frames() <-chan audio.Frame

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Speaker opens playback outputs.
type Speaker interface {
	// Open starts an output stream at format.
	Open(ctx context.Context, format audio.Format) (Output, error)
}

// Output is an open playback stream with a monotonic clock that advances as
// audio is rendered.
type Output interface {
	// CurrentTime reports the output clock. It never goes backwards.
	CurrentTime() time.Duration

	// Schedule queues buf to start playing at clock time at. A start time in
	// the past plays immediately. onEnded, if non-nil, is called from an
	// arbitrary goroutine once the buffer has finished playing; it is not
	// called for sources that were stopped.
	Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (Source, error)

	// Close stops all sources and releases the device. Safe to call more than once.
	Close() error
}

// Source is one scheduled buffer.
type Source interface {
	// Stop silences the source immediately. Safe to call more than once and
	// after the source has ended.
	Stop()
}
