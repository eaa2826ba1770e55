// Package mock provides test doubles for the device package interfaces.
//
// Microphone hands out an Input whose frames the test pushes by hand. Speaker
// hands out an Output with a manually driven clock that records every
// Schedule call so tests can inspect start times and complete sources.
//
// Example:
//
//	mic := &mock.Microphone{}
//	spk := &mock.Speaker{}
//	in, _ := mic.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1}, 4096)
//	mic.Input().Push(audio.Frame{Samples: samples})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
)

// OpenCall records a single invocation of Microphone.Open or Speaker.Open.
type OpenCall struct {
	Format    audio.Format
	FrameSize int
}

// Microphone is a mock implementation of device.Microphone.
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open (e.g. device.ErrPermissionDenied).
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall

	input *Input
}

// Open records the call and returns a fresh Input, or OpenErr.
func (m *Microphone) Open(_ context.Context, format audio.Format, frameSize int) (device.Input, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{Format: format, FrameSize: frameSize})
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.input = NewInput()
	return m.input, nil
}

// Input returns the most recently opened Input, or nil.
func (m *Microphone) Input() *Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

var _ device.Microphone = (*Microphone)(nil)

// Input is a mock capture stream.
type Input struct {
	frames    chan audio.Frame
	done      chan struct{}
	closeOnce sync.Once

	// sendMu keeps Close from closing frames while a Push is sending.
	sendMu sync.RWMutex

	mu         sync.Mutex
	closeCalls int
	seq        uint64
}

// NewInput returns an open Input.
func NewInput() *Input {
	return &Input{
		frames: make(chan audio.Frame, 1),
		done:   make(chan struct{}),
	}
}

// Frames implements device.Input.
func (in *Input) Frames() <-chan audio.Frame { return in.frames }

// Push delivers a frame, stamping its sequence number. It blocks while a frame
// is already in flight and returns false once the input is closed.
func (in *Input) Push(f audio.Frame) bool {
	in.mu.Lock()
	f.Seq = in.seq
	in.seq++
	in.mu.Unlock()
	in.sendMu.RLock()
	defer in.sendMu.RUnlock()
	select {
	case <-in.done:
		return false
	default:
	}
	select {
	case in.frames <- f:
		return true
	case <-in.done:
		return false
	}
}

// Close implements device.Input. Frames is closed once no Push is in flight.
func (in *Input) Close() error {
	in.mu.Lock()
	in.closeCalls++
	in.mu.Unlock()
	in.closeOnce.Do(func() {
		close(in.done)
		in.sendMu.Lock()
		close(in.frames)
		in.sendMu.Unlock()
	})
	return nil
}

// CloseCalls reports how many times Close was called.
func (in *Input) CloseCalls() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closeCalls
}

// Closed reports whether Close has been called.
func (in *Input) Closed() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

var _ device.Input = (*Input)(nil)

// Speaker is a mock implementation of device.Speaker.
type Speaker struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall

	output *Output
}

// Open records the call and returns a fresh Output, or OpenErr.
func (s *Speaker) Open(_ context.Context, format audio.Format) (device.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Format: format})
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.output = &Output{}
	return s.output, nil
}

// Output returns the most recently opened Output, or nil.
func (s *Speaker) Output() *Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

var _ device.Speaker = (*Speaker)(nil)

// ScheduleCall records a single invocation of Output.Schedule.
type ScheduleCall struct {
	Buffer audio.Buffer
	At     time.Duration
	Source *Source
}

// Output is a mock playback stream with a manually advanced clock.
type Output struct {
	mu sync.Mutex

	now        time.Duration
	closeCalls int

	// ScheduleErr, if non-nil, is returned by every Schedule call.
	ScheduleErr error

	// ScheduleCalls records every successful Schedule call in order.
	ScheduleCalls []ScheduleCall
}

// SetTime sets the output clock.
func (o *Output) SetTime(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// CurrentTime implements device.Output.
func (o *Output) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule records the call and returns a Source the test can finish or inspect.
func (o *Output) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (device.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleErr != nil {
		return nil, o.ScheduleErr
	}
	if o.closeCalls > 0 {
		return nil, device.ErrClosed
	}
	src := &Source{onEnded: onEnded}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Buffer: buf, At: at, Source: src})
	return src, nil
}

// Calls returns a copy of the recorded Schedule calls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ScheduleCall(nil), o.ScheduleCalls...)
}

// Close implements device.Output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeCalls++
	return nil
}

// CloseCalls reports how many times Close was called.
func (o *Output) CloseCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeCalls
}

var _ device.Output = (*Output)(nil)

// Source is a mock scheduled buffer.
type Source struct {
	mu        sync.Mutex
	onEnded   func()
	stopCalls int
	ended     bool
}

// Stop implements device.Source.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
}

// Stopped reports whether Stop was called at least once.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls > 0
}

// Finish simulates the buffer playing to the end and fires onEnded once.
func (s *Source) Finish() {
	s.mu.Lock()
	if s.ended || s.stopCalls > 0 {
		s.mu.Unlock()
		return
	}
	s.ended = true
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

var _ device.Source = (*Source)(nil)
