// Package portaudio implements device.Microphone and device.Speaker on top of
// the PortAudio C library via github.com/gordonklaus/portaudio (CGO).
//
// The microphone uses a blocking read stream; the speaker uses a callback
// stream that renders a device.Timeline, so the output clock is the count of
// samples handed to the hardware. PortAudio's own init refcount lets each open
// stream pair Initialize with Terminate.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
)

var (
	_ device.Microphone = (*Microphone)(nil)
	_ device.Speaker    = (*Speaker)(nil)
)

// Microphone opens PortAudio capture streams.
type Microphone struct {
	// DeviceName selects an input device by name. Empty means the system default.
	DeviceName string
}

// Speaker opens PortAudio playback streams.
type Speaker struct {
	// DeviceName selects an output device by name. Empty means the system default.
	DeviceName string

	// FramesPerBuffer is the callback block size. Zero lets PortAudio choose.
	FramesPerBuffer int
}

// Open implements device.Microphone.
func (m *Microphone) Open(ctx context.Context, format audio.Format, frameSize int) (device.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", device.ErrUnavailable, err)
	}
	channels := max(format.Channels, 1)
	buf := make([]float32, frameSize*channels)

	stream, err := m.openStream(format.SampleRate, channels, frameSize, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start input: %w", classify(err))
	}

	in := &input{
		stream:   stream,
		buf:      buf,
		channels: channels,
		rate:     format.SampleRate,
		frames:   make(chan audio.Frame, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go in.readLoop()
	slog.Info("portaudio: capture started", "device", deviceLabel(m.DeviceName), "format", format, "frame_size", frameSize)
	return in, nil
}

func (m *Microphone) openStream(rate, channels, frameSize int, buf []float32) (*pa.Stream, error) {
	if m.DeviceName == "" {
		return pa.OpenDefaultStream(channels, 0, float64(rate), frameSize, buf)
	}
	dev, err := findDevice(m.DeviceName, true)
	if err != nil {
		return nil, err
	}
	p := pa.LowLatencyParameters(dev, nil)
	p.Input.Channels = channels
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = frameSize
	return pa.OpenStream(p, buf)
}

type input struct {
	stream   *pa.Stream
	buf      []float32
	channels int
	rate     int

	frames    chan audio.Frame
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (in *input) Frames() <-chan audio.Frame { return in.frames }

func (in *input) readLoop() {
	defer close(in.loopDone)
	defer close(in.frames)
	var seq uint64
	for {
		if err := in.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				slog.Debug("portaudio: input overflowed")
				continue
			}
			select {
			case <-in.done:
			default:
				slog.Warn("portaudio: capture read failed", "err", err)
			}
			return
		}
		samples := make([]float32, len(in.buf))
		copy(samples, in.buf)
		frame := audio.Frame{
			Samples:    audio.Downmix(samples, in.channels),
			SampleRate: in.rate,
			Seq:        seq,
		}
		seq++
		select {
		case in.frames <- frame:
		case <-in.done:
			return
		}
	}
}

func (in *input) Close() error {
	in.closeOnce.Do(func() {
		close(in.done)
		// Abort unblocks a pending Read.
		if err := in.stream.Abort(); err != nil {
			slog.Debug("portaudio: abort input", "err", err)
		}
		<-in.loopDone
		in.closeErr = in.stream.Close()
		if err := pa.Terminate(); err != nil && in.closeErr == nil {
			in.closeErr = err
		}
	})
	return in.closeErr
}

// Open implements device.Speaker.
func (s *Speaker) Open(ctx context.Context, format audio.Format) (device.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", device.ErrUnavailable, err)
	}
	tl := device.NewTimeline(format.SampleRate)
	render := func(out []float32) { tl.Render(out) }

	stream, err := s.openStream(format.SampleRate, render)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open output: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", classify(err))
	}
	slog.Info("portaudio: playback started", "device", deviceLabel(s.DeviceName), "format", format)
	return &output{Timeline: tl, stream: stream}, nil
}

func (s *Speaker) openStream(rate int, render func([]float32)) (*pa.Stream, error) {
	frames := s.FramesPerBuffer
	if frames <= 0 {
		frames = pa.FramesPerBufferUnspecified
	}
	if s.DeviceName == "" {
		return pa.OpenDefaultStream(0, 1, float64(rate), frames, render)
	}
	dev, err := findDevice(s.DeviceName, false)
	if err != nil {
		return nil, err
	}
	p := pa.LowLatencyParameters(nil, dev)
	p.Output.Channels = 1
	p.SampleRate = float64(rate)
	p.FramesPerBuffer = frames
	return pa.OpenStream(p, render)
}

// output embeds the Timeline that the stream callback renders, so CurrentTime
// and Schedule come from it directly.
type output struct {
	*device.Timeline
	stream    *pa.Stream
	closeOnce sync.Once
	closeErr  error
}

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		_ = o.Timeline.Close()
		if err := o.stream.Abort(); err != nil {
			slog.Debug("portaudio: abort output", "err", err)
		}
		o.closeErr = o.stream.Close()
		if err := pa.Terminate(); err != nil && o.closeErr == nil {
			o.closeErr = err
		}
	})
	return o.closeErr
}

func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name != name {
			continue
		}
		if input && d.MaxInputChannels > 0 || !input && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no device named %q", device.ErrUnavailable, name)
}

// permissionMarkers are host error texts reported when the OS refuses the
// capture device (ALSA and OSS surface EACCES/EPERM, WASAPI E_ACCESSDENIED).
// CoreAudio does not fail on a refused microphone; it delivers silence.
var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"access is denied",
}

// classify maps PortAudio errors to the device package sentinels.
func classify(err error) error {
	if errors.Is(err, device.ErrUnavailable) || errors.Is(err, device.ErrPermissionDenied) {
		return err
	}
	if isPermissionError(err) {
		return fmt.Errorf("%w: %w", device.ErrPermissionDenied, err)
	}
	if errors.Is(err, pa.InvalidDevice) || errors.Is(err, pa.DeviceUnavailable) {
		return fmt.Errorf("%w: %w", device.ErrUnavailable, err)
	}
	return err
}

func isPermissionError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func deviceLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
