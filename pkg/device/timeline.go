package device

import (
	"sync"
	"time"

	"github.com/MrWong99/livetutor/pkg/audio"
)

// Timeline is a software mixing clock for callback-driven outputs. Buffers are
// scheduled at sample positions and rendered into mono output blocks on demand;
// the clock is the number of samples rendered so far.
//
// A device driver calls Render from its audio callback. Timeline is safe for
// concurrent use.
type Timeline struct {
	rate int

	mu      sync.Mutex
	pos     int64
	closed  bool
	sources map[*timelineSource]struct{}
}

type timelineSource struct {
	t       *Timeline
	samples []float32
	start   int64
	onEnded func()
}

// NewTimeline returns a Timeline clocked at rate samples per second.
func NewTimeline(rate int) *Timeline {
	return &Timeline{
		rate:    rate,
		sources: make(map[*timelineSource]struct{}),
	}
}

// CurrentTime implements Output.
func (t *Timeline) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toDuration(t.pos)
}

// Schedule implements Output. Multi-channel buffers are downmixed and buffers
// at a different rate are resampled to the timeline rate.
func (t *Timeline) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (Source, error) {
	samples := t.prepare(buf)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	start := t.toSamples(at)
	if start < t.pos {
		start = t.pos
	}
	src := &timelineSource{t: t, samples: samples, start: start, onEnded: onEnded}
	t.sources[src] = struct{}{}
	return src, nil
}

// Render mixes every source overlapping the next len(out) samples into out,
// advances the clock, and fires onEnded for sources that finished.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	from := t.pos
	to := from + int64(len(out))
	var ended []func()
	for src := range t.sources {
		end := src.start + int64(len(src.samples))
		lo := max(src.start, from)
		hi := min(end, to)
		for p := lo; p < hi; p++ {
			out[p-from] += src.samples[p-src.start]
		}
		if end <= to {
			delete(t.sources, src)
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
		}
	}
	t.pos = to
	t.mu.Unlock()

	for i, s := range out {
		out[i] = max(-1, min(1, s))
	}
	for _, fn := range ended {
		fn()
	}
}

// Pending reports the number of scheduled sources that have not finished.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}

// Close implements Output. It drops all sources without firing onEnded.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	clear(t.sources)
	return nil
}

func (s *timelineSource) Stop() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.sources, s)
}

func (t *Timeline) prepare(buf audio.Buffer) []float32 {
	var mono []float32
	switch buf.Channels() {
	case 0:
		return nil
	case 1:
		mono = buf.Samples[0]
	default:
		mono = make([]float32, buf.Len())
		for _, ch := range buf.Samples {
			for i, s := range ch {
				mono[i] += s / float32(buf.Channels())
			}
		}
	}
	return audio.Resample(mono, buf.SampleRate, t.rate)
}

func (t *Timeline) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(t.rate)
}

// toSamples rounds to the nearest sample, so a time within half a sample of a
// sample boundary maps onto that boundary.
func (t *Timeline) toSamples(d time.Duration) int64 {
	return (int64(d)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

var _ Output = (*Timeline)(nil)
