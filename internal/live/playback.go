package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/livetutor/internal/observe"
	"github.com/MrWong99/livetutor/pkg/audio"
	"github.com/MrWong99/livetutor/pkg/device"
	providerlive "github.com/MrWong99/livetutor/pkg/provider/live"
)

// ErrSchedulerClosed is returned by [Scheduler.Schedule] after Close.
var ErrSchedulerClosed = errors.New("live: scheduler closed")

// Scheduler queues response audio on an output device so consecutive chunks
// play back to back without gaps or overlap.
//
// Each chunk starts at max(next, now) on the output clock, where next is the
// end of the previously scheduled chunk. next is kept as a whole number of
// samples past an anchor time so that rounding never accumulates across a long
// response. Scheduled sources are kept in a live
// set until they finish so they can be stopped together on barge-in or
// teardown.
//
// onEnded callbacks from the device must not be delivered synchronously from
// inside Output.Schedule.
type Scheduler struct {
	out      device.Output
	channels int
	metrics  *observe.Metrics

	mu sync.Mutex
	// next = anchor + offset samples at offsetRate.
	anchor     time.Duration
	offset     int64
	offsetRate int
	queued     bool // next marks the end of audio that was actually scheduled
	seq     uint64
	sources map[uint64]device.Source
	closed  bool
}

// NewScheduler returns a Scheduler whose cursor starts at the output's current
// time. channels is the interleaved channel count of incoming chunks. A nil
// metrics uses [observe.DefaultMetrics].
func NewScheduler(out device.Output, channels int, metrics *observe.Metrics) *Scheduler {
	if channels < 1 {
		channels = 1
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Scheduler{
		out:      out,
		channels: channels,
		metrics:  metrics,
		anchor:   out.CurrentTime(),
		sources:  make(map[uint64]device.Source),
	}
}

// Schedule decodes frag and queues it after everything already scheduled. It
// returns the chunk's start time on the output clock. A decode or device
// failure affects only this chunk.
func (s *Scheduler) Schedule(ctx context.Context, frag providerlive.Fragment) (time.Duration, error) {
	rate := audio.ParseMIMERate(frag.MIMEType, audio.OutputSampleRate)
	buf, err := audio.DecodeChunk(frag.Data, rate, s.channels)
	if err != nil {
		s.metrics.RecordPlaybackChunk(ctx, "failed")
		return 0, fmt.Errorf("live: decode chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSchedulerClosed
	}

	now := s.out.CurrentTime()
	start := s.next()
	if now > start {
		if s.queued {
			s.metrics.PlaybackUnderruns.Add(ctx, 1)
			slog.Debug("playback underrun", "gap", now-start)
		}
		start = now
		s.reanchor(now)
	}
	if s.offsetRate != buf.SampleRate {
		s.reanchor(start)
		s.offsetRate = buf.SampleRate
	}

	id := s.seq
	s.seq++
	src, err := s.out.Schedule(buf, start, func() { s.finished(id) })
	if err != nil {
		s.metrics.RecordPlaybackChunk(ctx, "failed")
		return 0, fmt.Errorf("live: schedule chunk: %w", err)
	}
	s.sources[id] = src
	s.offset += int64(buf.Len())
	s.queued = true
	s.metrics.RecordPlaybackChunk(ctx, "scheduled")
	return start, nil
}

// next returns the cursor. Callers hold s.mu.
func (s *Scheduler) next() time.Duration {
	if s.offsetRate <= 0 {
		return s.anchor
	}
	return s.anchor + samplesToDuration(s.offset, s.offsetRate)
}

// reanchor moves the cursor to at. Callers hold s.mu.
func (s *Scheduler) reanchor(at time.Duration) {
	s.anchor = at
	s.offset = 0
	s.offsetRate = 0
}

// samplesToDuration converts n samples at rate to a duration, rounding up to
// the next nanosecond so the result never lands inside the previous sample.
func samplesToDuration(n int64, rate int) time.Duration {
	r := int64(rate)
	whole := n / r
	rem := n % r
	return time.Duration(whole)*time.Second + time.Duration((rem*int64(time.Second)+r-1)/r)
}

// finished removes a source that played to the end.
func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// StopAll stops every queued or playing source and empties the live set. It
// does not move the cursor. Safe to call repeatedly.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	sources := s.sources
	s.sources = make(map[uint64]device.Source)
	s.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}
}

// Interrupt discards the rest of the current response: every source is
// stopped and the cursor jumps to the output's current time so the next
// response starts immediately.
func (s *Scheduler) Interrupt(ctx context.Context) {
	s.StopAll()
	s.mu.Lock()
	s.reanchor(s.out.CurrentTime())
	s.queued = false
	s.mu.Unlock()
	s.metrics.Interruptions.Add(ctx, 1)
}

// Close stops all sources and rejects further chunks. The output device itself
// is left open.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.StopAll()
}

// Pending reports the number of sources in the live set.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// NextStart reports the time at which the next chunk would start if the
// output clock has not passed it.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next()
}
