package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Converter resamples frames to a target rate. It logs a warning on the first
// rate mismatch. Create one per stream; not designed for shared use across
// goroutines.
type Converter struct {
	TargetRate     int
	warnedMismatch sync.Once
}

// Convert resamples frame to the target rate. If the source rate already
// matches, the frame is returned unchanged (zero allocation).
func (c *Converter) Convert(frame Frame) Frame {
	if frame.SampleRate == c.TargetRate || frame.SampleRate <= 0 {
		return frame
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio converter: sample rate mismatch, resampling",
			"from", frame.SampleRate,
			"to", c.TargetRate,
		)
	})
	return Frame{
		Samples:    Resample(frame.Samples, frame.SampleRate, c.TargetRate),
		SampleRate: c.TargetRate,
		Seq:        frame.Seq,
	}
}

// Downmix averages interleaved multi-channel samples into mono. Trailing
// samples that do not form a whole frame are dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "24000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
