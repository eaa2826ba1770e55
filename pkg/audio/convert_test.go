package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/livetutor/pkg/audio"
)

func TestDownmix(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=0.2,R=0.4 and L=-0.2,R=-0.4
	got := audio.Downmix([]float32{0.2, 0.4, -0.2, -0.4}, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDownmix_Mono(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2}
	got := audio.Downmix(in, 1)
	if &got[0] != &in[0] {
		t.Error("expected mono input to be returned unchanged")
	}
}

func TestResample_SameRate(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResample_Upsample(t *testing.T) {
	t.Parallel()
	in := make([]float32, 160)
	for i := range in {
		in[i] = 0.5
	}
	out := audio.Resample(in, 16000, 48000)
	if len(out) != 480 {
		t.Fatalf("length: got %d, want 480", len(out))
	}
	for i, s := range out {
		if math.Abs(float64(s-0.5)) > 1e-6 {
			t.Fatalf("sample %d: got %f, want 0.5", i, s)
		}
	}
}

func TestResample_Downsample(t *testing.T) {
	t.Parallel()
	in := make([]float32, 480)
	out := audio.Resample(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("length: got %d, want 160", len(out))
	}
}

func TestResample_InvalidRates(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2}
	if got := audio.Resample(in, 0, 16000); len(got) != len(in) {
		t.Errorf("zero src rate: got %d samples, want %d", len(got), len(in))
	}
	if got := audio.Resample(in, 16000, -1); len(got) != len(in) {
		t.Errorf("negative dst rate: got %d samples, want %d", len(got), len(in))
	}
}

func TestConverter_PassThrough(t *testing.T) {
	t.Parallel()
	c := audio.Converter{TargetRate: 16000}
	in := audio.Frame{Samples: []float32{0.1, 0.2}, SampleRate: 16000, Seq: 3}
	out := c.Convert(in)
	if &out.Samples[0] != &in.Samples[0] {
		t.Error("expected matching frame to be returned unchanged")
	}
}

func TestConverter_Resamples(t *testing.T) {
	t.Parallel()
	c := audio.Converter{TargetRate: 16000}
	in := audio.Frame{Samples: make([]float32, 480), SampleRate: 48000, Seq: 7}
	out := c.Convert(in)
	if out.SampleRate != 16000 {
		t.Errorf("rate: got %d, want 16000", out.SampleRate)
	}
	if len(out.Samples) != 160 {
		t.Errorf("samples: got %d, want 160", len(out.Samples))
	}
	if out.Seq != 7 {
		t.Errorf("seq: got %d, want 7", out.Seq)
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 24000, Channels: 1}, "24000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 48000, Channels: 6}, "48000Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format%+v.String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}
