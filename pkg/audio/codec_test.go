package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/livetutor/pkg/audio"
)

func TestEncodeFrame_Descriptor(t *testing.T) {
	t.Parallel()
	chunk := audio.EncodeFrame([]float32{0, 0.5})
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q, want audio/pcm;rate=16000", chunk.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if len(raw) != 4 {
		t.Fatalf("payload length = %d, want 4", len(raw))
	}
	if got := int16(binary.LittleEndian.Uint16(raw[2:])); got != 16384 {
		t.Errorf("sample 1 = %d, want 16384", got)
	}
}

func TestEncodeFrame_Saturates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want int16
	}{
		{1.0, 32767},
		{1.5, 32767},
		{-1.0, -32768},
		{-2.0, -32768},
		{0.99999, 32767},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		raw := audio.FloatToPCM([]float32{tt.in})
		if got := int16(binary.LittleEndian.Uint16(raw)); got != tt.want {
			t.Errorf("FloatToPCM(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeFrame_Truncates(t *testing.T) {
	t.Parallel()
	// 0.1 * 32768 = 3276.8, truncated toward zero.
	raw := audio.FloatToPCM([]float32{0.1, -0.1})
	if got := int16(binary.LittleEndian.Uint16(raw)); got != 3276 {
		t.Errorf("positive: got %d, want 3276", got)
	}
	if got := int16(binary.LittleEndian.Uint16(raw[2:])); got != -3276 {
		t.Errorf("negative: got %d, want -3276", got)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	in := make([]float32, 4096)
	for i := range in {
		in[i] = float32(math.Sin(float64(i)*0.013)) * 0.999
	}
	in[0], in[1] = -1, 0

	chunk := audio.EncodeFrame(in)
	buf, err := audio.DecodeBase64Chunk(chunk, 1)
	if err != nil {
		t.Fatalf("DecodeBase64Chunk: %v", err)
	}
	if buf.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", buf.SampleRate)
	}
	if buf.Len() != len(in) {
		t.Fatalf("Len = %d, want %d", buf.Len(), len(in))
	}
	const tol = 1.0 / 32768
	for i, want := range in {
		got := buf.Samples[0][i]
		if math.Abs(float64(got-want)) > tol {
			t.Fatalf("sample %d: got %v, want %v (±%v)", i, got, want, tol)
		}
	}
}

func TestDecodeChunk_Stereo(t *testing.T) {
	t.Parallel()
	raw := make([]byte, 8)
	le := binary.LittleEndian
	le.PutUint16(raw[0:], 16384)                 // L0
	le.PutUint16(raw[2:], 0xC000)                // R0 = -16384
	le.PutUint16(raw[4:], 0x8000)                // L1 = -32768
	le.PutUint16(raw[6:], 0)                     // R1

	buf, err := audio.DecodeChunk(raw, 24000, 2)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if buf.Channels() != 2 || buf.Len() != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", buf.Channels(), buf.Len())
	}
	want := [][]float32{{0.5, -1}, {-0.5, 0}}
	for c := range want {
		for i := range want[c] {
			if buf.Samples[c][i] != want[c][i] {
				t.Errorf("channel %d sample %d: got %v, want %v", c, i, buf.Samples[c][i], want[c][i])
			}
		}
	}
}

func TestDecodeChunk_Errors(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeChunk([]byte{1, 2, 3}, 24000, 1); !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("odd length: got %v, want ErrOddLength", err)
	}
	if _, err := audio.DecodeChunk([]byte{1, 2}, 24000, 0); !errors.Is(err, audio.ErrChannels) {
		t.Errorf("zero channels: got %v, want ErrChannels", err)
	}
	if _, err := audio.DecodeBase64Chunk(audio.EncodedChunk{Data: "!!"}, 1); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecodeChunk_Empty(t *testing.T) {
	t.Parallel()
	buf, err := audio.DecodeChunk(nil, 24000, 1)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if buf.Len() != 0 || buf.Duration() != 0 {
		t.Errorf("empty chunk: len=%d duration=%v", buf.Len(), buf.Duration())
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()
	buf, err := audio.DecodeChunk(make([]byte, 24000*2), 24000, 1)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if got := buf.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
}

func TestParseMIMERate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"", 24000},
	}
	for _, tt := range tests {
		if got := audio.ParseMIMERate(tt.in, 24000); got != tt.want {
			t.Errorf("ParseMIMERate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
