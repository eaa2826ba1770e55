package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
)

// Sample rates used by the live transport.
const (
	// InputSampleRate is the rate microphone audio is captured and sent at.
	InputSampleRate = 16000

	// OutputSampleRate is the rate the remote model streams audio back at.
	OutputSampleRate = 24000
)

// pcmScale maps float samples to the int16 range and back.
const pcmScale = 32768.0

var (
	// ErrOddLength is returned when a PCM payload is not a whole number of int16 samples.
	ErrOddLength = errors.New("audio: odd PCM byte length")

	// ErrChannels is returned for a channel count below one.
	ErrChannels = errors.New("audio: channel count must be at least 1")
)

// MIMEType returns the transport descriptor for 16-bit PCM at rate.
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParseMIMERate extracts the rate parameter from a descriptor such as
// "audio/pcm;rate=24000". It returns fallback when the descriptor carries no
// usable rate.
func ParseMIMERate(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}

// EncodeFrame converts float samples to base64 16-bit little-endian PCM tagged
// with the 16 kHz input descriptor. Samples are scaled by 32768 and truncated
// toward zero; values at or beyond full scale saturate.
func EncodeFrame(samples []float32) EncodedChunk {
	return EncodedChunk{
		MIMEType: MIMEType(InputSampleRate),
		Data:     base64.StdEncoding.EncodeToString(FloatToPCM(samples)),
	}
}

// FloatToPCM converts float samples to raw 16-bit little-endian PCM bytes.
func FloatToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := float64(s) * pcmScale
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// DecodeChunk converts raw 16-bit little-endian interleaved PCM into a playable
// Buffer. Each sample is divided by 32768 and channels are de-interleaved; the
// frame count is len(data)/2/channels.
func DecodeChunk(data []byte, sampleRate, channels int) (Buffer, error) {
	if channels < 1 {
		return Buffer{}, ErrChannels
	}
	if len(data)%2 != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}
	frames := len(data) / 2 / channels
	buf := Buffer{
		Samples:    make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range channels {
		buf.Samples[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			buf.Samples[c][i] = float32(int16(binary.LittleEndian.Uint16(data[off:]))) / pcmScale
		}
	}
	return buf, nil
}

// DecodeBase64Chunk decodes the base64 payload of an EncodedChunk and then its
// PCM. The sample rate comes from the chunk's descriptor.
func DecodeBase64Chunk(chunk EncodedChunk, channels int) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode base64: %w", err)
	}
	return DecodeChunk(raw, ParseMIMERate(chunk.MIMEType, OutputSampleRate), channels)
}
