package audio

import "time"

// Frame is one fixed-size block of captured samples in [-1, 1]. Frames are the
// atomic unit of the capture path: a device delivers them, the codec encodes
// them, and the transport sends them. They are never retained after sending.
type Frame struct {
	// Samples holds mono float samples. Values outside [-1, 1] are clamped on encode.
	Samples []float32

	// SampleRate in Hz (16000 for the live transport's input).
	SampleRate int

	// Seq numbers frames in capture order, starting at zero per stream.
	Seq uint64
}

// EncodedChunk is the wire form of a block of audio: base64 of 16-bit
// little-endian signed PCM plus a mime-style descriptor.
type EncodedChunk struct {
	// MIMEType is "audio/pcm;rate=<hz>".
	MIMEType string

	// Data is the base64 (standard alphabet, padded) payload.
	Data string
}

// Buffer is decoded PCM ready for playback. Samples are stored per channel so a
// speaker can render planar audio without another pass.
type Buffer struct {
	// Samples[c][i] is sample i of channel c.
	Samples [][]float32

	SampleRate int
}

// Channels reports the number of channels in b.
func (b Buffer) Channels() int { return len(b.Samples) }

// Len reports the number of sample frames (samples per channel).
func (b Buffer) Len() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration is the wall-clock length of the buffer at its sample rate.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}
