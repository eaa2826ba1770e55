package audio

import "encoding/binary"

// WAVHeaderSize is the size of the canonical PCM WAV header.
const WAVHeaderSize = 44

// BuildWAVHeader returns the 44-byte RIFF/WAVE header for payloadLen bytes of
// mono 16-bit PCM at sampleRate.
func BuildWAVHeader(payloadLen, sampleRate int) [WAVHeaderSize]byte {
	const (
		channels      = 1
		bitsPerSample = 16
		blockAlign    = channels * bitsPerSample / 8
	)
	var h [WAVHeaderSize]byte
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(36+payloadLen))
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1) // PCM
	le.PutUint16(h[22:24], channels)
	le.PutUint32(h[24:28], uint32(sampleRate))
	le.PutUint32(h[28:32], uint32(sampleRate*blockAlign))
	le.PutUint16(h[32:34], blockAlign)
	le.PutUint16(h[34:36], bitsPerSample)

	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(payloadLen))
	return h
}

// EncodeWAV prefixes pcm with a WAV header so it can be played as a one-shot clip.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	h := BuildWAVHeader(len(pcm), sampleRate)
	out := make([]byte, 0, WAVHeaderSize+len(pcm))
	out = append(out, h[:]...)
	return append(out, pcm...)
}
