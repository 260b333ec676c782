package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
)

const (
	// InputSampleRate is the rate microphone chunks are captured at
	InputSampleRate = 16000
	// OutputSampleRate is the rate the model speaks at
	OutputSampleRate = 24000
	// InputMIMEType declares the encoded microphone frames
	InputMIMEType = "audio/pcm;rate=16000"
)

// Encode converts mono samples to a base64 PCM16 blob for the live session.
func Encode(samples []float32) repositories.MediaBlob {
	return repositories.MediaBlob{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		MIMEType: InputMIMEType,
	}
}

// EncodePCM16 converts samples in [-1,1] to 16-bit signed little-endian PCM.
// Out of range values are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	v := float64(s) * 32768
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	// conversion truncates toward zero
	return int16(v)
}

// Decode reverses a base64 PCM16 payload into a playable buffer.
// Interleaved samples are split into channels planes.
func Decode(data string, sampleRate, channels int) (*entities.AudioBuffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return DecodePCM16(raw, sampleRate, channels)
}

// DecodePCM16 converts little-endian PCM16 bytes into a buffer
func DecodePCM16(raw []byte, sampleRate, channels int) (*entities.AudioBuffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("channels must be positive, got %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(raw))
	}

	total := len(raw) / 2
	frames := total / channels
	buf := &entities.AudioBuffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(raw[off:]))
			buf.Channels[c][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// BufferToPCM16 interleaves a buffer back into PCM16 bytes
func BufferToPCM16(buf *entities.AudioBuffer) []byte {
	n := buf.NumberOfChannels()
	frames := buf.Length()
	out := make([]byte, frames*n*2)
	for i := 0; i < frames; i++ {
		for c := 0; c < n; c++ {
			binary.LittleEndian.PutUint16(out[(i*n+c)*2:], uint16(floatToInt16(buf.Channels[c][i])))
		}
	}
	return out
}

// Float32FromBytes reads little-endian float32 samples, the frame format
// browsers send from their capture node.
func Float32FromBytes(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("float32 payload length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// Float32ToBytes is the inverse of Float32FromBytes
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
