package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/englichat/domain/entities"
)

var (
	// ErrPermissionDenied is returned when the user refuses microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable is returned when no audio device can be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// AudioDevice is the platform that owns the microphone and the speaker
type AudioDevice interface {
	// OpenMicrophone acquires microphone access, waiting for a permission grant
	OpenMicrophone(ctx context.Context) (Microphone, error)
	// OpenSpeaker creates an output context playing at sampleRate
	OpenSpeaker(sampleRate int) (Speaker, error)
}

// Microphone is an acquired capture stream
type Microphone interface {
	// Capture starts delivering chunks of chunkSize mono samples at sampleRate.
	// onChunk is called from a single goroutine, in capture order.
	Capture(sampleRate, chunkSize int, onChunk func(samples []float32)) (CaptureNode, error)
	// Close stops the microphone tracks
	Close() error
}

// CaptureNode is the processing node feeding chunks to the callback
type CaptureNode interface {
	Disconnect() error
}

// Speaker is an output context with its own playback clock
type Speaker interface {
	// CurrentTime is the playback clock in seconds since the speaker opened
	CurrentTime() float64
	// Play schedules buffer to start at the given clock time. onEnded is
	// called once when playback finishes naturally, never from inside Play.
	Play(buffer *entities.AudioBuffer, at float64, onEnded func()) (PlayingClip, error)
	Close() error
}

// PlayingClip is a handle to one scheduled buffer
type PlayingClip interface {
	// Stop silences the clip. The clip's onEnded is not called.
	Stop()
}
