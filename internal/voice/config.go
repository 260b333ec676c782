package voice

import (
	"fmt"

	"github.com/satriahrh/englichat/domain"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/audio"
)

const (
	// DefaultModel is the native audio model used for voice calls
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	// DefaultVoice is the prebuilt voice of the tutor
	DefaultVoice = "Zephyr"
	// DefaultChunkSize is the number of microphone samples per forwarded frame
	DefaultChunkSize = 4096
)

// Config is the fixed setup every voice session is opened with
type Config struct {
	Live      repositories.LiveConfig
	ChunkSize int
}

// DefaultConfig returns the tutor voice setup: 16 kHz in, 24 kHz out,
// both transcriptions enabled.
func DefaultConfig() Config {
	return Config{
		Live: repositories.LiveConfig{
			Model:                    DefaultModel,
			VoiceName:                DefaultVoice,
			SystemInstruction:        domain.TutorSystemPrompt,
			InputSampleRate:          audio.InputSampleRate,
			OutputSampleRate:         audio.OutputSampleRate,
			InputAudioTranscription:  true,
			OutputAudioTranscription: true,
		},
		ChunkSize: DefaultChunkSize,
	}
}

// Validate checks the session setup
func (c Config) Validate() error {
	if c.Live.Model == "" {
		return fmt.Errorf("live model is required")
	}
	if c.Live.InputSampleRate <= 0 || c.Live.OutputSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive, got in=%d out=%d", c.Live.InputSampleRate, c.Live.OutputSampleRate)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}
