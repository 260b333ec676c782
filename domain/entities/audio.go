package entities

import "time"

// AudioBuffer holds decoded, playable samples in [-1,1], one slice per channel.
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumberOfChannels returns the channel count
func (b *AudioBuffer) NumberOfChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Length returns the number of sample frames
func (b *AudioBuffer) Length() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length in seconds
func (b *AudioBuffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Length()) / float64(b.SampleRate)
}

// DurationTime is Duration as a time.Duration
func (b *AudioBuffer) DurationTime() time.Duration {
	return time.Duration(b.Duration() * float64(time.Second))
}
