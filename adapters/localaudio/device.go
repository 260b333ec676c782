// Package localaudio plays a voice session through the machine's default
// microphone and speaker with PortAudio.
package localaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
)

const (
	// outputFramesPerBuffer is the speaker callback size, about 20 ms at 24 kHz
	outputFramesPerBuffer = 480
	endedBacklog          = 64
)

var errCaptureRunning = errors.New("microphone is already capturing")

// Device implements repositories.AudioDevice on the default PortAudio
// devices. There is no permission prompt; opening the microphone only
// checks that an input device exists.
type Device struct {
	logger *zap.Logger
}

// NewDevice initializes PortAudio. Close must be called when done.
func NewDevice(logger *zap.Logger) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &Device{logger: logger}, nil
}

// Close terminates PortAudio
func (d *Device) Close() error {
	return portaudio.Terminate()
}

// OpenMicrophone implements repositories.AudioDevice
func (d *Device) OpenMicrophone(ctx context.Context) (repositories.Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}
	d.logger.Info("Using microphone", zap.String("device", input.Name))
	return &microphone{logger: d.logger}, nil
}

// OpenSpeaker implements repositories.AudioDevice
func (d *Device) OpenSpeaker(sampleRate int) (repositories.Speaker, error) {
	s := &speaker{
		mixer:  newMixer(sampleRate),
		ended:  make(chan func(), endedBacklog),
		done:   make(chan struct{}),
		logger: d.logger,
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), outputFramesPerBuffer, s.process)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}
	s.stream = stream

	go s.dispatch()
	return s, nil
}

type microphone struct {
	logger *zap.Logger

	mu   sync.Mutex
	node *captureNode
}

// Capture opens a blocking input stream read by its own goroutine
func (m *microphone) Capture(sampleRate, chunkSize int, onChunk func(samples []float32)) (repositories.CaptureNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.node != nil {
		return nil, errCaptureRunning
	}

	buffer := make([]float32, chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), chunkSize, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}

	m.node = &captureNode{
		stream:  stream,
		buffer:  buffer,
		onChunk: onChunk,
		logger:  m.logger,
		done:    make(chan struct{}),
	}
	go m.node.run()
	return m.node, nil
}

func (m *microphone) Close() error {
	return nil
}

type captureNode struct {
	stream  *portaudio.Stream
	buffer  []float32
	onChunk func([]float32)
	logger  *zap.Logger

	done chan struct{}
	once sync.Once
}

func (n *captureNode) run() {
	defer func() {
		if err := n.stream.Stop(); err != nil {
			n.logger.Warn("Failed to stop input stream", zap.Error(err))
		}
		n.stream.Close()
	}()

	for {
		select {
		case <-n.done:
			return
		default:
		}

		if err := n.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				n.logger.Debug("Microphone input overflowed")
				continue
			}
			n.logger.Error("Failed to read microphone", zap.Error(err))
			return
		}

		select {
		case <-n.done:
			return
		default:
		}
		chunk := make([]float32, len(n.buffer))
		copy(chunk, n.buffer)
		n.onChunk(chunk)
	}
}

// Disconnect stops delivery; the stream closes after the read in progress
func (n *captureNode) Disconnect() error {
	n.once.Do(func() {
		close(n.done)
	})
	return nil
}

type speaker struct {
	mixer  *mixer
	stream *portaudio.Stream
	logger *zap.Logger

	ended chan func()
	done  chan struct{}
	once  sync.Once
}

// process is the PortAudio output callback
func (s *speaker) process(out []float32) {
	for _, fn := range s.mixer.render(out) {
		select {
		case s.ended <- fn:
		default:
			go fn()
		}
	}
}

// dispatch runs clip end callbacks outside the audio thread
func (s *speaker) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.ended:
			fn()
		}
	}
}

func (s *speaker) CurrentTime() float64 {
	return s.mixer.currentTime()
}

func (s *speaker) Play(buffer *entities.AudioBuffer, at float64, onEnded func()) (repositories.PlayingClip, error) {
	if buffer.NumberOfChannels() == 0 {
		return nil, fmt.Errorf("buffer has no channels")
	}
	id := s.mixer.add(buffer.Channels[0], at, onEnded)
	return &clip{mixer: s.mixer, id: id}, nil
}

func (s *speaker) Close() error {
	var err error
	s.once.Do(func() {
		s.mixer.clear()
		close(s.done)
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

type clip struct {
	mixer *mixer
	id    uint64
}

func (c *clip) Stop() {
	c.mixer.remove(c.id)
}
