package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/audio"
)

// captureBacklog is how many chunks may wait for the capture callback
const captureBacklog = 32

var (
	errNoMicrophone   = errors.New("no microphone is open")
	errSpeakerClosed  = errors.New("speaker closed")
	errAlreadyCapture = errors.New("microphone is already capturing")
)

// sender is the outbound half of a client connection. It never blocks.
type sender interface {
	sendJSON(v interface{}) error
}

type permission struct {
	granted    bool
	sampleRate int
	reason     string
}

// BrowserDevice is the audio platform of one connected browser. The
// microphone arrives as binary frames of float32 samples and the speaker
// is driven with audio_clip messages on a clock shared with the browser.
type BrowserDevice struct {
	out    sender
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending chan permission
	mic     *browserMicrophone
}

// NewBrowserDevice creates a device that talks to the browser through out
func NewBrowserDevice(out sender, logger *zap.Logger) *BrowserDevice {
	return &BrowserDevice{
		out:    out,
		logger: logger,
		now:    time.Now,
	}
}

// OpenMicrophone sends mic_request and waits for the browser's answer
func (d *BrowserDevice) OpenMicrophone(ctx context.Context) (repositories.Microphone, error) {
	d.mu.Lock()
	if d.pending != nil || d.mic != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: microphone already in use", repositories.ErrDeviceUnavailable)
	}
	reply := make(chan permission, 1)
	d.pending = reply
	d.mu.Unlock()

	err := d.out.sendJSON(&MicRequestMessage{
		BaseMessage: newBase(MessageTypeMicRequest),
		SampleRate:  audio.InputSampleRate,
	})
	if err != nil {
		d.abandon(reply)
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}

	select {
	case <-ctx.Done():
		d.abandon(reply)
		return nil, ctx.Err()
	case answer := <-reply:
		if !answer.granted {
			return nil, fmt.Errorf("%w: %s", repositories.ErrPermissionDenied, answer.reason)
		}
		mic := &browserMicrophone{device: d, sampleRate: answer.sampleRate}
		d.mu.Lock()
		d.mic = mic
		d.mu.Unlock()
		d.logger.Info("Browser microphone granted", zap.Int("sampleRate", answer.sampleRate))
		return mic, nil
	}
}

// abandon forgets a request nobody waits for. A grant that raced with it
// is released again so the browser stops its tracks. The drain happens
// under d.mu, the same lock resolvePermission delivers under, so an answer
// is either drained here or finds no pending request.
func (d *BrowserDevice) abandon(reply chan permission) {
	d.mu.Lock()
	if d.pending == reply {
		d.pending = nil
	}
	var late permission
	select {
	case late = <-reply:
	default:
	}
	d.mu.Unlock()

	if late.granted {
		d.notify(&MicReleaseMessage{BaseMessage: newBase(MessageTypeMicRelease)})
	}
}

// resolvePermission delivers the browser's answer to the pending request
func (d *BrowserDevice) resolvePermission(answer permission) {
	d.mu.Lock()
	reply := d.pending
	d.pending = nil
	if reply != nil {
		// buffered for exactly this one answer
		reply <- answer
	}
	d.mu.Unlock()

	if reply == nil {
		d.logger.Warn("Microphone answer without a pending request", zap.Bool("granted", answer.granted))
		if answer.granted {
			d.notify(&MicReleaseMessage{BaseMessage: newBase(MessageTypeMicRelease)})
		}
	}
}

// HandleFrame feeds one binary microphone frame to the open microphone
func (d *BrowserDevice) HandleFrame(frame []byte) error {
	samples, err := audio.Float32FromBytes(frame)
	if err != nil {
		return err
	}

	d.mu.Lock()
	mic := d.mic
	d.mu.Unlock()
	if mic == nil {
		return errNoMicrophone
	}
	mic.push(samples)
	return nil
}

// OpenSpeaker sends speaker_open; the speaker clock starts now
func (d *BrowserDevice) OpenSpeaker(sampleRate int) (repositories.Speaker, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", repositories.ErrDeviceUnavailable, sampleRate)
	}

	err := d.out.sendJSON(&SpeakerOpenMessage{
		BaseMessage: newBase(MessageTypeSpeakerOpen),
		SampleRate:  sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrDeviceUnavailable, err)
	}

	return &browserSpeaker{
		device:     d,
		sampleRate: sampleRate,
		opened:     d.now(),
		clips:      make(map[uint64]*browserClip),
	}, nil
}

func (d *BrowserDevice) detachMic(mic *browserMicrophone) {
	d.mu.Lock()
	if d.mic == mic {
		d.mic = nil
	}
	d.mu.Unlock()
}

// notify sends a release notification. The browser may already be gone.
func (d *BrowserDevice) notify(msg interface{}) {
	if err := d.out.sendJSON(msg); err != nil {
		d.logger.Debug("Failed to notify browser", zap.Error(err))
	}
}

type browserMicrophone struct {
	device     *BrowserDevice
	sampleRate int

	mu     sync.Mutex
	node   *captureNode
	closed bool
}

func (m *browserMicrophone) Capture(sampleRate, chunkSize int, onChunk func(samples []float32)) (repositories.CaptureNode, error) {
	if sampleRate != m.sampleRate {
		return nil, fmt.Errorf("%w: browser captures at %d Hz, want %d Hz",
			repositories.ErrDeviceUnavailable, m.sampleRate, sampleRate)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errNoMicrophone
	}
	if m.node != nil {
		return nil, errAlreadyCapture
	}
	m.node = newCaptureNode(chunkSize, onChunk, m.device.logger)
	return m.node, nil
}

func (m *browserMicrophone) push(samples []float32) {
	m.mu.Lock()
	node := m.node
	m.mu.Unlock()
	if node != nil {
		node.push(samples)
	}
}

func (m *browserMicrophone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.node = nil
	m.mu.Unlock()

	m.device.detachMic(m)
	m.device.notify(&MicReleaseMessage{BaseMessage: newBase(MessageTypeMicRelease)})
	return nil
}

// captureNode regroups browser frames into fixed-size chunks and delivers
// them in order from its own goroutine.
type captureNode struct {
	chunkSize int
	onChunk   func([]float32)
	logger    *zap.Logger

	mu      sync.Mutex
	pending []float32

	chunks chan []float32
	done   chan struct{}
	once   sync.Once
}

func newCaptureNode(chunkSize int, onChunk func([]float32), logger *zap.Logger) *captureNode {
	n := &captureNode{
		chunkSize: chunkSize,
		onChunk:   onChunk,
		logger:    logger,
		chunks:    make(chan []float32, captureBacklog),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *captureNode) push(samples []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	select {
	case <-n.done:
		return
	default:
	}

	n.pending = append(n.pending, samples...)
	for len(n.pending) >= n.chunkSize {
		chunk := make([]float32, n.chunkSize)
		copy(chunk, n.pending)
		n.pending = append(n.pending[:0], n.pending[n.chunkSize:]...)

		select {
		case n.chunks <- chunk:
		default:
			n.logger.Warn("Dropping microphone chunk, capture is behind", zap.Int("samples", len(chunk)))
		}
	}
}

func (n *captureNode) run() {
	for {
		select {
		case <-n.done:
			return
		case chunk := <-n.chunks:
			n.onChunk(chunk)
		}
	}
}

func (n *captureNode) Disconnect() error {
	n.once.Do(func() {
		close(n.done)
	})
	return nil
}

// browserSpeaker keeps a virtual clock in step with the browser's output
// context. A clip ends when its timer fires at start+duration.
type browserSpeaker struct {
	device     *BrowserDevice
	sampleRate int
	opened     time.Time

	mu     sync.Mutex
	nextID uint64
	clips  map[uint64]*browserClip
	closed bool
}

func (s *browserSpeaker) CurrentTime() float64 {
	return s.device.now().Sub(s.opened).Seconds()
}

func (s *browserSpeaker) Play(buffer *entities.AudioBuffer, at float64, onEnded func()) (repositories.PlayingClip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errSpeakerClosed
	}

	s.nextID++
	id := s.nextID
	err := s.device.out.sendJSON(&AudioClipMessage{
		BaseMessage: newBase(MessageTypeAudioClip),
		ClipID:      id,
		StartTime:   at,
		Duration:    buffer.Duration(),
		SampleRate:  buffer.SampleRate,
		AudioData:   base64.StdEncoding.EncodeToString(audio.BufferToPCM16(buffer)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send clip %d: %w", id, err)
	}

	wait := time.Duration((at + buffer.Duration() - s.CurrentTime()) * float64(time.Second))
	if wait < 0 {
		wait = 0
	}
	clip := &browserClip{speaker: s, id: id}
	// The timer cannot observe the map before we unlock.
	clip.timer = time.AfterFunc(wait, func() {
		if s.finish(id) && onEnded != nil {
			onEnded()
		}
	})
	s.clips[id] = clip
	return clip, nil
}

// finish reports whether id was still playing and forgets it
func (s *browserSpeaker) finish(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clips[id]
	delete(s.clips, id)
	return ok
}

func (s *browserSpeaker) stop(clip *browserClip) {
	s.mu.Lock()
	if _, ok := s.clips[clip.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clips, clip.id)
	clip.timer.Stop()
	s.mu.Unlock()

	s.device.notify(&AudioStopMessage{BaseMessage: newBase(MessageTypeAudioStop), ClipID: clip.id})
}

func (s *browserSpeaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, clip := range s.clips {
		clip.timer.Stop()
		delete(s.clips, id)
	}
	s.mu.Unlock()

	s.device.notify(&SpeakerCloseMessage{BaseMessage: newBase(MessageTypeSpeakerClose)})
	return nil
}

type browserClip struct {
	speaker *browserSpeaker
	id      uint64
	timer   *time.Timer
}

func (c *browserClip) Stop() {
	c.speaker.stop(c)
}
