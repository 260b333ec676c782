// Package voice runs one real-time voice conversation: it owns the
// microphone, the speaker and the live model session, and folds the
// session's events into a transcript.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain"
	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/audio"
	"github.com/satriahrh/englichat/internal/metrics"
	"github.com/satriahrh/englichat/internal/playback"
	"github.com/satriahrh/englichat/internal/transcript"
)

var (
	// ErrSessionBusy is returned by Start when the controller is not idle
	ErrSessionBusy = errors.New("voice session already in progress")
	// ErrSessionClosed is returned by Start when Stop ran while it was starting
	ErrSessionClosed = errors.New("voice session stopped while starting")
)

// Snapshot is the state a client renders
type Snapshot struct {
	Status      entities.SessionStatus     `json:"status"`
	Transcripts []entities.TranscriptEntry `json:"transcripts"`
}

// Observer receives a snapshot after every status or transcript change.
// It is called with the controller lock held, in change order, and must
// not call back into the controller.
type Observer func(Snapshot)

// Option configures a Controller
type Option func(*Controller)

// WithObserver registers the snapshot observer
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithTranscriptOptions configures the transcript engine
func WithTranscriptOptions(opts ...transcript.Option) Option {
	return func(c *Controller) {
		c.transcript = transcript.NewEngine(opts...)
	}
}

// Controller is the session state machine:
//
//	idle -> connecting -> active -> closing -> idle
//
// with error reachable from connecting and active. Callbacks of a session
// that has been stopped are ignored.
type Controller struct {
	mu sync.Mutex

	device repositories.AudioDevice
	live   repositories.LiveModel
	config Config

	logger   *zap.Logger
	metrics  *metrics.Metrics
	observer Observer

	status     entities.SessionStatus
	transcript *transcript.Engine
	generation uint64
	opened     bool

	res resources
}

// resources are the handles held by one session
type resources struct {
	mic       repositories.Microphone
	capture   repositories.CaptureNode
	speaker   repositories.Speaker
	scheduler *playback.Scheduler
	session   repositories.LiveSession
	openedAt  time.Time
	// cancel aborts a pending permission prompt or connection attempt
	cancel context.CancelFunc
}

// NewController creates an idle controller
func NewController(
	device repositories.AudioDevice,
	live repositories.LiveModel,
	config Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		device:     device,
		live:       live,
		config:     config,
		logger:     logger,
		metrics:    m,
		status:     entities.SessionStatusIdle,
		transcript: transcript.NewEngine(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current state
func (c *Controller) Status() entities.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the current state and transcript
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start acquires the microphone, opens the speaker and connects the live
// session. It returns once the session is connecting or active; a failed
// start leaves the controller in the error state (microphone) or back in
// idle (connection) with a notice in the transcript.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != entities.SessionStatusIdle {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.generation++
	gen := c.generation
	c.opened = false
	ctx, c.res.cancel = context.WithCancel(ctx)
	c.transcript.Reset(notice(domain.NoticeIDStart, domain.ConnectingNotice))
	c.setStatusLocked(entities.SessionStatusConnecting)
	c.metrics.RecordSessionStarted()
	c.mu.Unlock()

	c.logger.Info("Starting voice session", zap.Uint64("generation", gen))

	mic, err := c.device.OpenMicrophone(ctx)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if mic != nil {
			mic.Close()
		}
		return ErrSessionClosed
	}
	if err != nil {
		held := c.failStartLocked("microphone", err)
		c.mu.Unlock()
		c.release(held)
		return fmt.Errorf("failed to open microphone: %w", err)
	}
	c.res.mic = mic

	speaker, err := c.device.OpenSpeaker(c.config.Live.OutputSampleRate)
	if err != nil {
		held := c.failStartLocked("speaker", err)
		c.mu.Unlock()
		c.release(held)
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	c.res.speaker = speaker
	c.res.scheduler = playback.NewScheduler(speaker, c.logger, c.metrics)
	c.mu.Unlock()

	session, err := c.live.Connect(ctx, c.config.Live, c.callbacks(gen))

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if session != nil {
			session.Close()
		}
		return ErrSessionClosed
	}
	if err != nil {
		c.logger.Error("Failed to connect live session", zap.Error(err))
		held := c.connectionErrorLocked()
		c.mu.Unlock()
		c.finishTeardown(held)
		return fmt.Errorf("failed to connect live session: %w", err)
	}
	c.res.session = session
	c.res.openedAt = time.Now()
	c.metrics.RecordSessionOpened()

	if c.opened {
		if held, err := c.activateLocked(gen); err != nil {
			c.mu.Unlock()
			c.release(held)
			return err
		}
	}
	c.mu.Unlock()
	return nil
}

// Stop tears the session down from any state and returns to idle. It is
// safe to call repeatedly and with partially acquired resources; release
// failures are logged and joined into the returned error.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.status == entities.SessionStatusIdle || c.status == entities.SessionStatusClosing {
		c.mu.Unlock()
		return nil
	}
	held := c.detachLocked()
	c.setStatusLocked(entities.SessionStatusClosing)
	c.mu.Unlock()

	c.logger.Info("Stopping voice session")
	return c.finishTeardown(held)
}

func (c *Controller) callbacks(gen uint64) repositories.LiveCallbacks {
	return repositories.LiveCallbacks{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(event repositories.LiveEvent) { c.handleMessage(gen, event) },
		OnError:   func(err error) { c.handleError(gen, err) },
		OnClose:   func(reason string) { c.handleClose(gen, reason) },
	}
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.opened = true
	if c.res.session == nil {
		// Connect has not returned yet; Start activates the session.
		c.mu.Unlock()
		return
	}
	held, err := c.activateLocked(gen)
	c.mu.Unlock()
	if err != nil {
		c.release(held)
	}
}

// activateLocked moves connecting to active and starts the capture. When
// capture cannot start the session fails like a microphone error and the
// returned resources must be released by the caller.
func (c *Controller) activateLocked(gen uint64) (resources, error) {
	if c.status != entities.SessionStatusConnecting {
		return resources{}, nil
	}

	node, err := c.res.mic.Capture(c.config.Live.InputSampleRate, c.config.ChunkSize, func(samples []float32) {
		c.forward(gen, samples)
	})
	if err != nil {
		return c.failStartLocked("capture", err), fmt.Errorf("failed to start microphone capture: %w", err)
	}
	c.res.capture = node

	c.transcript.ReplaceLast(notice(domain.NoticeIDConnected, domain.ConnectedNotice))
	c.setStatusLocked(entities.SessionStatusActive)
	c.logger.Info("Voice session active", zap.Uint64("generation", gen))
	return resources{}, nil
}

// forward encodes one microphone chunk and hands it to the session without
// waiting for delivery. Failures are counted and never end the session.
func (c *Controller) forward(gen uint64, samples []float32) {
	c.mu.Lock()
	if gen != c.generation || c.status != entities.SessionStatusActive || c.res.session == nil {
		c.mu.Unlock()
		return
	}
	session := c.res.session
	c.mu.Unlock()

	if err := session.SendAudio(audio.Encode(samples)); err != nil {
		c.metrics.RecordChunkSendFailure()
		c.logger.Warn("Failed to send audio chunk", zap.Int("samples", len(samples)), zap.Error(err))
		return
	}
	c.metrics.RecordChunkForwarded()
}

func (c *Controller) handleMessage(gen uint64, event repositories.LiveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}

	before := c.transcript.Len()
	changed := false
	if event.InputTranscription != "" {
		c.transcript.Ingest(entities.SenderUser, event.InputTranscription)
		changed = true
	}
	if event.OutputTranscription != "" {
		c.transcript.Ingest(entities.SenderAssistant, event.OutputTranscription)
		changed = true
	}
	if event.TurnComplete {
		c.transcript.CompleteTurn()
		changed = true
	}

	if event.AudioData != "" && c.res.scheduler != nil {
		c.playLocked(event.AudioData)
	}
	if event.Interrupted && c.res.scheduler != nil {
		c.res.scheduler.Interrupt()
	}

	if changed {
		c.logger.Debug("Transcript updated",
			zap.Int("entriesBefore", before),
			zap.Int("entries", c.transcript.Len()),
			zap.Bool("turnComplete", event.TurnComplete))
		c.notifyLocked()
	}
}

func (c *Controller) playLocked(data string) {
	buffer, err := audio.Decode(data, c.config.Live.OutputSampleRate, 1)
	if err != nil {
		c.metrics.RecordDecodeError()
		c.logger.Warn("Failed to decode response audio", zap.Error(err))
		return
	}
	if _, err := c.res.scheduler.Schedule(buffer); err != nil {
		c.logger.Warn("Failed to schedule response audio", zap.Error(err))
	}
}

func (c *Controller) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.logger.Error("Live session error", zap.Error(err))
	held := c.connectionErrorLocked()
	c.mu.Unlock()

	c.finishTeardown(held)
}

func (c *Controller) handleClose(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.logger.Info("Live session closed by service", zap.String("reason", reason))
	held := c.detachLocked()
	c.setStatusLocked(entities.SessionStatusClosing)
	c.mu.Unlock()

	c.finishTeardown(held)
}

// failStartLocked handles a failure before the session could run: the
// transcript is replaced by the failure notice and the state stays error
// until Stop. The detached resources must be released by the caller.
func (c *Controller) failStartLocked(reason string, err error) resources {
	c.logger.Error("Failed to start voice session", zap.String("reason", reason), zap.Error(err))
	c.metrics.RecordSessionFailed(reason)

	held := c.detachLocked()
	c.transcript.Reset(notice(domain.NoticeIDFail, domain.MicrophoneFailureNotice))
	c.setStatusLocked(entities.SessionStatusError)
	return held
}

// connectionErrorLocked appends the error notice, moves to error and then
// to closing. The caller finishes the teardown outside the lock.
func (c *Controller) connectionErrorLocked() resources {
	c.metrics.RecordSessionFailed("connection")
	c.transcript.Notice(domain.NoticeIDError, domain.ConnectionErrorNotice)
	c.setStatusLocked(entities.SessionStatusError)

	held := c.detachLocked()
	c.setStatusLocked(entities.SessionStatusClosing)
	return held
}

// detachLocked invalidates the current generation and takes every handle
// out of the controller.
func (c *Controller) detachLocked() resources {
	c.generation++
	c.opened = false
	held := c.res
	c.res = resources{}
	return held
}

// finishTeardown releases held and moves closing to idle
func (c *Controller) finishTeardown(held resources) error {
	err := c.release(held)

	c.mu.Lock()
	if c.status == entities.SessionStatusClosing {
		c.setStatusLocked(entities.SessionStatusIdle)
	}
	c.mu.Unlock()
	return err
}

// release stops the microphone, then the capture, the playback and the
// session. Every handle is released even when an earlier one fails.
func (c *Controller) release(held resources) error {
	if held.cancel != nil {
		held.cancel()
	}

	var errs []error
	if held.mic != nil {
		if err := held.mic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
	}
	if held.capture != nil {
		if err := held.capture.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect capture: %w", err))
		}
	}
	if held.scheduler != nil {
		held.scheduler.Stop()
	}
	if held.speaker != nil {
		if err := held.speaker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close speaker: %w", err))
		}
	}
	if held.session != nil {
		if err := held.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close live session: %w", err))
		}
		c.metrics.RecordSessionClosed(time.Since(held.openedAt))
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warn("Voice session released with errors", zap.Error(err))
	}
	return err
}

func (c *Controller) setStatusLocked(next entities.SessionStatus) {
	if err := c.status.ValidateTransition(next); err != nil {
		c.logger.Warn("Unexpected voice state transition", zap.Error(err))
	}
	c.status = next
	c.metrics.RecordTransition(string(next))
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer(c.snapshotLocked())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      c.status,
		Transcripts: c.transcript.Entries(),
	}
}

func notice(id, text string) entities.TranscriptEntry {
	return entities.TranscriptEntry{
		ID:      id,
		Sender:  entities.SenderAssistant,
		Text:    text,
		IsFinal: true,
	}
}
