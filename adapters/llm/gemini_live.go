package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/englichat/domain/repositories"
)

const defaultSendQueueSize = 64

var (
	// ErrSendQueueFull is returned when the outbound audio queue is saturated
	ErrSendQueueFull = errors.New("live send queue full")
	// ErrLiveSessionClosed is returned when sending on a closed session
	ErrLiveSessionClosed = errors.New("live session closed")
)

// GeminiLive implements the LiveModel interface on the Gemini Live API
type GeminiLive struct {
	client    *genai.Client
	logger    *zap.Logger
	queueSize int
}

// NewGeminiLive creates a live model adapter. queueSize bounds the frames
// waiting to be written; 0 selects the default.
func NewGeminiLive(client *genai.Client, logger *zap.Logger, queueSize int) *GeminiLive {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &GeminiLive{
		client:    client,
		logger:    logger,
		queueSize: queueSize,
	}
}

// liveConnectConfig maps the session setup onto the SDK request
func liveConnectConfig(config repositories.LiveConfig) *genai.LiveConnectConfig {
	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if config.VoiceName != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.VoiceName},
			},
		}
	}
	if config.SystemInstruction != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}
	if config.InputAudioTranscription {
		connectConfig.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if config.OutputAudioTranscription {
		connectConfig.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return connectConfig
}

// Connect opens a live session. Events are delivered from one receive
// goroutine; OnOpen fires when the service acknowledges the setup.
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveSession, error) {
	session, err := g.client.Live.Connect(ctx, config.Model, liveConnectConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect live model %s: %w", config.Model, err)
	}

	s := &geminiLiveSession{
		conn:      session,
		callbacks: callbacks,
		logger:    g.logger.With(zap.String("model", config.Model)),
		queue:     make(chan repositories.MediaBlob, g.queueSize),
		done:      make(chan struct{}),
	}

	go s.writeLoop()
	go s.receiveLoop()

	s.logger.Info("Live session connected")
	return s, nil
}

// liveConn is the part of *genai.Session the adapter uses
type liveConn interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type geminiLiveSession struct {
	conn      liveConn
	callbacks repositories.LiveCallbacks
	logger    *zap.Logger

	queue chan repositories.MediaBlob
	done  chan struct{}

	closeOnce sync.Once
	opened    bool
}

// SendAudio queues frame for the writer goroutine without waiting
func (s *geminiLiveSession) SendAudio(frame repositories.MediaBlob) error {
	select {
	case <-s.done:
		return ErrLiveSessionClosed
	default:
	}

	select {
	case s.queue <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close ends the session. It does not wait for the receive goroutine, so
// it is safe to call from a callback.
func (s *geminiLiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.logger.Info("Live session closed")
	})
	return err
}

func (s *geminiLiveSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *geminiLiveSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			data, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				s.logger.Warn("Dropping malformed audio frame", zap.Error(err))
				continue
			}
			err = s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
				Audio: &genai.Blob{Data: data, MIMEType: frame.MIMEType},
			})
			if err != nil && !s.closed() {
				s.logger.Warn("Failed to send audio frame", zap.Error(err))
			}
		}
	}
}

func (s *geminiLiveSession) receiveLoop() {
	for {
		message, err := s.conn.Receive()
		if err != nil {
			s.finish(err)
			return
		}
		s.dispatch(message)
	}
}

// finish reports the end of the receive stream. A normal closure or a
// close we asked for is a close, anything else is an error.
func (s *geminiLiveSession) finish(err error) {
	if s.closed() {
		s.fireClose("closed by client")
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		s.logger.Info("Live session closed by service",
			zap.Int("code", closeErr.Code),
			zap.String("reason", closeErr.Text))
		s.fireClose(closeErr.Text)
		return
	}

	s.logger.Error("Live session receive failed", zap.Error(err))
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

func (s *geminiLiveSession) fireClose(reason string) {
	if s.callbacks.OnClose != nil {
		s.callbacks.OnClose(reason)
	}
}

func (s *geminiLiveSession) dispatch(message *genai.LiveServerMessage) {
	if !s.opened {
		s.opened = true
		if s.callbacks.OnOpen != nil {
			s.callbacks.OnOpen()
		}
	}

	if message.GoAway != nil {
		s.logger.Warn("Live service is going away")
	}

	event, ok := toLiveEvent(message)
	if !ok || s.callbacks.OnMessage == nil {
		return
	}
	s.callbacks.OnMessage(event)
}

// toLiveEvent extracts the server content the controller consumes. The
// audio is the first inline part of the model turn.
func toLiveEvent(message *genai.LiveServerMessage) (repositories.LiveEvent, bool) {
	content := message.ServerContent
	if content == nil {
		return repositories.LiveEvent{}, false
	}

	event := repositories.LiveEvent{
		TurnComplete: content.TurnComplete,
		Interrupted:  content.Interrupted,
	}
	if content.InputTranscription != nil {
		event.InputTranscription = content.InputTranscription.Text
	}
	if content.OutputTranscription != nil {
		event.OutputTranscription = content.OutputTranscription.Text
	}
	if turn := content.ModelTurn; turn != nil && len(turn.Parts) > 0 {
		if blob := turn.Parts[0].InlineData; blob != nil && len(blob.Data) > 0 {
			event.AudioData = base64.StdEncoding.EncodeToString(blob.Data)
		}
	}
	return event, true
}
