package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/audio"
)

// MockGeminiClient is a canned LargeLanguageModel for running without an API key
type MockGeminiClient struct{}

// NewMockGeminiClient creates a new mock Gemini client
func NewMockGeminiClient() *MockGeminiClient {
	return &MockGeminiClient{}
}

// GenerateChat implements repositories.LargeLanguageModel
func (g *MockGeminiClient) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockGeminiChatSession{
		history: append([]repositories.ChatMessage(nil), history...),
	}, nil
}

// MockGeminiChatSession implements repositories.ChatSession
type MockGeminiChatSession struct {
	mu      sync.Mutex
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (g *MockGeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return repositories.ChatMessage{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var response string
	switch {
	case strings.TrimSpace(message.Content) == "":
		response = "Hello! Type a sentence and I will help you make it sound natural."
	default:
		response = fmt.Sprintf("Good try! A more natural way to say that is: %q. Now, try another sentence.", strings.TrimSpace(message.Content))
	}

	responseMessage := repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: response,
	}
	g.history = append(g.history, message, responseMessage)

	return responseMessage, nil
}

// History implements repositories.ChatSession
func (g *MockGeminiChatSession) History() ([]repositories.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]repositories.ChatMessage(nil), g.history...), nil
}

const (
	// mockTurnFrames is the number of microphone frames that make one mock turn
	mockTurnFrames = 12
	mockReplyText  = "Good try! Say it once more, slowly."
)

// MockGeminiLive is a LiveModel that answers every few seconds of audio
// with a canned transcript and a short tone.
type MockGeminiLive struct {
	// TurnFrames overrides the number of frames per turn
	TurnFrames int
}

// NewMockGeminiLive creates a mock live model
func NewMockGeminiLive() *MockGeminiLive {
	return &MockGeminiLive{TurnFrames: mockTurnFrames}
}

// Connect implements repositories.LiveModel
func (m *MockGeminiLive) Connect(ctx context.Context, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	turnFrames := m.TurnFrames
	if turnFrames <= 0 {
		turnFrames = mockTurnFrames
	}
	s := &mockLiveSession{
		callbacks:  callbacks,
		sampleRate: config.OutputSampleRate,
		turnFrames: turnFrames,
		events:     make(chan func(), 64),
		done:       make(chan struct{}),
	}
	go s.run()
	s.post(func() {
		if callbacks.OnOpen != nil {
			callbacks.OnOpen()
		}
	})
	return s, nil
}

type mockLiveSession struct {
	callbacks  repositories.LiveCallbacks
	sampleRate int
	turnFrames int

	mu     sync.Mutex
	frames int

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// run delivers callbacks from a single goroutine, like a receive loop
func (s *mockLiveSession) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *mockLiveSession) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	case s.events <- fn:
		return true
	default:
		return false
	}
}

// SendAudio implements repositories.LiveSession
func (s *mockLiveSession) SendAudio(frame repositories.MediaBlob) error {
	select {
	case <-s.done:
		return ErrLiveSessionClosed
	default:
	}

	s.mu.Lock()
	s.frames++
	turn := s.frames%s.turnFrames == 0
	s.mu.Unlock()

	if turn && !s.post(s.reply) {
		return ErrSendQueueFull
	}
	return nil
}

func (s *mockLiveSession) reply() {
	on := s.callbacks.OnMessage
	if on == nil {
		return
	}
	on(repositories.LiveEvent{InputTranscription: "I am practicing my English."})
	for _, word := range strings.SplitAfter(mockReplyText, " ") {
		on(repositories.LiveEvent{OutputTranscription: word})
	}
	on(repositories.LiveEvent{AudioData: tone(s.sampleRate, 440, 300*time.Millisecond)})
	on(repositories.LiveEvent{TurnComplete: true})
}

// Close implements repositories.LiveSession
func (s *mockLiveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.callbacks.OnClose != nil {
			go s.callbacks.OnClose("closed by client")
		}
	})
	return nil
}

// tone renders a quiet sine as base64 PCM16
func tone(sampleRate int, freq float64, d time.Duration) string {
	if sampleRate <= 0 {
		sampleRate = audio.OutputSampleRate
	}
	n := int(d.Seconds() * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return audio.Encode(samples).Data
}
