package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain"
	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/metrics"
)

var (
	// ErrChatNotFound is returned for an unknown or expired chat ID
	ErrChatNotFound = errors.New("chat session not found")
	// ErrEmptyMessage is returned for whitespace-only input
	ErrEmptyMessage = errors.New("message is empty")
	// ErrChatBusy is returned while a previous message awaits its reply
	ErrChatBusy = errors.New("chat is waiting for a reply")
	// ErrChatUnavailable is returned when the chat model could not be initialised
	ErrChatUnavailable = errors.New("chat model unavailable")
)

const defaultChatIdleTimeout = 30 * time.Minute

// ChatService handles text conversations. Sessions live in memory only
// and expire after an idle period.
type ChatService struct {
	llm     repositories.LargeLanguageModel
	logger  *zap.Logger
	metrics *metrics.Metrics

	idleTimeout time.Duration
	now         func() time.Time
	newID       func() string

	mu       sync.RWMutex
	sessions map[string]*TextSession
}

// ChatOption configures a ChatService
type ChatOption func(*ChatService)

// WithIdleTimeout sets how long an untouched session survives
func WithIdleTimeout(d time.Duration) ChatOption {
	return func(s *ChatService) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ChatOption {
	return func(s *ChatService) {
		s.now = now
	}
}

// WithMessageIDs overrides the message and session ID source
func WithMessageIDs(fn func() string) ChatOption {
	return func(s *ChatService) {
		s.newID = fn
	}
}

// NewChatService creates a new chat service
func NewChatService(llm repositories.LargeLanguageModel, logger *zap.Logger, m *metrics.Metrics, opts ...ChatOption) *ChatService {
	s := &ChatService{
		llm:         llm,
		logger:      logger,
		metrics:     m,
		idleTimeout: defaultChatIdleTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		sessions:    make(map[string]*TextSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TextSession is one text conversation: the visible bubbles plus the
// model session carrying the history.
type TextSession struct {
	ID string

	mu         sync.Mutex
	chat       repositories.ChatSession
	messages   []entities.ChatMessage
	busy       bool
	lastActive time.Time
}

// Messages returns a copy of the bubbles
func (t *TextSession) Messages() []entities.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]entities.ChatMessage(nil), t.messages...)
}

// Busy reports whether a message awaits its reply
func (t *TextSession) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Create opens a chat. It starts with the greeting, or with the
// initialisation failure bubble when the model is unavailable; the failed
// session is still registered so the client can render it.
func (s *ChatService) Create(ctx context.Context) *TextSession {
	session := &TextSession{
		ID:         s.newID(),
		lastActive: s.now(),
	}

	chat, err := s.llm.GenerateChat(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to initialize chat model", zap.String("chatID", session.ID), zap.Error(err))
		session.messages = []entities.ChatMessage{s.assistant("error", domain.ChatInitFailure)}
	} else {
		session.chat = chat
		session.messages = []entities.ChatMessage{s.assistant("initial", domain.ChatGreeting)}
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	count := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveChatSessions(count)

	s.logger.Info("Chat session created", zap.String("chatID", session.ID), zap.Bool("ready", chat != nil))
	return session
}

// Get returns the session with id
func (s *ChatService) Get(id string) (*TextSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	return session, nil
}

// Submit sends text and returns the bubbles it added: the user's message
// and either the reply or the error bubble. A failed request is reported
// in the conversation, not as an error, and is not retried.
func (s *ChatService) Submit(ctx context.Context, id, text string) ([]entities.ChatMessage, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	session.mu.Lock()
	if session.busy {
		session.mu.Unlock()
		return nil, ErrChatBusy
	}
	if session.chat == nil {
		session.mu.Unlock()
		return nil, ErrChatUnavailable
	}
	userMessage := entities.ChatMessage{ID: s.newID(), Sender: entities.SenderUser, Text: text}
	session.messages = append(session.messages, userMessage)
	session.busy = true
	session.lastActive = s.now()
	chat := session.chat
	session.mu.Unlock()

	start := time.Now()
	reply, err := chat.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: text,
	})
	s.metrics.RecordChatRequest(time.Since(start), err)

	var answer entities.ChatMessage
	if err != nil {
		s.logger.Error("Error sending message", zap.String("chatID", id), zap.Error(err))
		answer = s.assistant(s.newID()+"-error", domain.ChatReplyFailure)
	} else {
		answer = s.assistant(s.newID()+"-ai", reply.Content)
	}

	session.mu.Lock()
	session.messages = append(session.messages, answer)
	session.busy = false
	session.lastActive = s.now()
	session.mu.Unlock()

	return []entities.ChatMessage{userMessage, answer}, nil
}

// ExpireSessions drops every session idle for longer than the timeout.
// A session waiting for a reply is never dropped.
func (s *ChatService) ExpireSessions(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	expired := 0
	for id, session := range s.sessions {
		if err := ctx.Err(); err != nil {
			s.mu.Unlock()
			return expired, fmt.Errorf("expire chat sessions: %w", err)
		}
		session.mu.Lock()
		idle := !session.busy && session.lastActive.Before(cutoff)
		session.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			expired++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetActiveChatSessions(count)
	return expired, nil
}

// Count returns the number of live sessions
func (s *ChatService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *ChatService) assistant(id, text string) entities.ChatMessage {
	return entities.ChatMessage{ID: id, Sender: entities.SenderAssistant, Text: text}
}
