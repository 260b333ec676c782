package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/englichat/domain"
	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/metrics"
)

type fakeChat struct {
	mu       sync.Mutex
	received []repositories.ChatMessage
	reply    string
	err      error
	// gate blocks SendMessage until closed
	gate chan struct{}
}

func (c *fakeChat) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, message)
	if c.err != nil {
		return repositories.ChatMessage{}, c.err
	}
	return repositories.ChatMessage{Role: repositories.ModelRole, Content: c.reply}, nil
}

func (c *fakeChat) History() ([]repositories.ChatMessage, error) {
	return nil, nil
}

type fakeLLM struct {
	chat *fakeChat
	err  error
}

func (l *fakeLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.chat, nil
}

func newTestChatService(t *testing.T, llm repositories.LargeLanguageModel, opts ...ChatOption) *ChatService {
	n := 0
	opts = append([]ChatOption{WithMessageIDs(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})}, opts...)
	return NewChatService(llm, zaptest.NewLogger(t), metrics.NewMetrics(prometheus.NewRegistry()), opts...)
}

func TestCreateGreets(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{chat: &fakeChat{}})
	session := svc.Create(context.Background())

	messages := session.Messages()
	if len(messages) != 1 || messages[0].Text != domain.ChatGreeting || messages[0].Sender != entities.SenderAssistant {
		t.Errorf("expected greeting, got %+v", messages)
	}
	if got, err := svc.Get(session.ID); err != nil || got != session {
		t.Errorf("session not registered: %v", err)
	}
}

func TestCreateWithUnavailableModel(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{err: errors.New("no api key")})
	session := svc.Create(context.Background())

	messages := session.Messages()
	if len(messages) != 1 || messages[0].Text != domain.ChatInitFailure {
		t.Errorf("expected init failure bubble, got %+v", messages)
	}
	if _, err := svc.Submit(context.Background(), session.ID, "hello"); !errors.Is(err, ErrChatUnavailable) {
		t.Errorf("expected ErrChatUnavailable, got %v", err)
	}
}

func TestSubmit(t *testing.T) {
	chat := &fakeChat{reply: "I like tea."}
	svc := newTestChatService(t, &fakeLLM{chat: chat})
	session := svc.Create(context.Background())

	added, err := svc.Submit(context.Background(), session.ID, "mujhe chai pasand hai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected user message and reply, got %+v", added)
	}
	if added[0].Sender != entities.SenderUser || added[0].Text != "mujhe chai pasand hai" {
		t.Errorf("unexpected user message %+v", added[0])
	}
	if added[1].Sender != entities.SenderAssistant || added[1].Text != "I like tea." {
		t.Errorf("unexpected reply %+v", added[1])
	}
	if len(session.Messages()) != 3 {
		t.Errorf("expected 3 bubbles, got %d", len(session.Messages()))
	}
	if chat.received[0].Role != repositories.UserRole {
		t.Errorf("expected user role, got %s", chat.received[0].Role)
	}
	for _, m := range session.Messages() {
		if err := m.Validate(); err != nil {
			t.Errorf("invalid message %+v: %v", m, err)
		}
	}
}

func TestSubmitFailureAddsBubble(t *testing.T) {
	chat := &fakeChat{err: errors.New("quota exceeded")}
	svc := newTestChatService(t, &fakeLLM{chat: chat})
	session := svc.Create(context.Background())

	added, err := svc.Submit(context.Background(), session.ID, "hello")
	if err != nil {
		t.Fatalf("model failure should not be returned: %v", err)
	}
	if added[1].Text != domain.ChatReplyFailure {
		t.Errorf("expected failure bubble, got %q", added[1].Text)
	}
	if len(chat.received) != 1 {
		t.Errorf("expected no retry, got %d calls", len(chat.received))
	}
	if session.Busy() {
		t.Error("session should accept input again")
	}
}

func TestSubmitRejectsEmpty(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{chat: &fakeChat{}})
	session := svc.Create(context.Background())

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Submit(context.Background(), session.ID, text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("%q: expected ErrEmptyMessage, got %v", text, err)
		}
	}
	if len(session.Messages()) != 1 {
		t.Error("rejected input should not be appended")
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	svc := newTestChatService(t, &fakeLLM{chat: &fakeChat{}})
	if _, err := svc.Submit(context.Background(), "missing", "hi"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("expected ErrChatNotFound, got %v", err)
	}
}

func TestSubmitWhileBusy(t *testing.T) {
	chat := &fakeChat{reply: "ok", gate: make(chan struct{})}
	svc := newTestChatService(t, &fakeLLM{chat: chat})
	session := svc.Create(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), session.ID, "first")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !session.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first submit never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Submit(context.Background(), session.ID, "second"); !errors.Is(err, ErrChatBusy) {
		t.Errorf("expected ErrChatBusy, got %v", err)
	}

	close(chat.gate)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if len(session.Messages()) != 3 {
		t.Errorf("expected greeting, message and reply, got %d", len(session.Messages()))
	}
}

func TestExpireSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newTestChatService(t, &fakeLLM{chat: &fakeChat{reply: "ok"}}, WithClock(clock), WithIdleTimeout(30*time.Minute))

	stale := svc.Create(context.Background())
	now = now.Add(20 * time.Minute)
	fresh := svc.Create(context.Background())
	now = now.Add(15 * time.Minute)

	expired, err := svc.ExpireSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != 1 {
		t.Errorf("expected 1 expired session, got %d", expired)
	}
	if _, err := svc.Get(stale.ID); !errors.Is(err, ErrChatNotFound) {
		t.Error("stale session should be gone")
	}
	if _, err := svc.Get(fresh.ID); err != nil {
		t.Error("fresh session should survive")
	}
	if svc.Count() != 1 {
		t.Errorf("expected 1 session, got %d", svc.Count())
	}
}
