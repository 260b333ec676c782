package llm

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/englichat/domain/repositories"
)

type receiveResult struct {
	message *genai.LiveServerMessage
	err     error
}

// fakeLiveConn hands out queued messages and errors in the order they
// were pushed, like a real connection.
type fakeLiveConn struct {
	mu      sync.Mutex
	sent    []genai.LiveRealtimeInput
	results chan receiveResult
	closed  chan struct{}
	once    sync.Once
}

func newFakeLiveConn() *fakeLiveConn {
	return &fakeLiveConn{
		results: make(chan receiveResult, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeLiveConn) push(message *genai.LiveServerMessage) {
	c.results <- receiveResult{message: message}
}

func (c *fakeLiveConn) fail(err error) {
	c.results <- receiveResult{err: err}
}

func (c *fakeLiveConn) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, input)
	return nil
}

func (c *fakeLiveConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case r := <-c.results:
		return r.message, r.err
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeLiveConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeLiveConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type recorder struct {
	mu      sync.Mutex
	opens   int
	events  []repositories.LiveEvent
	errs    []error
	reasons []string
	done    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 4)}
}

func (r *recorder) callbacks() repositories.LiveCallbacks {
	return repositories.LiveCallbacks{
		OnOpen: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.opens++
		},
		OnMessage: func(e repositories.LiveEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.done <- struct{}{}
		},
		OnClose: func(reason string) {
			r.mu.Lock()
			r.reasons = append(r.reasons, reason)
			r.mu.Unlock()
			r.done <- struct{}{}
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatal("session never finished")
	}
}

func newTestLiveSession(t *testing.T, conn liveConn, r *recorder, queue int) *geminiLiveSession {
	s := &geminiLiveSession{
		conn:      conn,
		callbacks: r.callbacks(),
		logger:    zaptest.NewLogger(t),
		queue:     make(chan repositories.MediaBlob, queue),
		done:      make(chan struct{}),
	}
	return s
}

func TestLiveConnectConfig(t *testing.T) {
	config := liveConnectConfig(repositories.LiveConfig{
		Model:                    "gemini-live",
		VoiceName:                "Zephyr",
		SystemInstruction:        "be a tutor",
		InputSampleRate:          16000,
		OutputSampleRate:         24000,
		InputAudioTranscription:  true,
		OutputAudioTranscription: true,
	})

	if len(config.ResponseModalities) != 1 || config.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("expected audio modality, got %v", config.ResponseModalities)
	}
	if config.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
		t.Error("voice not configured")
	}
	if config.SystemInstruction.Parts[0].Text != "be a tutor" {
		t.Error("system instruction not configured")
	}
	if config.InputAudioTranscription == nil || config.OutputAudioTranscription == nil {
		t.Error("transcriptions should be enabled")
	}

	bare := liveConnectConfig(repositories.LiveConfig{Model: "gemini-live"})
	if bare.SpeechConfig != nil || bare.InputAudioTranscription != nil {
		t.Error("unset options should stay nil")
	}
}

func TestToLiveEvent(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	event, ok := toLiveEvent(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: pcm, MIMEType: "audio/pcm;rate=24000"}},
			}},
			InputTranscription:  &genai.Transcription{Text: "Hello "},
			OutputTranscription: &genai.Transcription{Text: "Hi"},
			TurnComplete:        true,
			Interrupted:         true,
		},
	})
	if !ok {
		t.Fatal("expected an event")
	}
	if event.InputTranscription != "Hello " || event.OutputTranscription != "Hi" {
		t.Errorf("unexpected transcriptions %+v", event)
	}
	if !event.TurnComplete || !event.Interrupted {
		t.Errorf("flags lost: %+v", event)
	}
	if event.AudioData != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("unexpected audio %q", event.AudioData)
	}

	if _, ok := toLiveEvent(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}); ok {
		t.Error("setup message carries no content")
	}
}

func TestLiveSessionDispatch(t *testing.T) {
	conn := newFakeLiveConn()
	r := newRecorder()
	s := newTestLiveSession(t, conn, r, 4)
	go s.receiveLoop()

	conn.push(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}})
	conn.push(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		InputTranscription: &genai.Transcription{Text: "Hello"},
	}})
	conn.fail(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})
	r.wait(t)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opens != 1 {
		t.Errorf("expected one open, got %d", r.opens)
	}
	if len(r.events) != 1 || r.events[0].InputTranscription != "Hello" {
		t.Errorf("unexpected events %+v", r.events)
	}
	if len(r.reasons) != 1 || r.reasons[0] != "bye" {
		t.Errorf("expected a normal close, got %v", r.reasons)
	}
}

func TestLiveSessionDeliversEventsBeforeClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		conn := newFakeLiveConn()
		r := newRecorder()
		s := newTestLiveSession(t, conn, r, 4)

		words := []string{"I ", "goes ", "to ", "school"}
		for _, word := range words {
			conn.push(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
				InputTranscription: &genai.Transcription{Text: word},
			}})
		}
		conn.fail(&websocket.CloseError{Code: websocket.CloseGoingAway, Text: "done"})

		go s.receiveLoop()
		r.wait(t)

		r.mu.Lock()
		if len(r.events) != len(words) {
			r.mu.Unlock()
			t.Fatalf("run %d: expected %d events before the close, got %d", i, len(words), len(r.events))
		}
		for j, event := range r.events {
			if event.InputTranscription != words[j] {
				t.Errorf("run %d: event %d = %q, want %q", i, j, event.InputTranscription, words[j])
			}
		}
		r.mu.Unlock()
	}
}

func TestLiveSessionReceiveError(t *testing.T) {
	conn := newFakeLiveConn()
	r := newRecorder()
	s := newTestLiveSession(t, conn, r, 4)
	go s.receiveLoop()

	conn.fail(errors.New("connection reset"))
	r.wait(t)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) != 1 {
		t.Errorf("expected one error, got %v", r.errs)
	}
}

func TestLiveSessionSendAndClose(t *testing.T) {
	conn := newFakeLiveConn()
	r := newRecorder()
	s := newTestLiveSession(t, conn, r, 1)

	frame := repositories.MediaBlob{
		Data:     base64.StdEncoding.EncodeToString([]byte{0, 0, 1, 0}),
		MIMEType: "audio/pcm;rate=16000",
	}

	// nothing drains the queue yet
	if err := s.SendAudio(frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SendAudio(frame); !errors.Is(err, ErrSendQueueFull) {
		t.Errorf("expected ErrSendQueueFull, got %v", err)
	}

	go s.writeLoop()
	go s.receiveLoop()

	deadline := time.Now().Add(time.Second)
	for conn.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame was never written")
		}
		time.Sleep(time.Millisecond)
	}
	conn.mu.Lock()
	sent := conn.sent[0]
	conn.mu.Unlock()
	if sent.Audio == nil || len(sent.Audio.Data) != 4 || sent.Audio.MIMEType != frame.MIMEType {
		t.Errorf("unexpected realtime input %+v", sent.Audio)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	s.Close()
	r.wait(t)

	if err := s.SendAudio(frame); !errors.Is(err, ErrLiveSessionClosed) {
		t.Errorf("expected ErrLiveSessionClosed, got %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) != 0 || len(r.reasons) != 1 {
		t.Errorf("client close should report a close, got errs=%v reasons=%v", r.errs, r.reasons)
	}
}
