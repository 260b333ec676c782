package entities

import "testing"

func TestSessionStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		allowed  bool
	}{
		{SessionStatusIdle, SessionStatusConnecting, true},
		{SessionStatusIdle, SessionStatusActive, false},
		{SessionStatusIdle, SessionStatusError, false},
		{SessionStatusConnecting, SessionStatusActive, true},
		{SessionStatusConnecting, SessionStatusError, true},
		{SessionStatusConnecting, SessionStatusClosing, true},
		{SessionStatusActive, SessionStatusClosing, true},
		{SessionStatusActive, SessionStatusError, true},
		{SessionStatusActive, SessionStatusIdle, false},
		{SessionStatusClosing, SessionStatusIdle, true},
		{SessionStatusError, SessionStatusClosing, true},
		{SessionStatusError, SessionStatusIdle, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: expected allowed=%v, got %v", tt.from, tt.to, tt.allowed, got)
		}
		err := tt.from.ValidateTransition(tt.to)
		if tt.allowed && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.allowed && err == nil {
			t.Errorf("%s -> %s: expected error", tt.from, tt.to)
		}
	}
}

func TestSessionStatusHoldsSession(t *testing.T) {
	holding := map[SessionStatus]bool{
		SessionStatusIdle:       false,
		SessionStatusConnecting: true,
		SessionStatusActive:     true,
		SessionStatusClosing:    true,
		SessionStatusError:      false,
	}
	for status, want := range holding {
		if got := status.HoldsSession(); got != want {
			t.Errorf("%s: expected HoldsSession=%v, got %v", status, want, got)
		}
	}
}

func TestSessionStatusInvalid(t *testing.T) {
	if SessionStatus("paused").Valid() {
		t.Error("unknown status should not be valid")
	}
	if err := SessionStatus("paused").ValidateTransition(SessionStatusIdle); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestProgressMetricsValidate(t *testing.T) {
	valid := ProgressMetrics{GrammarScore: 87, PronunciationScore: 92, FluencyScore: 85}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid metrics should not fail: %v", err)
	}

	invalid := valid
	invalid.FluencyScore = 101
	if err := invalid.Validate(); err == nil {
		t.Error("expected error for score above 100")
	}
}

func TestChatMessageValidate(t *testing.T) {
	if err := (ChatMessage{ID: "1", Sender: SenderUser, Text: "hi"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (ChatMessage{ID: "1", Sender: "doll"}).Validate(); err == nil {
		t.Error("expected error for unknown sender")
	}
	if err := (ChatMessage{Sender: SenderUser}).Validate(); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestAudioBufferDuration(t *testing.T) {
	buf := &AudioBuffer{SampleRate: 24000, Channels: [][]float32{make([]float32, 12000)}}
	if buf.Duration() != 0.5 {
		t.Errorf("expected 0.5s, got %f", buf.Duration())
	}
	if buf.NumberOfChannels() != 1 {
		t.Errorf("expected 1 channel, got %d", buf.NumberOfChannels())
	}

	var empty *AudioBuffer
	if empty.Duration() != 0 || empty.Length() != 0 {
		t.Error("nil buffer should have zero length")
	}
}
