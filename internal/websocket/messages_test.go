package websocket

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/satriahrh/englichat/domain/entities"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType interface{}
		wantErr  bool
	}{
		{
			name:     "voice start",
			message:  `{"type": "voice_start", "timestamp": "2024-01-01T00:00:00Z"}`,
			wantType: &VoiceStartMessage{},
		},
		{
			name:     "voice stop",
			message:  `{"type": "voice_stop"}`,
			wantType: &VoiceStopMessage{},
		},
		{
			name:     "mic granted",
			message:  `{"type": "mic_granted", "sample_rate": 16000}`,
			wantType: &MicGrantedMessage{},
		},
		{
			name:    "mic granted without sample rate",
			message: `{"type": "mic_granted"}`,
			wantErr: true,
		},
		{
			name:    "mic granted with invalid sample rate",
			message: `{"type": "mic_granted", "sample_rate": 96000}`,
			wantErr: true,
		},
		{
			name:     "mic denied",
			message:  `{"type": "mic_denied", "reason": "NotAllowedError"}`,
			wantType: &MicDeniedMessage{},
		},
		{
			name:     "ping",
			message:  `{"type": "ping", "data": "test-ping"}`,
			wantType: &PingMessage{},
		},
		{
			name:    "server message from client",
			message: `{"type": "voice_state"}`,
			wantErr: true,
		},
		{
			name:    "unsupported type",
			message: `{"type": "audio_chunk"}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			message: `{"type": "ping"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var ok bool
			switch tt.wantType.(type) {
			case *VoiceStartMessage:
				_, ok = msg.(*VoiceStartMessage)
			case *VoiceStopMessage:
				_, ok = msg.(*VoiceStopMessage)
			case *MicGrantedMessage:
				_, ok = msg.(*MicGrantedMessage)
			case *MicDeniedMessage:
				_, ok = msg.(*MicDeniedMessage)
			case *PingMessage:
				_, ok = msg.(*PingMessage)
			}
			if !ok {
				t.Errorf("ValidateMessage() returned %T, want %T", msg, tt.wantType)
			}
		})
	}
}

func TestMessageValidator_MicGrantedFields(t *testing.T) {
	validator := NewMessageValidator()

	msg, err := validator.ValidateMessage([]byte(`{"type": "mic_granted", "sample_rate": 16000, "message_id": "m-1"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}

	granted := msg.(*MicGrantedMessage)
	if granted.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", granted.SampleRate)
	}
	if granted.MessageID != "m-1" {
		t.Errorf("MessageID = %q, want m-1", granted.MessageID)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage(ErrorCodeSessionBusy, "Voice session already in progress", "details")

	if msg.Type != MessageTypeError {
		t.Errorf("Type = %s, want %s", msg.Type, MessageTypeError)
	}
	if msg.Code != ErrorCodeSessionBusy {
		t.Errorf("Code = %s, want %s", msg.Code, ErrorCodeSessionBusy)
	}
	if msg.Timestamp == "" {
		t.Error("Timestamp should be set")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal error message: %v", err)
	}
	if !strings.Contains(string(data), `"error_code":"session_busy"`) {
		t.Errorf("marshalled message %s lacks error_code", data)
	}
}

func TestCreatePongMessage(t *testing.T) {
	msg := CreatePongMessage("test-data")

	if msg.Type != MessageTypePong {
		t.Errorf("Type = %s, want %s", msg.Type, MessageTypePong)
	}
	if msg.Data != "test-data" {
		t.Errorf("Data = %s, want test-data", msg.Data)
	}
}

func TestCreateVoiceStateMessage(t *testing.T) {
	t.Run("nil transcript marshals as empty list", func(t *testing.T) {
		msg := CreateVoiceStateMessage(entities.SessionStatusIdle, nil)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("Failed to marshal voice state: %v", err)
		}
		if !strings.Contains(string(data), `"transcripts":[]`) {
			t.Errorf("marshalled message %s, want empty transcripts", data)
		}
	})

	t.Run("carries status and entries", func(t *testing.T) {
		entries := []entities.TranscriptEntry{
			{ID: "start", Sender: entities.SenderAssistant, Text: "Connecting", IsFinal: true},
		}
		msg := CreateVoiceStateMessage(entities.SessionStatusConnecting, entries)

		if msg.Status != entities.SessionStatusConnecting {
			t.Errorf("Status = %s, want connecting", msg.Status)
		}
		if len(msg.Transcripts) != 1 || msg.Transcripts[0].ID != "start" {
			t.Errorf("Transcripts = %+v", msg.Transcripts)
		}
	})
}
