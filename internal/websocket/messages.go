package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/englichat/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the browser
const (
	MessageTypeVoiceStart MessageType = "voice_start"
	MessageTypeVoiceStop  MessageType = "voice_stop"
	MessageTypeMicGranted MessageType = "mic_granted"
	MessageTypeMicDenied  MessageType = "mic_denied"
	MessageTypePing       MessageType = "ping"
)

// Messages sent by the server
const (
	MessageTypeVoiceState   MessageType = "voice_state"
	MessageTypeMicRequest   MessageType = "mic_request"
	MessageTypeMicRelease   MessageType = "mic_release"
	MessageTypeSpeakerOpen  MessageType = "speaker_open"
	MessageTypeAudioClip    MessageType = "audio_clip"
	MessageTypeAudioStop    MessageType = "audio_stop"
	MessageTypeSpeakerClose MessageType = "speaker_close"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

// Error codes of ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeSessionBusy    = "session_busy"
	ErrorCodeStartFailed    = "voice_start_failed"
	ErrorCodeStopFailed     = "voice_stop_failed"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// VoiceStartMessage asks the server to start a voice session
type VoiceStartMessage struct {
	BaseMessage
}

// VoiceStopMessage asks the server to end the voice session
type VoiceStopMessage struct {
	BaseMessage
}

// MicGrantedMessage answers a mic_request once the browser captures audio.
// Binary frames of float32 little-endian samples follow.
type MicGrantedMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"`
}

// MicDeniedMessage answers a mic_request the user refused
type MicDeniedMessage struct {
	BaseMessage
	Reason string `json:"reason,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// VoiceStateMessage carries the session status and the whole transcript
type VoiceStateMessage struct {
	BaseMessage
	Status      entities.SessionStatus     `json:"status"`
	Transcripts []entities.TranscriptEntry `json:"transcripts"`
}

// MicRequestMessage asks the browser for microphone access
type MicRequestMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"`
}

// MicReleaseMessage tells the browser to stop its microphone tracks
type MicReleaseMessage struct {
	BaseMessage
}

// SpeakerOpenMessage tells the browser to create an output context. Clip
// start times are seconds on the clock that starts with this message.
type SpeakerOpenMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"`
}

// AudioClipMessage schedules one PCM16 clip on the speaker clock
type AudioClipMessage struct {
	BaseMessage
	ClipID     uint64  `json:"clip_id"`
	StartTime  float64 `json:"start_time"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	AudioData  string  `json:"audio_data"` // base64 PCM16 mono
}

// AudioStopMessage silences one clip
type AudioStopMessage struct {
	BaseMessage
	ClipID uint64 `json:"clip_id"`
}

// SpeakerCloseMessage tells the browser to close its output context
type SpeakerCloseMessage struct {
	BaseMessage
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeVoiceStart:
		var msg VoiceStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid voice start message: %w", err)
		}
		return &msg, nil

	case MessageTypeVoiceStop:
		var msg VoiceStopMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid voice stop message: %w", err)
		}
		return &msg, nil

	case MessageTypeMicGranted:
		var msg MicGrantedMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid mic granted message: %w", err)
		}
		if err := v.validateMicGranted(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeMicDenied:
		var msg MicDeniedMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid mic denied message: %w", err)
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateMicGranted validates mic granted message fields
func (v *MessageValidator) validateMicGranted(msg *MicGrantedMessage) error {
	if msg.SampleRate < 8000 || msg.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateVoiceStateMessage creates a snapshot message
func CreateVoiceStateMessage(status entities.SessionStatus, transcripts []entities.TranscriptEntry) *VoiceStateMessage {
	if transcripts == nil {
		transcripts = []entities.TranscriptEntry{}
	}
	return &VoiceStateMessage{
		BaseMessage: newBase(MessageTypeVoiceState),
		Status:      status,
		Transcripts: transcripts,
	}
}
