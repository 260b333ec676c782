package api

import "github.com/satriahrh/englichat/domain/entities"

// ChatSessionResponse represents a text conversation
type ChatSessionResponse struct {
	ID       string                 `json:"id"`
	Messages []entities.ChatMessage `json:"messages"`
	Busy     bool                   `json:"busy"`
}

// SendMessageRequest represents the request payload for a chat message
type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// SendMessageResponse carries the bubbles added by one message
type SendMessageResponse struct {
	Messages []entities.ChatMessage `json:"messages"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	VoiceClients int    `json:"voice_clients"`
	ChatSessions int    `json:"chat_sessions"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
