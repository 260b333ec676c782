package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/englichat/domain/repositories"
)

// ErrEmptyResponse is returned when the model produced no text
var ErrEmptyResponse = errors.New("model returned no text")

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	mu      sync.Mutex
	client  *genai.Client
	logger  *zap.Logger
	config  GeminiConfig
	history []*genai.Content
}

// NewGeminiChatSession creates a new chat session with config and history
func NewGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, history []repositories.ChatMessage) *GeminiChatSession {
	return &GeminiChatSession{
		client:  client,
		logger:  logger,
		config:  config,
		history: convertRepositoryToGeminiFormat(history),
	}
}

// generateConfig builds the request settings. The persona travels as the
// system instruction, never as a history turn.
func (s *GeminiChatSession) generateConfig() *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if s.config.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(s.config.SystemPrompt, genai.RoleUser)
	}
	if s.config.Temperature != 0 {
		config.Temperature = genai.Ptr(s.config.Temperature)
	}
	if s.config.TopP != 0 {
		config.TopP = genai.Ptr(s.config.TopP)
	}
	if s.config.TopK != 0 {
		config.TopK = genai.Ptr(s.config.TopK)
	}
	if s.config.MaxOutputTokens != 0 {
		config.MaxOutputTokens = int32(s.config.MaxOutputTokens)
	}
	return config
}

// SendMessage sends the conversation plus message and returns the reply.
// The history only grows when the call succeeds; there is no retry.
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	if s.config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	response, err := s.client.Models.GenerateContent(ctx, s.config.Model, contents, s.generateConfig())
	if err != nil {
		s.logger.Error("Failed to send message in chat session", zap.Error(err))
		return repositories.ChatMessage{}, fmt.Errorf("failed to generate content: %w", err)
	}

	responseText := response.Text()
	if responseText == "" {
		s.logger.Warn("Empty response in chat session")
		return repositories.ChatMessage{}, ErrEmptyResponse
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(responseText, genai.RoleModel))

	s.logger.Info("Chat session message processed",
		zap.String("user_message", preview(message.Content)),
		zap.String("response_preview", preview(responseText)),
		zap.Int("history_length", len(s.history)))

	return repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: responseText,
	}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return convertGeminiToRepositoryFormat(s.history), nil
}

func preview(text string) string {
	r := []rune(text)
	return string(r[:min(50, len(r))])
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.ModelRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser // system and user turns both go in as user content
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage

	for _, content := range contents {
		role := repositories.UserRole
		if content.Role == string(genai.RoleModel) {
			role = repositories.ModelRole
		}

		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}

		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    role,
				Content: text,
			})
		}
	}

	return messages
}
