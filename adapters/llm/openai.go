package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/repositories"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIConfig holds the settings of the OpenAI chat provider
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
}

// chatCompleter is the part of *openai.Client the adapter uses
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAILLM implements the LargeLanguageModel interface with the OpenAI chat API
type OpenAILLM struct {
	client chatCompleter
	config OpenAIConfig
	logger *zap.Logger
}

// NewOpenAILLM creates an OpenAI-backed chat model
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAILLM{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// GenerateChat creates a chat session seeded with the system prompt and history
func (o *OpenAILLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	var messages []openai.ChatCompletionMessage
	if o.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: o.config.SystemPrompt,
		})
	}
	for _, msg := range history {
		messages = append(messages, toOpenAIMessage(msg))
	}

	return &OpenAIChatSession{
		client:   o.client,
		model:    o.config.Model,
		logger:   o.logger,
		messages: messages,
	}, nil
}

// OpenAIChatSession implements the ChatSession interface
type OpenAIChatSession struct {
	mu       sync.Mutex
	client   chatCompleter
	model    string
	logger   *zap.Logger
	messages []openai.ChatCompletionMessage
}

// SendMessage sends the conversation plus message and returns the reply
func (s *OpenAIChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userMessage := toOpenAIMessage(message)
	request := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: append(append([]openai.ChatCompletionMessage(nil), s.messages...), userMessage),
	}

	response, err := s.client.CreateChatCompletion(ctx, request)
	if err != nil {
		s.logger.Error("Failed to create chat completion", zap.Error(err))
		return repositories.ChatMessage{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		s.logger.Warn("Empty response in chat session")
		return repositories.ChatMessage{}, ErrEmptyResponse
	}

	reply := response.Choices[0].Message
	s.messages = append(s.messages, userMessage, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply.Content,
	})

	s.logger.Info("Chat session message processed",
		zap.String("user_message", preview(message.Content)),
		zap.String("response_preview", preview(reply.Content)),
		zap.Int("history_length", len(s.messages)))

	return repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: reply.Content,
	}, nil
}

// History returns the conversation without the system prompt
func (s *OpenAIChatSession) History() ([]repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []repositories.ChatMessage
	for _, msg := range s.messages {
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			history = append(history, repositories.ChatMessage{Role: repositories.UserRole, Content: msg.Content})
		case openai.ChatMessageRoleAssistant:
			history = append(history, repositories.ChatMessage{Role: repositories.ModelRole, Content: msg.Content})
		}
	}
	return history, nil
}

func toOpenAIMessage(msg repositories.ChatMessage) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch msg.Role {
	case repositories.ModelRole:
		role = openai.ChatMessageRoleAssistant
	case repositories.SystemRole:
		role = openai.ChatMessageRoleSystem
	}
	return openai.ChatCompletionMessage{Role: role, Content: msg.Content}
}
