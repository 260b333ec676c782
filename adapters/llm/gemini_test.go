package llm

import (
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/englichat/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid", GeminiConfig{APIKey: "key"}, false},
		{"missing key", GeminiConfig{}, true},
		{"temperature too high", GeminiConfig{APIKey: "key", Temperature: 2.5}, true},
		{"topP out of range", GeminiConfig{APIKey: "key", TopP: 1.5}, true},
		{"negative topK", GeminiConfig{APIKey: "key", TopK: -1}, true},
		{"negative timeout", GeminiConfig{APIKey: "key", TimeoutSeconds: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeminiConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeminiConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewGeminiLLMDefaults(t *testing.T) {
	llm, err := NewGeminiLLM(nil, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.config.Model != defaultModel {
		t.Errorf("expected model %s, got %s", defaultModel, llm.config.Model)
	}
	if llm.config.TimeoutSeconds != defaultTimeoutSeconds {
		t.Errorf("expected timeout %d, got %d", defaultTimeoutSeconds, llm.config.TimeoutSeconds)
	}

	if _, err := NewGeminiLLM(nil, GeminiConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error without API key")
	}
}

func TestGeminiHistoryConversion(t *testing.T) {
	history := []repositories.ChatMessage{
		{Role: repositories.UserRole, Content: "mujhe chai pasand hai"},
		{Role: repositories.ModelRole, Content: "I like tea."},
	}

	contents := convertRepositoryToGeminiFormat(history)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Errorf("expected model role, got %s", contents[1].Role)
	}

	back := convertGeminiToRepositoryFormat(contents)
	if len(back) != 2 || back[0] != history[0] || back[1] != history[1] {
		t.Errorf("history did not survive conversion: %+v", back)
	}
}

func TestGeminiChatSessionConfig(t *testing.T) {
	session := NewGeminiChatSession(nil, GeminiConfig{
		Model:        "gemini-2.5-flash",
		SystemPrompt: "You are a tutor.",
		Temperature:  0.5,
	}, zaptest.NewLogger(t), nil)

	config := session.generateConfig()
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "You are a tutor." {
		t.Errorf("system prompt should be the system instruction, got %+v", config.SystemInstruction)
	}
	if config.Temperature == nil || *config.Temperature != 0.5 {
		t.Errorf("unexpected temperature %v", config.Temperature)
	}
	if config.TopP != nil || config.TopK != nil {
		t.Error("unset sampling values should be left to the model")
	}

	history, _ := session.History()
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d", len(history))
	}
}

func TestPreview(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "अ"
	}
	if got := []rune(preview(long)); len(got) != 50 {
		t.Errorf("expected 50 runes, got %d", len(got))
	}
	if preview("short") != "short" {
		t.Error("short text should be kept")
	}
}
