package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/englichat/adapters/llm"
	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/internal/voice"
	"github.com/satriahrh/englichat/usecase"
)

// Chat providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ConfigPathEnv names the optional YAML file
const ConfigPathEnv = "ENGLICHAT_CONFIG"

// Config represents the complete server configuration
type Config struct {
	HTTP     HTTPConfig               `yaml:"http"`
	Gemini   llm.GeminiConfig         `yaml:"gemini"`
	OpenAI   llm.OpenAIConfig         `yaml:"openai"`
	Chat     ChatConfig               `yaml:"chat"`
	Voice    VoiceConfig              `yaml:"voice"`
	Logging  LoggingConfig            `yaml:"logging"`
	Progress entities.ProgressMetrics `yaml:"progress"`
	// Mock runs the canned chat and live models; no API key is needed
	Mock bool `yaml:"mock"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ShutdownTimeout int `yaml:"shutdown_timeout"` // seconds
}

// ChatConfig contains text chat configuration
type ChatConfig struct {
	Provider        string `yaml:"provider"`
	IdleTimeout     int    `yaml:"idle_timeout"`     // minutes
	CleanupInterval int    `yaml:"cleanup_interval"` // seconds
}

// VoiceConfig contains the live session setup
type VoiceConfig struct {
	Model         string `yaml:"model"`
	VoiceName     string `yaml:"voice_name"`
	ChunkSize     int    `yaml:"chunk_size"`
	SendQueueSize int    `yaml:"send_queue_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			ShutdownTimeout: 10,
		},
		Chat: ChatConfig{
			Provider:        ProviderGemini,
			IdleTimeout:     30,
			CleanupInterval: 300,
		},
		Voice: VoiceConfig{
			Model:         voice.DefaultModel,
			VoiceName:     voice.DefaultVoice,
			ChunkSize:     voice.DefaultChunkSize,
			SendQueueSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Progress: usecase.DefaultProgress(),
	}
}

// Load reads .env, then the YAML file named by ENGLICHAT_CONFIG if set,
// then the environment overrides, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(os.Getenv(ConfigPathEnv), os.LookupEnv)
}

// LoadFile builds the configuration from the defaults, the YAML file at
// path (skipped when empty) and the variables visible through lookup.
func LoadFile(path string, lookup func(string) (string, bool)) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GEMINI_MODEL", &c.Gemini.Model)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("CHAT_PROVIDER", &c.Chat.Provider)
	str("LIVE_MODEL", &c.Voice.Model)
	str("LIVE_VOICE", &c.Voice.VoiceName)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}

	if v, ok := lookup("ENGLICHAT_MOCK"); ok && v != "" {
		mock, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENGLICHAT_MOCK %q: %w", v, err)
		}
		c.Mock = mock
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}

	if err := c.Voice.Validate(); err != nil {
		return fmt.Errorf("voice config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Progress.Validate(); err != nil {
		return fmt.Errorf("progress: %w", err)
	}

	if c.Mock {
		return nil
	}

	// The voice tutor always runs on Gemini.
	if err := llm.ValidateGeminiConfig(c.Gemini); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}

	if c.Chat.Provider == ProviderOpenAI && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai config: api key is required when chat provider is openai")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}
	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}
	return nil
}

// Validate validates chat configuration
func (ch *ChatConfig) Validate() error {
	validProviders := map[string]bool{
		ProviderGemini: true, ProviderOpenAI: true, ProviderMock: true,
	}
	if !validProviders[ch.Provider] {
		return fmt.Errorf("provider must be one of [gemini, openai, mock], got '%s'", ch.Provider)
	}
	if ch.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 minute, got %d", ch.IdleTimeout)
	}
	if ch.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", ch.CleanupInterval)
	}
	return nil
}

// Validate validates voice configuration
func (v *VoiceConfig) Validate() error {
	if v.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if v.ChunkSize < 256 || v.ChunkSize > 16384 {
		return fmt.Errorf("chunk_size must be between 256 and 16384 samples, got %d", v.ChunkSize)
	}
	if v.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be at least 1, got %d", v.SendQueueSize)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'console', got '%s'", l.Format)
	}
	return nil
}

// ChatProvider returns the provider actually used, honouring Mock
func (c *Config) ChatProvider() string {
	if c.Mock {
		return ProviderMock
	}
	return c.Chat.Provider
}

// SessionConfig returns the voice session setup
func (v *VoiceConfig) SessionConfig() voice.Config {
	config := voice.DefaultConfig()
	config.Live.Model = v.Model
	config.Live.VoiceName = v.VoiceName
	config.ChunkSize = v.ChunkSize
	return config
}

// GetIdleTimeout returns the chat idle timeout as a time.Duration
func (ch *ChatConfig) GetIdleTimeout() time.Duration {
	return time.Duration(ch.IdleTimeout) * time.Minute
}

// GetCleanupInterval returns the cleanup period as a time.Duration
func (ch *ChatConfig) GetCleanupInterval() time.Duration {
	return time.Duration(ch.CleanupInterval) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown budget
func (h *HTTPConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}
