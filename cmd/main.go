package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/englichat/adapters/llm"
	"github.com/satriahrh/englichat/domain"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/api"
	"github.com/satriahrh/englichat/internal/config"
	"github.com/satriahrh/englichat/internal/logging"
	"github.com/satriahrh/englichat/internal/metrics"
	"github.com/satriahrh/englichat/internal/websocket"
	"github.com/satriahrh/englichat/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize adapters
	chatModel, liveModel, err := buildModels(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize models", zap.Error(err))
	}

	// Initialize usecase services
	chatService := usecase.NewChatService(chatModel, logger, m,
		usecase.WithIdleTimeout(cfg.Chat.GetIdleTimeout()))
	cleanup := usecase.NewSessionCleanupService(chatService, cfg.Chat.GetCleanupInterval(), logger)
	cleanup.Start()

	// Initialize WebSocket hub with the live model
	hub := websocket.NewHub(liveModel, cfg.Voice.SessionConfig(), logger, m)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub:            hub,
		Chat:           chatService,
		Progress:       cfg.Progress,
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	})

	port := strconv.Itoa(cfg.HTTP.Port)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("EngliChat server started",
		zap.String("port", port),
		zap.String("chatProvider", cfg.ChatProvider()),
		zap.String("liveModel", cfg.Voice.Model))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopHub()
	cleanup.Stop()

	logger.Info("Server exited")
}

// buildModels selects the text chat provider and the live model
func buildModels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, repositories.LiveModel, error) {
	if cfg.Mock {
		logger.Warn("Running with mock models")
		return llm.NewMockGeminiClient(), llm.NewMockGeminiLive(), nil
	}

	client, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, nil, err
	}
	live := llm.NewGeminiLive(client, logger, cfg.Voice.SendQueueSize)

	chat, err := buildChatModel(cfg, client, logger)
	if err != nil {
		return nil, nil, err
	}
	return chat, live, nil
}

func buildChatModel(cfg *config.Config, client *genai.Client, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.ChatProvider() {
	case config.ProviderOpenAI:
		openaiConfig := cfg.OpenAI
		if openaiConfig.SystemPrompt == "" {
			openaiConfig.SystemPrompt = domain.TutorSystemPrompt
		}
		return llm.NewOpenAILLM(openaiConfig, logger)
	case config.ProviderMock:
		return llm.NewMockGeminiClient(), nil
	default:
		geminiConfig := cfg.Gemini
		if geminiConfig.SystemPrompt == "" {
			geminiConfig.SystemPrompt = domain.TutorSystemPrompt
		}
		return llm.NewGeminiLLM(client, geminiConfig, logger)
	}
}
