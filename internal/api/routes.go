package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/internal/metrics"
	"github.com/satriahrh/englichat/internal/websocket"
	"github.com/satriahrh/englichat/usecase"
)

// Dependencies are the services the routes are served from
type Dependencies struct {
	Hub      *websocket.Hub
	Chat     *usecase.ChatService
	Progress entities.ProgressMetrics
	Metrics  *metrics.Metrics
	// MetricsHandler serves /metrics; nil leaves the route out
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	e.Use(MetricsMiddleware(deps.Metrics))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:       "ok",
			Service:      "englichat-server",
			VoiceClients: deps.Hub.ClientCount(),
			ChatSessions: deps.Chat.Count(),
		})
	})

	if deps.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(deps.MetricsHandler))
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.GET("/dashboard", func(c echo.Context) error {
		return c.JSON(http.StatusOK, usecase.BuildDashboard(deps.Progress))
	})

	// Text chat APIs
	v1.POST("/chat/sessions", func(c echo.Context) error {
		return createChat(c, deps.Chat, logger)
	})
	v1.GET("/chat/sessions/:id/messages", func(c echo.Context) error {
		return getMessages(c, deps.Chat)
	})
	v1.POST("/chat/sessions/:id/messages", func(c echo.Context) error {
		return sendMessage(c, deps.Chat, logger)
	})

	// Voice socket
	e.GET("/ws/voice", func(c echo.Context) error {
		return websocket.HandleWebSocket(deps.Hub, c, logger)
	})
}

func createChat(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	session := chat.Create(c.Request().Context())
	logger.Info("Chat session opened", zap.String("chatID", session.ID))

	return c.JSON(http.StatusCreated, ChatSessionResponse{
		ID:       session.ID,
		Messages: session.Messages(),
		Busy:     session.Busy(),
	})
}

func getMessages(c echo.Context, chat *usecase.ChatService) error {
	session, err := chat.Get(c.Param("id"))
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(http.StatusOK, ChatSessionResponse{
		ID:       session.ID,
		Messages: session.Messages(),
		Busy:     session.Busy(),
	})
}

func sendMessage(c echo.Context, chat *usecase.ChatService, logger *zap.Logger) error {
	var req SendMessageRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind chat message request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	added, err := chat.Submit(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		logger.Warn("Chat message rejected",
			zap.String("chatID", c.Param("id")),
			zap.Error(err))
		return chatError(c, err)
	}

	return c.JSON(http.StatusOK, SendMessageResponse{Messages: added})
}

// chatError maps chat service errors onto HTTP responses
func chatError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrChatNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "chat_not_found",
			Message: "Chat session not found",
		})
	case errors.Is(err, usecase.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "empty_message",
			Message: "Message text is required",
		})
	case errors.Is(err, usecase.ErrChatBusy):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "chat_busy",
			Message: "Wait for the tutor to reply",
		})
	case errors.Is(err, usecase.ErrChatUnavailable):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "chat_unavailable",
			Message: "The tutor could not be reached for this chat",
		})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Unexpected error",
		})
	}
}

// MetricsMiddleware records request count and latency per route
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			m.RecordHTTPRequest(c.Request().Method, endpoint,
				strconv.Itoa(c.Response().Status), time.Since(start))
			return nil
		}
	}
}
