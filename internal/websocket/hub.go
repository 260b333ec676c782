package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/metrics"
	"github.com/satriahrh/englichat/internal/voice"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	// Outbound messages buffered per client.
	sendBufferSize = 256
)

var (
	errClientClosed   = errors.New("client connection closed")
	errSendBufferFull = errors.New("client send buffer full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected browsers. Every client owns one voice
// controller.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	live        repositories.LiveModel
	voiceConfig voice.Config

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new WebSocket hub
func NewHub(
	live repositories.LiveModel,
	voiceConfig voice.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		live:        live,
		voiceConfig: voiceConfig,
		logger:      logger,
		metrics:     m,
	}
}

// Run starts the hub's main loop. When ctx ends every client is
// disconnected, which stops its voice session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.shutdown()
			}
			h.mu.Unlock()
			h.metrics.SetSocketClients(0)
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetSocketClients(count)
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.shutdown()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetSocketClients(count)
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))
		}
	}
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its voice
// session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the client is disconnected; ctx ends at the same time.
	closed    chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	id        string
	logger    *zap.Logger
	validator *MessageValidator

	device     *BrowserDevice
	controller *voice.Controller
}

func newClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBufferSize),
		closed:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		id:        id,
		logger:    logger.With(zap.String("clientID", id)),
		validator: NewMessageValidator(),
	}
	c.device = NewBrowserDevice(c, c.logger)
	c.controller = voice.NewController(c.device, hub.live, hub.voiceConfig, c.logger, hub.metrics,
		voice.WithObserver(c.publish))
	return c
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, logger)

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the controller.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		if err := c.controller.Stop(); err != nil {
			c.logger.Warn("Voice session stopped with errors", zap.Error(err))
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			if err := c.device.HandleFrame(message); err != nil {
				c.logger.Debug("Dropping microphone frame", zap.Int("size", len(message)), zap.Error(err))
			}
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the client to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes control messages from the browser
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError(ErrorCodeInvalidMessage, "Invalid message", err.Error())
		return
	}

	switch m := msg.(type) {
	case *VoiceStartMessage:
		// Start waits for mic_granted, which this goroutine has to read.
		go c.startVoice()
	case *VoiceStopMessage:
		if err := c.controller.Stop(); err != nil {
			c.sendError(ErrorCodeStopFailed, "Voice session stopped with errors", err.Error())
		}
	case *MicGrantedMessage:
		c.device.resolvePermission(permission{granted: true, sampleRate: m.SampleRate})
	case *MicDeniedMessage:
		c.device.resolvePermission(permission{reason: m.Reason})
	case *PingMessage:
		c.sendJSONOrLog(CreatePongMessage(m.Data))
	}
}

func (c *Client) startVoice() {
	if c.ctx.Err() != nil {
		return
	}

	err := c.controller.Start(c.ctx)
	if err != nil && c.ctx.Err() != nil {
		// The client went away mid-start, possibly after readPump's Stop.
		if stopErr := c.controller.Stop(); stopErr != nil {
			c.logger.Debug("Voice session stopped with errors", zap.Error(stopErr))
		}
		return
	}

	switch {
	case err == nil, errors.Is(err, voice.ErrSessionClosed):
	case errors.Is(err, voice.ErrSessionBusy):
		c.sendError(ErrorCodeSessionBusy, "Voice session already in progress", "")
	default:
		c.sendError(ErrorCodeStartFailed, "Failed to start voice session", err.Error())
	}
}

// publish forwards controller snapshots. It runs under the controller lock
// and only queues the message.
func (c *Client) publish(snapshot voice.Snapshot) {
	c.sendJSONOrLog(CreateVoiceStateMessage(snapshot.Status, snapshot.Transcripts))
}

func (c *Client) sendError(code, message, details string) {
	c.sendJSONOrLog(CreateErrorMessage(code, message, details))
}

func (c *Client) sendJSONOrLog(v interface{}) {
	if err := c.sendJSON(v); err != nil {
		c.logger.Debug("Failed to queue message", zap.Error(err))
	}
}

// sendJSON queues v without waiting for the writer
func (c *Client) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
	})
}
