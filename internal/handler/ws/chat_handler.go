package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/middleware"
	"tourly-backend/internal/realtime"
	"tourly-backend/internal/session"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
	"tourly-backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 16 * 1024
	sendBufferSize = 256
	actionTimeout  = 10 * time.Second
)

// Client frame types
const (
	FrameSend        = "send"
	FrameLoadEarlier = "load_earlier"
	FrameRetry       = "retry"
)

// Server frame types
const (
	FrameSnapshot = "snapshot"
	FrameScroll   = "scroll"
	FrameSent     = "sent"
	FrameError    = "error"
)

// ClientFrame is a frame received from the browser
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is a frame pushed to the browser
type ServerFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ErrorDetail describes a failed action or load
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type snapshotData struct {
	session.Snapshot
	Error *ErrorDetail `json:"error,omitempty"`
}

// ConversationReader fetches conversations for the upgrade check
type ConversationReader interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
}

// SessionConfig tunes the per-connection chat session
type SessionConfig struct {
	PageSize     int
	ReadDebounce time.Duration
}

// ChatHandler serves one chat session per websocket connection
type ChatHandler struct {
	conversations ConversationReader
	messages      session.MessageStore
	realtime      realtime.Subscriber
	config        SessionConfig
	logger        *zap.Logger
	upgrader      websocket.Upgrader

	mu       sync.Mutex
	clients  map[*Client]struct{}
	closing  bool
	sessions sync.WaitGroup
}

// NewChatHandler creates a websocket chat handler. allowedOrigins restricts
// the upgrade; an empty list accepts any origin.
func NewChatHandler(
	conversations ConversationReader,
	messages session.MessageStore,
	hub realtime.Subscriber,
	cfg SessionConfig,
	allowedOrigins []string,
	log *zap.Logger,
) *ChatHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
		realtime:      hub,
		config:        cfg,
		logger:        logger.OrNop(log),
		clients:       make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// Client is one websocket connection and its session
type Client struct {
	conn       *websocket.Conn
	controller *session.Controller
	send       chan []byte
	logger     *zap.Logger
	cancel     context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
}

// ServeWS handles WebSocket requests
// GET /v1/ws/chat?conversation_id=uuid
func (h *ChatHandler) ServeWS(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Query("conversation_id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation_id")
		return
	}

	participantID, _, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if h.isClosing() {
		response.FromError(c, errors.ServiceUnavailableError("Server is shutting down"))
		return
	}

	conversation, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if conversation == nil || !conversation.HasParticipant(participantID) {
		response.FromError(c, errors.ConversationNotFoundError())
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	log := h.logger.With(
		zap.String("conversation_id", conversationID.String()),
		zap.String("participant_id", participantID.String()),
	)
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	client.controller = session.New(session.Dependencies{
		Conversations: h.conversations,
		Messages:      h.messages,
		Realtime:      h.realtime,
		Logger:        log,
	}, session.Config{
		ConversationID: conversationID,
		UserID:         participantID,
		PageSize:       h.config.PageSize,
		ReadDebounce:   h.config.ReadDebounce,
	},
		session.WithObserver(client.pushSnapshot),
		session.WithScrollToLatest(client.pushScroll),
	)

	if !h.register(client) {
		cancel()
		conn.Close()
		return
	}

	metrics.ChatWebSocketConnections.Inc()

	go client.writePump()
	go func() {
		defer h.sessions.Done()
		client.controller.Load(ctx)
	}()
	go func() {
		defer h.unregister(client)
		client.readPump(ctx)
	}()
}

// register tracks a client and its two session goroutines. It fails once
// Shutdown has started.
func (h *ChatHandler) register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return false
	}
	h.clients[client] = struct{}{}
	h.sessions.Add(2)
	return true
}

func (h *ChatHandler) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	h.sessions.Done()
}

func (h *ChatHandler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Clients returns the number of open websocket sessions
func (h *ChatHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown refuses new sessions, closes every open connection and waits for
// their sessions to stop issuing store calls. Hijacked websocket connections
// are not covered by http.Server.Shutdown.
func (h *ChatHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.cancel()
		client.stop()
		client.conn.Close()
	}

	stopped := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		h.logger.Info("WebSocket sessions closed", zap.Int("sessions", len(clients)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readPump reads client frames and drives the session until the socket closes
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.cancel()
		c.controller.Close()
		c.stop()
		c.conn.Close()
		metrics.ChatWebSocketConnections.Dec()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}
		metrics.ChatWebSocketMessagesTotal.WithLabelValues("in").Inc()

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.pushError(errors.InvalidInputError("Invalid frame"))
			continue
		}

		c.handle(ctx, frame)
	}
}

func (c *Client) handle(ctx context.Context, frame ClientFrame) {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	switch frame.Type {
	case FrameSend:
		message, err := c.controller.Send(actionCtx, frame.Text)
		if err != nil {
			c.pushError(err)
			return
		}
		c.push(ServerFrame{Type: FrameSent, Data: message})

	case FrameLoadEarlier:
		if err := c.controller.LoadEarlier(actionCtx); err != nil {
			c.pushError(err)
		}

	case FrameRetry:
		if err := c.controller.Retry(actionCtx); err != nil {
			c.pushError(err)
		}

	default:
		c.pushError(errors.InvalidInputError("Unknown frame type"))
	}
}

// writePump writes queued frames and keeps the connection alive with pings
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.stop()
				return
			}
			metrics.ChatWebSocketMessagesTotal.WithLabelValues("out").Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) pushSnapshot(snapshot session.Snapshot) {
	data := snapshotData{Snapshot: snapshot}
	if snapshot.Err != nil {
		appErr := errors.GetAppError(snapshot.Err)
		data.Error = &ErrorDetail{Code: string(appErr.Code), Message: appErr.Message}
	}
	c.push(ServerFrame{Type: FrameSnapshot, Data: data})
}

func (c *Client) pushScroll() {
	c.push(ServerFrame{Type: FrameScroll})
}

func (c *Client) pushError(err error) {
	appErr := errors.GetAppError(err)
	c.push(ServerFrame{Type: FrameError, Data: ErrorDetail{Code: string(appErr.Code), Message: appErr.Message}})
}

// push queues a frame. A client that cannot keep up is disconnected.
func (c *Client) push(frame ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to encode frame", zap.String("type", frame.Type), zap.Error(err))
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- payload:
	case <-c.done:
	default:
		metrics.ChatClientMessageDroppedTotal.WithLabelValues("slow_consumer").Inc()
		c.logger.Warn("Send buffer full, closing connection")
		c.stop()
		c.conn.Close()
	}
}

func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
