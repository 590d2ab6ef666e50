package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	maxMessage   = 64 * 1024
	sendBuffer   = 16
)

// MessageProcessor handles raw client frames.
type MessageProcessor interface {
	Process(ctx context.Context, raw []byte)
}

// Connection represents an active client WebSocket connection.
type Connection struct {
	id           string
	userID       string
	ws           *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration
	onClose      func(c *Connection)

	mu     sync.Mutex
	send   chan []byte
	closed bool
	once   sync.Once
}

// NewConnection builds connection wrapper.
func NewConnection(id, userID string, ws *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Connection{
		id:           id,
		userID:       userID,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		logger:       logger.With(zap.String("conn_id", id), zap.String("user_id", userID)),
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated user.
func (c *Connection) UserID() string {
	return c.userID
}

// Start launches the write pump and blocks in the read pump until the connection ends.
func (c *Connection) Start(ctx context.Context, processor MessageProcessor) {
	go c.writePump(ctx)
	c.readPump(ctx, processor)
}

func (c *Connection) readPump(ctx context.Context, processor MessageProcessor) {
	defer c.Close()
	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("connection read closed", zap.Error(err))
			}
			return
		}
		processor.Process(ctx, message)
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() { _ = c.ws.Close() }()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send enqueues a frame. Frames sent after Close, or while the buffer is full, are dropped.
func (c *Connection) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("dropping outgoing message, buffer full")
		return false
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}
