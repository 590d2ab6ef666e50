package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/http/middleware"
	"plugin/backend/services/marketplace/internal/metrics"
)

// Server upgrades authenticated HTTP requests to realtime sessions.
type Server struct {
	manager      *Manager
	tokens       middleware.TokenValidator
	deps         SessionDeps
	metrics      *metrics.Metrics
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(manager *Manager, tokens middleware.TokenValidator, deps SessionDeps, m *metrics.Metrics, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager:      manager,
		tokens:       tokens,
		deps:         deps,
		metrics:      m,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP handles GET /ws. The token comes from the token query parameter or the
// Authorization header.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var session *Session
	connection := NewConnection(uuid.NewString(), claims.UserID, conn, s.writeTimeout, s.logger, func(c *Connection) {
		s.manager.Remove(c.ID())
		cancel()
		session.Close()
		s.metrics.SessionClosed()
		s.logger.Info("realtime session closed", zap.String("conn_id", c.ID()), zap.String("user_id", c.UserID()))
	})
	session = NewSession(claims.UserID, s.deps, connection.Send)
	s.manager.Add(connection)
	s.metrics.SessionOpened()

	go connection.Start(ctx, session)
	s.logger.Info("realtime session opened", zap.String("conn_id", connection.ID()), zap.String("user_id", claims.UserID))
}
