package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relay/internal/relay/registry"
	"relay/internal/validator"
)

// ServerConfig holds configuration for the WebSocket server.
type ServerConfig struct {
	Port    int           `env:"WS_PORT" envDefault:"8080"`
	Timeout time.Duration `env:"WS_TIMEOUT" envDefault:"30s"`
}

// Server accepts WebSocket connections and binds each one to a fresh session.
type Server struct {
	server   *http.Server
	hub      *Hub
	registry *registry.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server serving connections at /ws.
func NewServer(config ServerConfig, hub *Hub, reg *registry.Registry, logger *zap.Logger) (*Server, error) {
	s := Server{
		hub:      hub,
		registry: reg,
		logger:   logger.Named("ws-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin enforcement belongs to the edge proxy in this deployment
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	if err := validator.Validate("ws server", s.hub, s.registry, s.logger, config.Port); err != nil {
		return nil, fmt.Errorf("failed to validate server dependencies: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", config.Port),
		Handler:     mux,
		ReadTimeout: 0, // connections are long-lived; deadlines live on the pumps
		IdleTimeout: config.Timeout * 2,
	}

	return &s, nil
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	client := newClient(sessionID, conn, s.hub, s.registry, s.logger)

	s.hub.attach(client)
	s.logger.Info("session connected", zap.String("session_id", sessionID))

	client.run()

	s.logger.Info("session disconnected", zap.String("session_id", sessionID))
}

// Start starts the WebSocket server and blocks until the context is done or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting websocket server", zap.String("addr", s.server.Addr))

	errCh := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("websocket server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop(ctx)
	}
}

// Stop gracefully stops the server and disconnects every session. Callers
// reach here with an already-cancelled context, so the shutdown grace period
// is detached from it and bounded on its own.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping websocket server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	s.hub.CloseAll()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("failed to gracefully shutdown websocket server", zap.Error(err))
		return err
	}

	s.logger.Info("websocket server stopped")
	return nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
