package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server is the WebSocket front door. It owns the connection set; game
// state lives behind the GameService in the table actors.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	logger   *log.Logger
	service  *GameService

	mu          sync.RWMutex
	connections map[*Connection]bool

	httpServer *http.Server
}

// NewServer creates a WebSocket server
func NewServer(addr string, service *GameService, logger *log.Logger) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Agents connect from arbitrary hosts; auth happens in-protocol
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:      logger.WithPrefix("server"),
		service:     service,
		connections: make(map[*Connection]bool),
	}
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.connections = make(map[*Connection]bool)
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, s.logger, s.service, s.onDisconnect)

	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()

	s.logger.Info("client connected", "remote", r.RemoteAddr, "total", total)
	conn.Start()
}

// onDisconnect benches the agent's seat rather than vacating it; chips stay
// on the table and the seat folds when action reaches it. The agent sits
// back in after reconnecting.
func (s *Server) onDisconnect(conn *Connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()

	agentID, tableID := conn.AgentID(), conn.TableID()
	if agentID == "" || tableID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.service.SitOut(ctx, agentID, tableID); err != nil {
		s.logger.Warn("sit-out on disconnect failed", "agent_id", agentID, "error", err)
	} else {
		s.logger.Info("agent sat out on disconnect", "agent_id", agentID, "table_id", tableID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connections := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": connections,
		"tables":      len(s.service.Registry().List()),
	})
}
