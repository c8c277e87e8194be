package relay

import (
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mivton/callkit/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the WebSocket signaling relay. Clients connect to /ws with
// their user ID as a query parameter:
//
//	ws://relay.example.com/ws?user=alice
type Server struct {
	hub      *Hub
	listener net.Listener
}

// NewServer creates a relay server with an empty hub.
func NewServer() *Server {
	return &Server{hub: NewHub()}
}

// Hub exposes the routing hub, mainly for inspection.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening on addr (":0" picks a random port). Returns the
// bound port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	util.LogInfo("relay listening on port %d", port)
	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(s.hub, conn, userID, uuid.NewString())
	s.hub.register(c)
	go c.writePump()
	go c.readPump()
}

// Close shuts down the listener, preventing new connections.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}
