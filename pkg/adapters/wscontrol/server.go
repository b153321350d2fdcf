// Package wscontrol exposes pause, resume, stop and status of a running
// session over a websocket.
//
// Clients send one JSON command per text message:
//
//	{"command": "pause"}
//
// and receive a result for every command plus a status message whenever the
// session changes.
package wscontrol

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/session"
)

// Commands accepted on the control socket.
const (
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandStop   = "stop"
	CommandStatus = "status"
)

// Message types sent to clients.
const (
	TypeResult = "result"
	TypeStatus = "status"
)

const (
	writeWait   = 5 * time.Second
	sendBuffer  = 16
	maxReadSize = 4096
)

// ErrUnknownCommand is reported to clients sending an unrecognised command.
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the part of a session the server drives.
type Controller interface {
	Pause() error
	Resume() error
	Stop()
	Snapshot() session.Snapshot
	Watch(fn func(session.Snapshot)) (cancel func())
}

// Request is a client command.
type Request struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
}

// Message is sent to clients.
type Message struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Command string            `json:"command,omitempty"`
	OK      bool              `json:"ok,omitempty"`
	Error   string            `json:"error,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

// Server serves the control socket.
type Server struct {
	ctrl     Controller
	logger   ports.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	unwatch func()
}

type client struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// New creates a server. It starts watching ctrl immediately.
func New(ctrl Controller, logger ports.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: logger.WithComponent("control"),
		upgrader: websocket.Upgrader{
			// The socket is meant for local tools; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	s.unwatch = ctrl.Watch(s.broadcast)
	return s
}

// Handler returns the HTTP routes: /control (websocket) and /status (JSON).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then closes every client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.Close()
	}()

	s.logger.Info("Control server listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops watching the session and disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	// writeLoop sends a close frame and closes each connection.
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.ctrl.Snapshot())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxReadSize)

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("Client connected: %s", conn.RemoteAddr())

	go s.writeLoop(c)
	s.enqueue(c, s.statusMessage())
	s.readLoop(c)

	s.remove(c)
	s.logger.Debug("Client disconnected: %s", conn.RemoteAddr())
}

func (s *Server) readLoop(c *client) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.enqueue(c, Message{Type: TypeResult, Error: "invalid request: " + err.Error()})
			continue
		}

		result := Message{Type: TypeResult, ID: req.ID, Command: req.Command}
		if err := s.execute(req.Command); err != nil {
			result.Error = err.Error()
		} else {
			result.OK = true
		}
		s.enqueue(c, result)

		// State changes reach every client through Watch. A plain status
		// request, or a command that changed nothing, is answered here.
		if req.Command == CommandStatus || result.Error != "" {
			s.enqueue(c, s.statusMessage())
		}
	}
}

func (s *Server) execute(command string) error {
	switch command {
	case CommandPause:
		return s.ctrl.Pause()
	case CommandResume:
		return s.ctrl.Resume()
	case CommandStop:
		s.logger.Info("Stop requested by control client")
		s.ctrl.Stop()
		return nil
	case CommandStatus:
		return nil
	default:
		return ErrUnknownCommand
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// enqueue never blocks. A client too slow to keep up loses messages.
func (s *Server) enqueue(c *client, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		s.logger.Debug("Dropping message for slow client %s", c.conn.RemoteAddr())
	}
}

func (s *Server) broadcast(snap session.Snapshot) {
	msg := Message{Type: TypeStatus, Session: &snap}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.enqueue(c, msg)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
}

func (s *Server) statusMessage() Message {
	snap := s.ctrl.Snapshot()
	return Message{Type: TypeStatus, Session: &snap}
}
