// Package relay implements the rendezvous server stations use to find and
// talk to each other.
//
// A station opens a websocket to /ws and registers an address. A client
// station then asks the relay to connect it to a host address; once the
// host answers, the relay forwards data frames between the two in order.
// When either socket ends, the relay tells the other side the link closed.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/eventguard/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
	sendBuffer     = 256
)

// Server is the relay. The zero value is not usable; call New.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	links   map[string]map[string]struct{}
}

// New creates a relay server.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger.With("component", "relay"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		links:   make(map[string]map[string]struct{}),
	}
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/peers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"peers": s.Peers()})
	})
	r.Get("/ws", s.serveWS)
	return r
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.closeAll()
		return srv.Shutdown(shutdownCtx)
	}
}

// Peers lists the registered addresses.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(conn)
	go c.writePump()
	s.readPump(c)
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("socket ended", "id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		f, err := transport.DecodeFrame(data)
		if err != nil {
			c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodeInvalidFrame, Message: err.Error()})
			continue
		}
		if !s.handle(c, f) {
			return
		}
	}
}

// handle processes one frame from c. It returns false when the socket
// should be closed.
func (s *Server) handle(c *client, f transport.Frame) bool {
	if c.id == "" {
		if f.Op != transport.OpRegister {
			c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodeInvalidFrame, Message: "register first"})
			return true
		}
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		if !s.register(id, c) {
			c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodeUnavailableID, ID: id})
			return false
		}
		c.sendFrame(transport.Frame{Op: transport.OpRegistered, ID: id})
		return true
	}

	switch f.Op {
	case transport.OpConnect:
		if !s.link(c.id, f.To) {
			c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodePeerUnavailable, ID: f.To})
			return true
		}
		s.forward(f.To, transport.Frame{Op: transport.OpConnect, From: c.id})
	case transport.OpOpen, transport.OpData:
		if !s.linked(c.id, f.To) || !s.forward(f.To, transport.Frame{Op: f.Op, From: c.id, Data: f.Data}) {
			c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodePeerUnavailable, ID: f.To})
		}
	case transport.OpClose:
		if s.unlink(c.id, f.To) {
			s.forward(f.To, transport.Frame{Op: transport.OpClose, From: c.id})
		}
	default:
		c.sendFrame(transport.Frame{Op: transport.OpError, Code: transport.CodeInvalidFrame, Message: "unexpected " + string(f.Op)})
	}
	return true
}

func (s *Server) register(id string, c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.clients[id]; taken {
		return false
	}
	c.id = id
	s.clients[id] = c
	s.logger.Debug("peer registered", "id", id)
	return true
}

func (s *Server) unregister(c *client) {
	if c.id == "" {
		return
	}
	s.mu.Lock()
	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
	peers := s.links[c.id]
	delete(s.links, c.id)
	for p := range peers {
		delete(s.links[p], c.id)
	}
	s.mu.Unlock()

	for p := range peers {
		s.forward(p, transport.Frame{Op: transport.OpClose, From: c.id})
	}
	s.logger.Debug("peer unregistered", "id", c.id, "links", len(peers))
}

// link records a link between a and b if b is registered.
func (s *Server) link(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[b]; !ok || a == b {
		return false
	}
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		m := s.links[pair[0]]
		if m == nil {
			m = make(map[string]struct{})
			s.links[pair[0]] = m
		}
		m[pair[1]] = struct{}{}
	}
	return true
}

func (s *Server) linked(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.links[a][b]
	return ok
}

func (s *Server) unlink(a, b string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[a][b]; !ok {
		return false
	}
	delete(s.links[a], b)
	delete(s.links[b], a)
	return true
}

// forward queues f for the peer registered as to.
func (s *Server) forward(to string, f transport.Frame) bool {
	s.mu.Lock()
	c := s.clients[to]
	s.mu.Unlock()
	if c == nil {
		return false
	}
	return c.sendFrame(f)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
