package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	registerTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second
)

// WebSocket links peers through a relay server reached over a websocket.
type WebSocket struct {
	url    string
	h      Handler
	logger *slog.Logger
	dialer *websocket.Dialer
	peers  *peerSet

	mu      sync.Mutex
	conn    *websocket.Conn
	id      string
	started bool
	closed  bool

	writeMu sync.Mutex
}

// NewWebSocketFactory returns a Factory for transports that use the relay
// at url (e.g. ws://relay.example:9000/ws).
func NewWebSocketFactory(url string, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(h Handler) (Transport, error) {
		return &WebSocket{
			url:    url,
			h:      h,
			logger: logger.With("transport", "websocket"),
			dialer: websocket.DefaultDialer,
			peers:  newPeerSet(),
		}, nil
	}
}

func (w *WebSocket) Listen(ctx context.Context, addr string) error {
	return w.connect(ctx, addr)
}

func (w *WebSocket) Dial(ctx context.Context, addr string) error {
	if err := w.connect(ctx, ""); err != nil {
		return err
	}
	return w.writeFrame(Frame{Op: OpConnect, To: addr})
}

// ID returns the address the relay registered this transport under.
func (w *WebSocket) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// connect opens the socket and registers id (empty asks the relay to
// assign one), then starts the read loop.
func (w *WebSocket) connect(ctx context.Context, id string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.started {
		w.mu.Unlock()
		return errAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("connect to relay %s: %w", w.url, err)
	}

	registered, err := register(ctx, conn, id)
	if err != nil {
		conn.Close()
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	w.conn = conn
	w.id = registered
	w.mu.Unlock()

	w.logger.Debug("registered with relay", "id", registered)
	go w.readLoop(conn)
	return nil
}

func register(ctx context.Context, conn *websocket.Conn, id string) (string, error) {
	deadline := time.Now().Add(registerTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	req, err := Frame{Op: OpRegister, ID: id}.Encode()
	if err != nil {
		return "", err
	}
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("register: %w", err)
		}
		f, err := DecodeFrame(data)
		if err != nil {
			continue
		}
		switch f.Op {
		case OpRegistered:
			return f.ID, nil
		case OpError:
			return "", f.Err()
		}
	}
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.disconnected(err)
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			w.logger.Warn("dropping invalid frame", "error", err)
			continue
		}
		w.dispatch(f)
	}
}

func (w *WebSocket) dispatch(f Frame) {
	if w.isClosed() {
		return
	}
	switch f.Op {
	case OpConnect:
		w.peers.add(f.From)
		if err := w.writeFrame(Frame{Op: OpOpen, To: f.From}); err != nil {
			w.peers.remove(f.From)
			w.h.OnError(f.From, err)
			return
		}
		w.h.OnOpen(f.From)
	case OpOpen:
		if w.peers.add(f.From) {
			w.h.OnOpen(f.From)
		}
	case OpData:
		if w.peers.has(f.From) {
			w.h.OnMessage(f.From, f.Data)
		}
	case OpClose:
		if w.peers.remove(f.From) {
			w.h.OnClose(f.From)
		}
	case OpError:
		if f.Code == CodePeerUnavailable {
			w.peers.remove(f.ID)
			w.h.OnError(f.ID, f.Err())
			return
		}
		w.h.OnError("", f.Err())
	}
}

func (w *WebSocket) disconnected(err error) {
	if w.isClosed() {
		return
	}
	w.logger.Warn("relay connection lost", "error", err)
	for _, p := range w.peers.drain() {
		w.h.OnClose(p)
	}
	w.h.OnError("", fmt.Errorf("%w: %v", ErrRelayLost, err))
}

func (w *WebSocket) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WebSocket) writeFrame(f Frame) error {
	w.mu.Lock()
	conn, closed := w.conn, w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrClosed)
	}

	data, err := f.Encode()
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) Send(peer string, data []byte) error {
	if !w.peers.has(peer) {
		return fmt.Errorf("%w: %s", ErrPeerUnavailable, peer)
	}
	return w.writeFrame(Frame{Op: OpData, To: peer, Data: data})
}

func (w *WebSocket) Broadcast(data []byte, exclude string) int {
	return broadcast(w, data, exclude)
}

func (w *WebSocket) Peers() []string {
	return w.peers.list()
}

// Close ends the relay connection. The relay tells every linked peer.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	w.peers.drain()
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return conn.Close()
}
