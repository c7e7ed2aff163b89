package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/eventguard/internal/protocol"
	"github.com/roach88/eventguard/internal/transport"
)

// Mode is the station's role in sync.
type Mode string

const (
	ModeAlone  Mode = "ALONE"
	ModeHost   Mode = "HOST"
	ModeClient Mode = "CLIENT"
)

// Operator alert texts.
const (
	MsgJoinFailed = "Could not connect to host. Check code and internet."
	MsgHostLost   = "Disconnected from host. Leave the session and join again to resume sync."
	MsgBulkNotice = "Note: Bulk import during live sync is not fully broadcast to avoid network congestion. Please reconnect clients to fetch full list."
)

// maxHostAttempts bounds the codes tried when the relay reports the host
// address as taken.
const maxHostAttempts = 3

// session is the ephemeral sync session. It exists from the moment a
// Host/Join is accepted; active marks a successful listen (HOST) or an
// applied INIT from the host (CLIENT). linked marks an open host link.
// Owned by the Run goroutine.
type session struct {
	gen      uint64
	mode     Mode
	active   bool
	linked   bool
	hostLost bool
	code     string
	hostAddr string
	t        transport.Transport
	waiters  []chan error
}

// Status describes the station's sync state.
type Status struct {
	Mode        Mode     `json:"mode"`
	Code        string   `json:"code,omitempty"`
	Connections int      `json:"connections"`
	Peers       []string `json:"peers"`
	Pending     bool     `json:"pending"`
	NodeID      string   `json:"nodeId"`
}

// handler adapts transport callbacks to queue events tagged with the
// session generation.
type handler struct {
	q   *eventQueue
	gen uint64
}

func (h handler) OnOpen(peer string) {
	h.q.Enqueue(Event{Type: EventTypeOpen, Gen: h.gen, Peer: peer})
}

func (h handler) OnMessage(peer string, data []byte) {
	h.q.Enqueue(Event{Type: EventTypeMessage, Gen: h.gen, Peer: peer, Data: data})
}

func (h handler) OnClose(peer string) {
	h.q.Enqueue(Event{Type: EventTypeClose, Gen: h.gen, Peer: peer})
}

func (h handler) OnError(peer string, err error) {
	h.q.Enqueue(Event{Type: EventTypeError, Gen: h.gen, Peer: peer, Err: err})
}

// StartHosting opens a session as HOST and returns its code. Clients join
// with the code; each receives an INIT snapshot when its link opens.
func (e *Engine) StartHosting(ctx context.Context) (string, error) {
	var err error
	for range maxHostAttempts {
		var code string
		code, err = e.tryHost(ctx)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, transport.ErrAddressInUse) {
			return "", err
		}
		e.logger.Warn("host address taken, trying another code", "error", err)
	}
	_ = e.do(ctx, func(context.Context) {
		e.alert(AlertError, "Could not start hosting: "+errorType(err))
	})
	return "", err
}

func (e *Engine) tryHost(ctx context.Context) (string, error) {
	var (
		s   *session
		err error
	)
	if derr := e.do(ctx, func(context.Context) {
		code := e.codes()
		s, err = e.reserve(ModeHost, code, protocol.HostAddress(e.namespace, code))
	}); derr != nil {
		return "", derr
	}
	if err != nil {
		return "", err
	}

	lerr := s.t.Listen(ctx, s.hostAddr)

	if derr := e.do(ctx, func(context.Context) {
		if e.sess != s {
			err = ErrNoSession
			return
		}
		if lerr != nil {
			e.teardown(lerr)
			err = fmt.Errorf("listen on %s: %w", s.hostAddr, lerr)
			if !errors.Is(lerr, transport.ErrAddressInUse) {
				e.alert(AlertError, "Could not start hosting: "+errorType(lerr))
			}
			return
		}
		s.active = true
		s.release(nil)
		e.logger.Info("hosting sync session", "code", s.code, "address", s.hostAddr)
	}); derr != nil {
		return "", derr
	}
	if err != nil {
		return "", err
	}
	return s.code, nil
}

// JoinSession opens a session as CLIENT of the host holding code. The link
// is opened asynchronously; AwaitSession reports its outcome. A link that
// fails before the host's INIT arrives returns the station to ALONE with an
// alert. Until then nothing local is sent to the host.
func (e *Engine) JoinSession(ctx context.Context, code string) error {
	code, err := protocol.ParseSessionCode(strings.TrimSpace(code))
	if err != nil {
		return err
	}

	var s *session
	if derr := e.do(ctx, func(context.Context) {
		s, err = e.reserve(ModeClient, code, protocol.HostAddress(e.namespace, code))
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	derr := s.t.Dial(ctx, s.hostAddr)
	if derr == nil {
		e.logger.Info("joining sync session", "code", code, "address", s.hostAddr)
		return nil
	}

	_ = e.do(ctx, func(context.Context) {
		if e.sess != s {
			return
		}
		e.teardown(derr)
		e.alert(AlertError, MsgJoinFailed)
	})
	return fmt.Errorf("dial %s: %w", s.hostAddr, derr)
}

// AwaitSession blocks until the current session is established: listening
// for a HOST, the host's INIT applied for a CLIENT. It returns the failure
// that ended a session before it was established.
func (e *Engine) AwaitSession(ctx context.Context) error {
	var (
		wait chan error
		err  error
	)
	if derr := e.do(ctx, func(context.Context) {
		switch {
		case e.sess == nil:
			err = ErrNoSession
		case e.sess.active:
		default:
			wait = make(chan error, 1)
			e.sess.waiters = append(e.sess.waiters, wait)
		}
	}); derr != nil {
		return derr
	}
	if err != nil || wait == nil {
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveSession destroys the session and returns the station to ALONE.
func (e *Engine) LeaveSession(ctx context.Context) error {
	var err error
	if derr := e.do(ctx, func(context.Context) {
		if e.sess == nil {
			err = ErrNoSession
			return
		}
		e.teardown(ErrNoSession)
		e.logger.Info("left sync session")
	}); derr != nil {
		return derr
	}
	return err
}

// Status reports the station's sync state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := e.do(ctx, func(context.Context) {
		st = e.status()
	}); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (e *Engine) status() Status {
	st := Status{Mode: ModeAlone, Peers: []string{}, NodeID: e.origin}
	s := e.sess
	if s == nil {
		return st
	}
	if !s.active {
		st.Pending = true
		return st
	}
	st.Mode = s.mode
	st.Code = s.code
	st.Peers = s.t.Peers()
	st.Connections = len(st.Peers)
	return st
}

// reserve creates the session and its transport. hostAddr is the address
// the host listens on.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) reserve(mode Mode, code, hostAddr string) (*session, error) {
	if e.sess != nil {
		return nil, ErrSessionActive
	}
	e.gen++
	t, err := e.factory(handler{q: e.queue, gen: e.gen})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	e.sess = &session{gen: e.gen, mode: mode, code: code, hostAddr: hostAddr, t: t}
	return e.sess, nil
}

// teardown closes the session's links and returns the station to ALONE.
// Waiters still pending receive reason.
// CRITICAL: Called only from Run() goroutine.
func (e *Engine) teardown(reason error) {
	s := e.sess
	if s == nil {
		return
	}
	e.sess = nil
	if err := s.t.Close(); err != nil {
		e.logger.Warn("closing transport failed", "error", err)
	}
	s.release(reason)
	e.metrics.SetPeers(0)
}

func (s *session) release(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

// errorType names a transport failure in operator alerts.
func errorType(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, transport.ErrPeerUnavailable):
		return transport.CodePeerUnavailable
	case errors.Is(err, transport.ErrAddressInUse):
		return transport.CodeUnavailableID
	case errors.Is(err, transport.ErrRelayLost):
		return "network"
	case errors.Is(err, transport.ErrClosed):
		return "disconnected"
	default:
		return err.Error()
	}
}
