package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	probeTimeout = 500 * time.Millisecond
	dialTimeout  = 5 * time.Second
)

// NATS links peers through a NATS server. Every peer subscribes to its own
// inbox subject, <namespace>.inbox.<address>, and frames are published to
// the recipient's inbox. A single publisher's frames to one subject arrive
// in order, which gives each link FIFO delivery. Data larger than the
// server's max_payload is split into chunks and joined again on receipt.
type NATS struct {
	nc        *nats.Conn
	namespace string
	h         Handler
	logger    *slog.Logger
	peers     *peerSet
	chunks    *reassembler

	mu      sync.Mutex
	id      string
	sub     *nats.Subscription
	dialing string
	timer   *time.Timer
	started bool
	closed  bool
}

// NewNATSFactory returns a Factory whose transports each open their own
// connection to url.
func NewNATSFactory(url, namespace string, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(h Handler) (Transport, error) {
		nc, err := nats.Connect(url, nats.Name("eventguard"))
		if err != nil {
			return nil, fmt.Errorf("connect to nats %s: %w", url, err)
		}
		return newNATS(nc, namespace, h, logger), nil
	}
}

func newNATS(nc *nats.Conn, namespace string, h Handler, logger *slog.Logger) *NATS {
	return &NATS{
		nc:        nc,
		namespace: namespace,
		h:         h,
		logger:    logger.With("transport", "nats"),
		peers:     newPeerSet(),
		chunks:    newReassembler(),
	}
}

func (n *NATS) inbox(addr string) string {
	return n.namespace + ".inbox." + addr
}

func (n *NATS) start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if n.started {
		return errAlreadyStarted
	}
	n.started = true
	return nil
}

// probe reports whether some peer currently answers on addr's inbox.
func (n *NATS) probe(ctx context.Context, addr string) (bool, error) {
	req, err := Frame{Op: OpRegister, ID: addr}.Encode()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err = n.nc.RequestWithContext(ctx, n.inbox(addr), req)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (n *NATS) subscribe(id string) error {
	sub, err := n.nc.Subscribe(n.inbox(id), n.handle)
	if err != nil {
		return err
	}
	if err := n.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return err
	}
	n.mu.Lock()
	n.id = id
	n.sub = sub
	n.mu.Unlock()
	return nil
}

func (n *NATS) Listen(ctx context.Context, addr string) error {
	if err := n.start(); err != nil {
		return err
	}
	taken, err := n.probe(ctx, addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	return n.subscribe(addr)
}

func (n *NATS) Dial(ctx context.Context, addr string) error {
	if err := n.start(); err != nil {
		return err
	}
	up, err := n.probe(ctx, addr)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	if !up {
		return fmt.Errorf("%w: %s", ErrPeerUnavailable, addr)
	}

	id := uuid.NewString()
	if err := n.subscribe(id); err != nil {
		return err
	}

	n.mu.Lock()
	n.dialing = addr
	n.timer = time.AfterFunc(dialTimeout, func() { n.dialExpired(addr) })
	n.mu.Unlock()

	return n.publish(addr, Frame{Op: OpConnect, From: id})
}

func (n *NATS) dialExpired(addr string) {
	n.mu.Lock()
	pending := n.dialing == addr && !n.closed
	n.dialing = ""
	n.mu.Unlock()
	if pending && !n.peers.has(addr) {
		n.h.OnError(addr, fmt.Errorf("%w: %s: no answer", ErrPeerUnavailable, addr))
	}
}

func (n *NATS) handle(msg *nats.Msg) {
	f, err := DecodeFrame(msg.Data)
	if err != nil {
		n.logger.Warn("dropping invalid frame", "error", err)
		return
	}

	n.mu.Lock()
	id, closed := n.id, n.closed
	n.mu.Unlock()
	if closed {
		return
	}

	switch f.Op {
	case OpRegister:
		if msg.Reply != "" {
			reply, _ := Frame{Op: OpRegistered, ID: id}.Encode()
			msg.Respond(reply)
		}
	case OpConnect:
		n.peers.add(f.From)
		if err := n.publish(f.From, Frame{Op: OpOpen, From: id}); err != nil {
			n.peers.remove(f.From)
			n.h.OnError(f.From, err)
			return
		}
		n.h.OnOpen(f.From)
	case OpOpen:
		n.mu.Lock()
		if n.dialing == f.From {
			n.dialing = ""
			if n.timer != nil {
				n.timer.Stop()
			}
		}
		n.mu.Unlock()
		if n.peers.add(f.From) {
			n.h.OnOpen(f.From)
		}
	case OpData:
		if !n.peers.has(f.From) {
			return
		}
		if data, ok := n.chunks.add(f); ok {
			n.h.OnMessage(f.From, data)
		}
	case OpClose:
		n.chunks.drop(f.From)
		if n.peers.remove(f.From) {
			n.h.OnClose(f.From)
		}
	}
}

func (n *NATS) publish(to string, f Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return n.nc.Publish(n.inbox(to), data)
}

func (n *NATS) Send(peer string, data []byte) error {
	n.mu.Lock()
	id, closed := n.id, n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !n.peers.has(peer) {
		return fmt.Errorf("%w: %s", ErrPeerUnavailable, peer)
	}
	frames, err := chunkData(id, data, n.nc.MaxPayload())
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := n.publish(peer, f); err != nil {
			return fmt.Errorf("send to %s: %w", peer, err)
		}
	}
	return nil
}

func (n *NATS) Broadcast(data []byte, exclude string) int {
	return broadcast(n, data, exclude)
}

func (n *NATS) Peers() []string {
	return n.peers.list()
}

// Close tells every linked peer the link is gone and closes the
// connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	id, sub, timer := n.id, n.sub, n.timer
	n.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	for _, p := range n.peers.drain() {
		if err := n.publish(p, Frame{Op: OpClose, From: id}); err != nil {
			n.logger.Debug("close frame not sent", "peer", p, "error", err)
		}
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	n.nc.Flush()
	n.nc.Close()
	return nil
}
