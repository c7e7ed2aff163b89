// Package transport provides relay-assisted peer links for sync sessions.
//
// A Transport is created per session and bound to a Handler. A host calls
// Listen with its well-known address; a client calls Dial with the host's
// address. Once a link opens, either side can Send to the other. Each link
// delivers messages reliably and in order; nothing is retried or resent
// after a link fails.
//
// Handler callbacks run on transport goroutines and must not block.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrAddressInUse is returned by Listen when another peer holds the
	// address on the relay.
	ErrAddressInUse = errors.New("address already in use")

	// ErrPeerUnavailable reports a peer that is not (or no longer)
	// reachable through the relay.
	ErrPeerUnavailable = errors.New("peer unavailable")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrRelayLost is reported through OnError when the connection to the
	// relay itself ends.
	ErrRelayLost = errors.New("relay connection lost")

	errAlreadyStarted = errors.New("transport already listening or dialing")
)

// Handler receives link events. peer is the remote peer's address.
type Handler interface {
	OnOpen(peer string)
	OnMessage(peer string, data []byte)
	OnClose(peer string)
	// OnError reports a failure on the link to peer. An empty peer means
	// the failure is not tied to a single link.
	OnError(peer string, err error)
}

// Transport is one session's set of peer links.
type Transport interface {
	// Listen registers addr and accepts inbound links.
	Listen(ctx context.Context, addr string) error
	// Dial opens a link to addr. The result is reported asynchronously
	// through OnOpen or OnError.
	Dial(ctx context.Context, addr string) error
	// Send delivers data to one connected peer.
	Send(peer string, data []byte) error
	// Broadcast sends data to every connected peer except exclude and
	// returns the number of peers it was sent to.
	Broadcast(data []byte, exclude string) int
	// Peers lists the connected peers in sorted order.
	Peers() []string
	// Close tears down every link. No callbacks are made after Close
	// returns.
	Close() error
}

// Factory creates a Transport bound to h.
type Factory func(h Handler) (Transport, error)

// broadcast implements Transport.Broadcast on top of Peers and Send.
func broadcast(t Transport, data []byte, exclude string) int {
	n := 0
	for _, p := range t.Peers() {
		if p == exclude {
			continue
		}
		if t.Send(p, data) == nil {
			n++
		}
	}
	return n
}
