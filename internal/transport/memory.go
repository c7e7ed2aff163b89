package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// Hub is an in-process relay. Each directed link has its own FIFO queue.
//
// In automatic mode frames are delivered synchronously on the sending
// goroutine. In manual mode frames stay queued until DeliverOne or
// DeliverAll is called, which lets tests choose the interleaving across
// links while keeping every link in order.
type Hub struct {
	manual bool

	mu     sync.Mutex
	nodes  map[string]*Memory
	queues map[link][]Frame
	nextID int
}

type link struct{ from, to string }

// NewHub creates a hub that delivers frames immediately.
func NewHub() *Hub {
	return &Hub{nodes: make(map[string]*Memory), queues: make(map[link][]Frame)}
}

// NewManualHub creates a hub that only delivers when asked to.
func NewManualHub() *Hub {
	h := NewHub()
	h.manual = true
	return h
}

// Factory returns a Factory producing transports attached to the hub.
func (h *Hub) Factory() Factory {
	return func(handler Handler) (Transport, error) {
		return &Memory{hub: h, h: handler, peers: newPeerSet()}, nil
	}
}

// Addresses lists the registered addresses.
func (h *Hub) Addresses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.nodes))
	for a := range h.nodes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Pending counts queued frames (always zero in automatic mode).
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, q := range h.queues {
		n += len(q)
	}
	return n
}

// DeliverOne delivers the head of one randomly chosen non-empty link
// queue. It reports false when nothing is queued.
func (h *Hub) DeliverOne(rng *rand.Rand) bool {
	h.mu.Lock()
	links := make([]link, 0, len(h.queues))
	for l, q := range h.queues {
		if len(q) > 0 {
			links = append(links, l)
		}
	}
	if len(links) == 0 {
		h.mu.Unlock()
		return false
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].from != links[j].from {
			return links[i].from < links[j].from
		}
		return links[i].to < links[j].to
	})
	l := links[rng.Intn(len(links))]
	f := h.queues[l][0]
	h.queues[l] = h.queues[l][1:]
	if len(h.queues[l]) == 0 {
		delete(h.queues, l)
	}
	h.mu.Unlock()

	h.deliver(f)
	return true
}

// DeliverAll delivers until every queue is empty, including frames queued
// during delivery. Returns the number of frames delivered.
func (h *Hub) DeliverAll(rng *rand.Rand) int {
	n := 0
	for h.DeliverOne(rng) {
		n++
	}
	return n
}

func (h *Hub) register(addr string, m *Memory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	h.nodes[addr] = m
	return nil
}

func (h *Hub) registerAnonymous(m *Memory) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		h.nextID++
		id := fmt.Sprintf("peer-%d", h.nextID)
		if _, ok := h.nodes[id]; !ok {
			h.nodes[id] = m
			return id
		}
	}
}

func (h *Hub) unregister(addr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, addr)
}

func (h *Hub) route(f Frame) {
	if !h.manual {
		h.deliver(f)
		return
	}
	h.mu.Lock()
	l := link{f.From, f.To}
	h.queues[l] = append(h.queues[l], f)
	h.mu.Unlock()
}

func (h *Hub) deliver(f Frame) {
	h.mu.Lock()
	target := h.nodes[f.To]
	h.mu.Unlock()

	if target == nil {
		if f.Op == OpConnect {
			h.route(Frame{Op: OpError, From: f.To, To: f.From, Code: CodePeerUnavailable, ID: f.To})
		}
		return
	}

	switch f.Op {
	case OpConnect:
		target.peers.add(f.From)
		// The dialer must see open before anything the listener sends.
		h.route(Frame{Op: OpOpen, From: f.To, To: f.From})
		target.h.OnOpen(f.From)
	case OpOpen:
		if target.peers.add(f.From) {
			target.h.OnOpen(f.From)
		}
	case OpData:
		if target.peers.has(f.From) {
			target.h.OnMessage(f.From, f.Data)
		}
	case OpClose:
		if target.peers.remove(f.From) {
			target.h.OnClose(f.From)
		}
	case OpError:
		target.h.OnError(f.From, f.Err())
	}
}

// Memory is a Transport attached to a Hub.
type Memory struct {
	hub   *Hub
	h     Handler
	peers *peerSet

	mu      sync.Mutex
	id      string
	started bool
	closed  bool
}

func (m *Memory) start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return errAlreadyStarted
	}
	m.started = true
	return nil
}

func (m *Memory) Listen(_ context.Context, addr string) error {
	if err := m.start(); err != nil {
		return err
	}
	if err := m.hub.register(addr, m); err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.id = addr
	m.mu.Unlock()
	return nil
}

func (m *Memory) Dial(_ context.Context, addr string) error {
	if err := m.start(); err != nil {
		return err
	}
	id := m.hub.registerAnonymous(m)
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	m.hub.route(Frame{Op: OpConnect, From: id, To: addr})
	return nil
}

// ID returns the address this transport registered under.
func (m *Memory) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *Memory) Send(peer string, data []byte) error {
	m.mu.Lock()
	closed, id := m.closed, m.id
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !m.peers.has(peer) {
		return fmt.Errorf("%w: %s", ErrPeerUnavailable, peer)
	}
	m.hub.route(Frame{Op: OpData, From: id, To: peer, Data: append([]byte(nil), data...)})
	return nil
}

func (m *Memory) Broadcast(data []byte, exclude string) int {
	return broadcast(m, data, exclude)
}

func (m *Memory) Peers() []string {
	return m.peers.list()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	id := m.id
	m.mu.Unlock()

	if id == "" {
		return nil
	}
	m.hub.unregister(id)
	for _, p := range m.peers.drain() {
		m.hub.route(Frame{Op: OpClose, From: id, To: p})
	}
	return nil
}
