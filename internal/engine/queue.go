package engine

import (
	"context"
	"sync"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeCommand runs a local operation on the Run goroutine.
	EventTypeCommand EventType = iota + 1
	// EventTypeOpen reports a peer link that opened.
	EventTypeOpen
	// EventTypeMessage carries a message received from a peer.
	EventTypeMessage
	// EventTypeClose reports a peer link that closed.
	EventTypeClose
	// EventTypeError reports a transport failure.
	EventTypeError
)

func (t EventType) String() string {
	switch t {
	case EventTypeCommand:
		return "command"
	case EventTypeOpen:
		return "open"
	case EventTypeMessage:
		return "message"
	case EventTypeClose:
		return "close"
	case EventTypeError:
		return "error"
	}
	return "unknown"
}

// Event is a unit of work for the Run loop.
//
// Transport events carry the generation of the session that produced them;
// events from a session that has since been torn down are discarded.
type Event struct {
	Type    EventType
	Gen     uint64
	Peer    string
	Data    []byte
	Err     error
	Command func(ctx context.Context)
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so transport callbacks never block on a busy
// engine.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not retain payloads.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
