package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, peer := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(Event{Type: EventTypeMessage, Gen: 1, Peer: peer}))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, EventTypeMessage, got.Type)
		assert.Equal(t, want, got.Peer)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_CarriesPayload(t *testing.T) {
	q := newEventQueue()
	boom := errors.New("boom")

	q.Enqueue(Event{Type: EventTypeError, Gen: 7, Peer: "host", Err: boom})
	q.Enqueue(Event{Type: EventTypeMessage, Gen: 7, Peer: "host", Data: []byte(`{"type":"INIT"}`)})

	e1, _ := q.TryDequeue()
	assert.Equal(t, uint64(7), e1.Gen)
	assert.ErrorIs(t, e1.Err, boom)

	e2, _ := q.TryDequeue()
	assert.JSONEq(t, `{"type":"INIT"}`, string(e2.Data))
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Event{Type: EventTypeOpen, Peer: "late"})
	}()

	select {
	case <-q.Wait():
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", e.Peer)
	case <-time.After(time.Second):
		t.Fatal("Wait did not signal")
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Type: EventTypeOpen, Peer: "queued"})
	assert.False(t, q.Closed())

	q.Close()
	q.Close() // idempotent
	assert.True(t, q.Closed())

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after close")
	}

	assert.False(t, q.Enqueue(Event{Type: EventTypeOpen}), "enqueue after close should return false")

	// Events queued before Close are still delivered.
	e, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "queued", e.Peer)
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(Event{Type: EventTypeClose, Peer: "1"})
	q.Enqueue(Event{Type: EventTypeClose, Peer: "2"})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(Event{Type: EventTypeMessage, Peer: fmt.Sprintf("p%d", producer), Gen: uint64(i)})
			}
		}(p)
	}
	wg.Wait()

	// Per-producer order is preserved.
	last := make(map[string]int)
	count := 0
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		prev, seen := last[e.Peer]
		if seen {
			assert.Greater(t, int(e.Gen), prev)
		}
		last[e.Peer] = int(e.Gen)
		count++
	}
	assert.Equal(t, producers*eventsPerProducer, count)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "command", EventTypeCommand.String())
	assert.Equal(t, "message", EventTypeMessage.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
