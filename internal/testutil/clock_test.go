package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Steps(t *testing.T) {
	c := NewDeterministicClock()

	assert.Equal(t, DefaultStart, c.Peek())
	assert.Equal(t, DefaultStart, c.Now())
	assert.Equal(t, DefaultStart.Add(time.Second), c.Now())
	assert.Equal(t, DefaultStart.Add(2*time.Second), c.Peek())
}

func TestDeterministicClock_AdvanceAndReset(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, time.Minute)

	c.Now()
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour+time.Minute), c.Now())

	c.Reset()
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestDeterministicClock_Frozen(t *testing.T) {
	c := NewSteppingClock(DefaultStart, 0)
	assert.Equal(t, c.Now(), c.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	c := NewDeterministicClock()
	const goroutines = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := c.Now()
			mu.Lock()
			seen[now] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines, "every call should get a distinct instant")
}
