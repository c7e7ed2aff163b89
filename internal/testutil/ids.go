package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/eventguard/internal/model"
)

// SequentialLogID is a log id function producing "<origin>-<seq>".
//
// Scenario golden files stay readable with it; production stations use
// model.LogID instead.
func SequentialLogID(origin string, seq int64, _ string, _ model.Day, _ time.Time) (string, error) {
	return fmt.Sprintf("%s-%d", origin, seq), nil
}

// FixedCodes returns session codes in order, then keeps returning the
// last one.
//
// If no codes are given the source always returns "123456".
//
// Thread-safety: the returned function is safe for concurrent use.
func FixedCodes(codes ...string) func() string {
	if len(codes) == 0 {
		codes = []string{"123456"}
	}
	var (
		mu  sync.Mutex
		idx int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[idx]
		if idx < len(codes)-1 {
			idx++
		}
		return code
	}
}
