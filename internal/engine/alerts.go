package engine

import (
	"sync"
	"time"
)

// AlertLevel grades an operator alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// MsgLoadFailed is raised when the station cannot read its stored data.
const MsgLoadFailed = "Could not read local storage. Nothing was changed; fix or restore the store and restart."

// Alert is an operator-visible message about the sync session.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// Notifier receives alerts. Notify is called on the engine's Run
// goroutine and must not block.
type Notifier interface {
	Notify(Alert)
}

// AlertLog keeps the most recent alerts in a ring buffer.
type AlertLog struct {
	mu    sync.Mutex
	buf   []Alert
	next  int
	count int
}

// NewAlertLog creates a log holding up to size alerts.
func NewAlertLog(size int) *AlertLog {
	if size <= 0 {
		size = 1
	}
	return &AlertLog{buf: make([]Alert, size)}
}

// Notify implements Notifier.
func (l *AlertLog) Notify(a Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = a
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Recent returns up to n alerts, newest first. n <= 0 returns all of them.
func (l *AlertLog) Recent(n int) []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Alert, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
