package model

import (
	"fmt"
	"time"
)

// DefaultCategory is assigned to guests created without a category.
const DefaultCategory = "General"

// UnknownGuestName is recorded on ScanLogs for ticket ids not in the registry.
const UnknownGuestName = "Unknown"

// Day identifies one of the two event days.
type Day int

const (
	Day1 Day = 1
	Day2 Day = 2
)

// ParseDay converts an integer into a Day.
func ParseDay(n int) (Day, error) {
	d := Day(n)
	if !d.Valid() {
		return 0, fmt.Errorf("day must be 1 or 2, got %d", n)
	}
	return d, nil
}

// Valid reports whether d is Day1 or Day2.
func (d Day) Valid() bool {
	return d == Day1 || d == Day2
}

func (d Day) String() string {
	return fmt.Sprintf("Day %d", int(d))
}

// Status is the outcome recorded on a ScanLog.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusDuplicate Status = "DUPLICATE"
	StatusError     Status = "ERROR"
)

// ValidStatuses lists every status a ScanLog may carry.
var ValidStatuses = map[Status]bool{
	StatusSuccess:   true,
	StatusDuplicate: true,
	StatusError:     true,
}

// Guest is a registered attendee. ID doubles as the ticket/QR payload.
//
// CheckInDay1 and CheckInDay2 are nil until the guest is checked in on that
// day. They serialize as JSON null when unset.
type Guest struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Email       string     `json:"email,omitempty" yaml:"email,omitempty"`
	Phone       string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	Category    string     `json:"category" yaml:"category"`
	CheckInDay1 *time.Time `json:"checkInDay1" yaml:"checkInDay1,omitempty"`
	CheckInDay2 *time.Time `json:"checkInDay2" yaml:"checkInDay2,omitempty"`
}

// CheckIn returns the check-in time recorded for day, or nil.
func (g *Guest) CheckIn(day Day) *time.Time {
	switch day {
	case Day1:
		return g.CheckInDay1
	case Day2:
		return g.CheckInDay2
	}
	return nil
}

// SetCheckIn records at as the check-in time for day.
func (g *Guest) SetCheckIn(day Day, at time.Time) {
	t := at
	switch day {
	case Day1:
		g.CheckInDay1 = &t
	case Day2:
		g.CheckInDay2 = &t
	}
}

// Clone returns a deep copy; the check-in pointers are not shared.
func (g Guest) Clone() Guest {
	if g.CheckInDay1 != nil {
		t := *g.CheckInDay1
		g.CheckInDay1 = &t
	}
	if g.CheckInDay2 != nil {
		t := *g.CheckInDay2
		g.CheckInDay2 = &t
	}
	return g
}

// ScanLog records a single scan attempt at the station that performed it.
type ScanLog struct {
	ID        string    `json:"id" yaml:"id"`
	GuestID   string    `json:"guestId" yaml:"guestId"`
	GuestName string    `json:"guestName" yaml:"guestName"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Day       Day       `json:"day" yaml:"day"`
	Status    Status    `json:"status" yaml:"status"`
	Message   string    `json:"message" yaml:"message"`
}

// Validate checks the fields a replicated log must carry to be merged.
func (l ScanLog) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("scan log: id is required")
	}
	if !l.Day.Valid() {
		return fmt.Errorf("scan log %s: day must be 1 or 2, got %d", l.ID, int(l.Day))
	}
	if !ValidStatuses[l.Status] {
		return fmt.Errorf("scan log %s: invalid status %q", l.ID, l.Status)
	}
	if l.Timestamp.IsZero() {
		return fmt.Errorf("scan log %s: timestamp is required", l.ID)
	}
	return nil
}

// Snapshot is the full replicated state: the INIT payload and the shape
// returned by read operations.
type Snapshot struct {
	Guests   []Guest   `json:"guests"`
	ScanLogs []ScanLog `json:"scanLogs"`
}

// Timestamp normalizes t to the precision stored on records: UTC,
// milliseconds, no monotonic reading.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
