package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/eventguard/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", ev.Step, ev.Station, ev.Action)
		if ev.Status != "" {
			fmt.Fprintf(&buf, " %s", ev.Status)
		}
		if ev.Message != "" {
			fmt.Fprintf(&buf, " %q", ev.Message)
		}
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%q", ev.Error)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertConverged {
		return assertConverged(result, a)
	}

	st, ok := result.Station(a.Station)
	if !ok {
		return fmt.Errorf("unknown station %q", a.Station)
	}

	switch a.Type {
	case AssertGuest:
		return assertGuest(result, st, a)
	case AssertGuestCount:
		return assertGuestCount(result, st, a)
	case AssertLogCount:
		return assertLogCount(result, st, a)
	case AssertMode:
		return assertMode(result, st, a)
	case AssertAlert:
		return assertAlert(result, st, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertConverged checks that the stations hold the same guests and logs.
// Order is ignored: logs arrive at each station in a different order.
func assertConverged(result *Result, a Assertion) error {
	names := a.Stations
	if len(names) == 0 {
		for _, s := range result.Stations {
			names = append(names, s.Name)
		}
	}
	if len(names) < 2 {
		return nil
	}

	first, ok := result.Station(names[0])
	if !ok {
		return fmt.Errorf("unknown station %q", names[0])
	}
	want, err := fingerprint(first.Snapshot)
	if err != nil {
		return err
	}

	for _, name := range names[1:] {
		st, ok := result.Station(name)
		if !ok {
			return fmt.Errorf("unknown station %q", name)
		}
		got, err := fingerprint(st.Snapshot)
		if err != nil {
			return err
		}
		if got != want {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s to match %s: %s", name, first.Name, want),
				Actual:   got,
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// fingerprint renders a snapshot with both collections sorted by id.
func fingerprint(snap model.Snapshot) (string, error) {
	sorted := model.Snapshot{
		Guests:   append([]model.Guest(nil), snap.Guests...),
		ScanLogs: append([]model.ScanLog(nil), snap.ScanLogs...),
	}
	sort.Slice(sorted.Guests, func(i, j int) bool { return sorted.Guests[i].ID < sorted.Guests[j].ID })
	sort.Slice(sorted.ScanLogs, func(i, j int) bool { return sorted.ScanLogs[i].ID < sorted.ScanLogs[j].ID })

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return string(data), nil
}

func findGuest(snap model.Snapshot, id string) (model.Guest, bool) {
	for _, g := range snap.Guests {
		if g.ID == id {
			return g, true
		}
	}
	return model.Guest{}, false
}

func assertGuest(result *Result, st StationState, a Assertion) error {
	g, found := findGuest(st.Snapshot, a.Guest)
	if a.Absent {
		if found {
			return &AssertionError{
				Type:     AssertGuest,
				Expected: fmt.Sprintf("no guest %s at %s", a.Guest, st.Name),
				Actual:   fmt.Sprintf("guest %s (%s) present", g.ID, g.Name),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	if !found {
		return &AssertionError{
			Type:     AssertGuest,
			Expected: fmt.Sprintf("guest %s at %s", a.Guest, st.Name),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}

	at := g.CheckIn(model.Day(a.Day))
	if a.CheckedIn != nil && *a.CheckedIn != (at != nil) {
		return &AssertionError{
			Type:     AssertGuest,
			Expected: fmt.Sprintf("guest %s checked in on day %d: %t", a.Guest, a.Day, *a.CheckedIn),
			Actual:   describeCheckIn(at),
			Trace:    result.Trace,
		}
	}
	if a.At != "" && (at == nil || at.UTC().Format(time.TimeOnly) != a.At) {
		return &AssertionError{
			Type:     AssertGuest,
			Expected: fmt.Sprintf("guest %s checked in on day %d at %s", a.Guest, a.Day, a.At),
			Actual:   describeCheckIn(at),
			Trace:    result.Trace,
		}
	}
	return nil
}

func describeCheckIn(at *time.Time) string {
	if at == nil {
		return "not checked in"
	}
	return "checked in at " + at.UTC().Format(time.TimeOnly)
}

func assertGuestCount(result *Result, st StationState, a Assertion) error {
	if got := len(st.Snapshot.Guests); got != *a.Count {
		return &AssertionError{
			Type:     AssertGuestCount,
			Expected: fmt.Sprintf("%d guests at %s", *a.Count, st.Name),
			Actual:   fmt.Sprintf("%d guests", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertLogCount(result *Result, st StationState, a Assertion) error {
	got := 0
	for _, l := range st.Snapshot.ScanLogs {
		if a.Status != "" && string(l.Status) != a.Status {
			continue
		}
		if a.Guest != "" && l.GuestID != a.Guest {
			continue
		}
		got++
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d logs at %s (status=%q guest=%q)", *a.Count, st.Name, a.Status, a.Guest),
			Actual:   fmt.Sprintf("%d logs", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertMode(result *Result, st StationState, a Assertion) error {
	if string(st.Mode) != a.Mode {
		return &AssertionError{
			Type:     AssertMode,
			Expected: fmt.Sprintf("%s in mode %s", st.Name, a.Mode),
			Actual:   string(st.Mode),
			Trace:    result.Trace,
		}
	}
	if a.Connections != nil && st.Connections != *a.Connections {
		return &AssertionError{
			Type:     AssertMode,
			Expected: fmt.Sprintf("%s with %d connections", st.Name, *a.Connections),
			Actual:   fmt.Sprintf("%d connections", st.Connections),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertAlert(result *Result, st StationState, a Assertion) error {
	for _, msg := range st.Alerts {
		if strings.Contains(msg, a.Message) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertAlert,
		Expected: fmt.Sprintf("alert at %s containing %q", st.Name, a.Message),
		Actual:   fmt.Sprintf("%q", st.Alerts),
		Trace:    result.Trace,
	}
}
