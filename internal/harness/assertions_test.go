package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/model"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func fixtureResult() *Result {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	later := at.Add(time.Second)
	log := model.ScanLog{ID: "A-1", GuestID: "A1", Day: model.Day1, Status: model.StatusSuccess, Timestamp: at}
	errLog := model.ScanLog{ID: "A-2", GuestID: "ZZZ", Day: model.Day1, Status: model.StatusError, Timestamp: later}

	r := NewResult()
	r.Stations = []StationState{
		{
			Name: "HOST", Mode: engine.ModeHost, Connections: 1,
			Snapshot: model.Snapshot{
				Guests:   []model.Guest{{ID: "A1", Name: "Alice", CheckInDay1: &at}},
				ScanLogs: []model.ScanLog{errLog, log},
			},
		},
		{
			Name: "A", Mode: engine.ModeClient, Connections: 1,
			Snapshot: model.Snapshot{
				Guests:   []model.Guest{{ID: "A1", Name: "Alice", CheckInDay1: &at}},
				ScanLogs: []model.ScanLog{log, errLog},
			},
			Alerts: []string{engine.MsgHostLost},
		},
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	r := fixtureResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertConverged},
		{Type: AssertGuest, Station: "A", Guest: "A1", Day: 1, CheckedIn: boolPtr(true), At: "09:00:00"},
		{Type: AssertGuest, Station: "A", Guest: "A1", Day: 2, CheckedIn: boolPtr(false)},
		{Type: AssertGuest, Station: "A", Guest: "ZZZ", Absent: true},
		{Type: AssertGuestCount, Station: "HOST", Count: intPtr(1)},
		{Type: AssertLogCount, Station: "HOST", Count: intPtr(2)},
		{Type: AssertLogCount, Station: "HOST", Status: "ERROR", Count: intPtr(1)},
		{Type: AssertLogCount, Station: "HOST", Guest: "A1", Count: intPtr(1)},
		{Type: AssertMode, Station: "A", Mode: "CLIENT", Connections: intPtr(1)},
		{Type: AssertAlert, Station: "A", Message: "Disconnected"},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	r := fixtureResult()
	r.Stations[1].Snapshot.ScanLogs = r.Stations[1].Snapshot.ScanLogs[:1]

	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"diverged", Assertion{Type: AssertConverged}, "Assertion failed: converged"},
		{"not checked in", Assertion{Type: AssertGuest, Station: "A", Guest: "A1", Day: 2, CheckedIn: boolPtr(true)}, "not checked in"},
		{"wrong time", Assertion{Type: AssertGuest, Station: "A", Guest: "A1", Day: 1, At: "10:00:00"}, "checked in at 09:00:00"},
		{"missing guest", Assertion{Type: AssertGuest, Station: "A", Guest: "B2", Day: 1}, "not found"},
		{"present guest", Assertion{Type: AssertGuest, Station: "A", Guest: "A1", Absent: true}, "present"},
		{"guest count", Assertion{Type: AssertGuestCount, Station: "A", Count: intPtr(2)}, "1 guests"},
		{"log count", Assertion{Type: AssertLogCount, Station: "A", Count: intPtr(2)}, "1 logs"},
		{"mode", Assertion{Type: AssertMode, Station: "HOST", Mode: "ALONE"}, "HOST in mode ALONE"},
		{"connections", Assertion{Type: AssertMode, Station: "HOST", Mode: "HOST", Connections: intPtr(3)}, "1 connections"},
		{"alert", Assertion{Type: AssertAlert, Station: "HOST", Message: "Sync Error"}, "alert at HOST"},
		{"unknown station", Assertion{Type: AssertMode, Station: "Z", Mode: "HOST"}, "unknown station"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(r, []Assertion{tt.a})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestConverged_IgnoresOrder(t *testing.T) {
	r := fixtureResult()
	errs := EvaluateAssertions(r, []Assertion{{Type: AssertConverged, Stations: []string{"A", "HOST"}}})
	assert.Empty(t, errs)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertMode,
		Expected: "A in mode CLIENT",
		Actual:   "ALONE",
		Trace: []TraceEvent{
			{Step: 1, Station: "A", Action: ActionJoinCode, Message: "999999"},
			{Step: 2, Action: ActionDeliver, Message: "delivered 2"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: mode")
	assert.Contains(t, msg, "Expected: A in mode CLIENT")
	assert.Contains(t, msg, `[1] A join_code "999999"`)
	assert.Contains(t, msg, "[2]  deliver")
}

func TestNewSnapshot_SortsAndFormats(t *testing.T) {
	r := fixtureResult()
	snap := NewSnapshot("fixture", r)

	require.Len(t, snap.Stations, 2)
	host := snap.Stations[0]
	assert.Equal(t, "HOST", host.Name)
	assert.Equal(t, []GuestGolden{{ID: "A1", Day1: "09:00:00"}}, host.Guests)
	require.Len(t, host.Logs, 2)
	assert.Equal(t, "A-1", host.Logs[0].ID)
	assert.Equal(t, LogGolden{ID: "A-2", Guest: "ZZZ", Day: 1, Status: "ERROR", At: "09:00:01"}, host.Logs[1])

	data, err := snap.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario": "fixture"`)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
