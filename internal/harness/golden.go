package harness

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where golden files live, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot is the golden form of a scenario run: its trace and the final
// state of every station, with collections sorted by id and check-in
// times rendered as UTC time of day.
type Snapshot struct {
	Scenario string          `json:"scenario"`
	Trace    []TraceEvent    `json:"trace"`
	Stations []StationGolden `json:"stations"`
}

// StationGolden is the golden form of one station.
type StationGolden struct {
	Name        string        `json:"name"`
	Mode        string        `json:"mode"`
	Connections int           `json:"connections"`
	Guests      []GuestGolden `json:"guests"`
	Logs        []LogGolden   `json:"logs"`
}

// GuestGolden is the golden form of a guest.
type GuestGolden struct {
	ID   string `json:"id"`
	Day1 string `json:"day1,omitempty"`
	Day2 string `json:"day2,omitempty"`
}

// LogGolden is the golden form of a scan log.
type LogGolden struct {
	ID     string `json:"id"`
	Guest  string `json:"guest"`
	Day    int    `json:"day"`
	Status string `json:"status"`
	At     string `json:"at"`
}

// NewSnapshot builds the golden form of result.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{Scenario: name, Trace: result.Trace, Stations: []StationGolden{}}
	for _, st := range result.Stations {
		sg := StationGolden{
			Name:        st.Name,
			Mode:        string(st.Mode),
			Connections: st.Connections,
			Guests:      []GuestGolden{},
			Logs:        []LogGolden{},
		}
		for _, g := range st.Snapshot.Guests {
			sg.Guests = append(sg.Guests, GuestGolden{
				ID:   g.ID,
				Day1: timeOfDay(g.CheckInDay1),
				Day2: timeOfDay(g.CheckInDay2),
			})
		}
		for _, l := range st.Snapshot.ScanLogs {
			sg.Logs = append(sg.Logs, LogGolden{
				ID:     l.ID,
				Guest:  l.GuestID,
				Day:    int(l.Day),
				Status: string(l.Status),
				At:     l.Timestamp.UTC().Format(time.TimeOnly),
			})
		}
		sort.Slice(sg.Guests, func(i, j int) bool { return sg.Guests[i].ID < sg.Guests[j].ID })
		sort.Slice(sg.Logs, func(i, j int) bool { return sg.Logs[i].ID < sg.Logs[j].ID })
		snap.Stations = append(snap.Stations, sg)
	}
	return snap
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func timeOfDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.TimeOnly)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
