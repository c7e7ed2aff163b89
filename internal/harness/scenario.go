package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eventguard/internal/model"
)

// maxStations bounds a scenario; each station gets the session code
// NNNNNN where N is its 1-based position.
const maxStations = 9

// Scenario defines a multi-station sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed drives the order in which queued frames are delivered.
	Seed int64 `yaml:"seed,omitempty"`

	// Stations names the stations, in order.
	Stations []string `yaml:"stations"`

	// Steps run sequentially.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state of the stations.
	Assertions []Assertion `yaml:"assertions"`
}

// GuestArgs describes a guest to add or import.
type GuestArgs struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email,omitempty"`
	Phone    string `yaml:"phone,omitempty"`
	Category string `yaml:"category,omitempty"`
}

func (g GuestArgs) guest() model.Guest {
	return model.Guest{ID: g.ID, Name: g.Name, Email: g.Email, Phone: g.Phone, Category: g.Category}
}

// ScanArgs describes a scan.
type ScanArgs struct {
	Guest string `yaml:"guest"`
	Day   int    `yaml:"day"`
}

// Step is one operation. Exactly one action field must be set; every
// action except deliver runs on Station.
type Step struct {
	Station string `yaml:"station,omitempty"`

	AddGuest *GuestArgs  `yaml:"add_guest,omitempty"`
	Import   []GuestArgs `yaml:"import,omitempty"`
	Scan     *ScanArgs   `yaml:"scan,omitempty"`
	Delete   string      `yaml:"delete,omitempty"`
	Host     bool        `yaml:"host,omitempty"`
	// Join names the hosting station whose code to join.
	Join string `yaml:"join,omitempty"`
	// JoinCode joins a literal session code.
	JoinCode string `yaml:"join_code,omitempty"`
	Leave    bool   `yaml:"leave,omitempty"`
	Reset    bool   `yaml:"reset,omitempty"`
	// Deliver moves queued frames: "all" or "one".
	Deliver string `yaml:"deliver,omitempty"`

	// Expect validates the step's outcome. Without it the step must not
	// return an error.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step actions, as reported by Step.Action.
const (
	ActionAddGuest = "add_guest"
	ActionImport   = "import"
	ActionScan     = "scan"
	ActionDelete   = "delete"
	ActionHost     = "host"
	ActionJoin     = "join"
	ActionJoinCode = "join_code"
	ActionLeave    = "leave"
	ActionReset    = "reset"
	ActionDeliver  = "deliver"
)

// Action names the step's action, or "" when none or several are set.
func (s Step) Action() string {
	var set []string
	if s.AddGuest != nil {
		set = append(set, ActionAddGuest)
	}
	if s.Import != nil {
		set = append(set, ActionImport)
	}
	if s.Scan != nil {
		set = append(set, ActionScan)
	}
	if s.Delete != "" {
		set = append(set, ActionDelete)
	}
	if s.Host {
		set = append(set, ActionHost)
	}
	if s.Join != "" {
		set = append(set, ActionJoin)
	}
	if s.JoinCode != "" {
		set = append(set, ActionJoinCode)
	}
	if s.Leave {
		set = append(set, ActionLeave)
	}
	if s.Reset {
		set = append(set, ActionReset)
	}
	if s.Deliver != "" {
		set = append(set, ActionDeliver)
	}
	if len(set) != 1 {
		return ""
	}
	return set[0]
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Status is the expected scan log status.
	Status string `yaml:"status,omitempty"`

	// Message is the expected operator message of a scan.
	Message string `yaml:"message,omitempty"`

	// Error is a substring of the expected error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "converged": listed stations (default all) hold identical collections
	//   - "guest": a guest's check-in for Day, or its absence
	//   - "guest_count": number of guests at Station
	//   - "log_count": number of logs at Station, optionally per Status/Guest
	//   - "mode": Station's sync mode and optionally its connection count
	//   - "alert": an alert at Station contains Message
	Type string `yaml:"type"`

	Stations []string `yaml:"stations,omitempty"`
	Station  string   `yaml:"station,omitempty"`

	Guest     string `yaml:"guest,omitempty"`
	Day       int    `yaml:"day,omitempty"`
	CheckedIn *bool  `yaml:"checked_in,omitempty"`
	// At is the expected check-in time of day in UTC, e.g. "09:00:00".
	At     string `yaml:"at,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`

	Status string `yaml:"status,omitempty"`
	Count  *int   `yaml:"count,omitempty"`

	Mode        string `yaml:"mode,omitempty"`
	Connections *int   `yaml:"connections,omitempty"`

	Message string `yaml:"message,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged  = "converged"
	AssertGuest      = "guest"
	AssertGuestCount = "guest_count"
	AssertLogCount   = "log_count"
	AssertMode       = "mode"
	AssertAlert      = "alert"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is invalid.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Stations) == 0 {
		return fmt.Errorf("stations list is required and must be non-empty")
	}
	if len(s.Stations) > maxStations {
		return fmt.Errorf("at most %d stations are supported, got %d", maxStations, len(s.Stations))
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := make(map[string]bool, len(s.Stations))
	for i, name := range s.Stations {
		if name == "" {
			return fmt.Errorf("stations[%d]: name is required", i)
		}
		if known[name] {
			return fmt.Errorf("stations[%d]: duplicate station %q", i, name)
		}
		known[name] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, known); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step, known map[string]bool) error {
	action := s.Action()
	if action == "" {
		return fmt.Errorf("steps[%d]: exactly one action is required", index)
	}

	if action == ActionDeliver {
		if s.Deliver != "all" && s.Deliver != "one" {
			return fmt.Errorf("steps[%d]: deliver must be \"all\" or \"one\", got %q", index, s.Deliver)
		}
		if s.Station != "" {
			return fmt.Errorf("steps[%d]: deliver does not take a station", index)
		}
		return nil
	}

	if !known[s.Station] {
		return fmt.Errorf("steps[%d]: unknown station %q", index, s.Station)
	}
	switch action {
	case ActionJoin:
		if !known[s.Join] {
			return fmt.Errorf("steps[%d]: join names unknown station %q", index, s.Join)
		}
		if s.Join == s.Station {
			return fmt.Errorf("steps[%d]: station %q cannot join itself", index, s.Station)
		}
	case ActionScan:
		if s.Scan.Guest == "" {
			return fmt.Errorf("steps[%d]: scan guest is required", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Type == AssertConverged {
		for _, name := range a.Stations {
			if !known[name] {
				return fmt.Errorf("assertions[%d]: unknown station %q", index, name)
			}
		}
		return nil
	}

	if !known[a.Station] {
		return fmt.Errorf("assertions[%d]: unknown station %q", index, a.Station)
	}

	switch a.Type {
	case AssertGuest:
		if a.Guest == "" {
			return fmt.Errorf("assertions[%d]: guest is required for guest", index)
		}
		if !a.Absent && (a.Day != 1 && a.Day != 2) {
			return fmt.Errorf("assertions[%d]: day must be 1 or 2 for guest", index)
		}
	case AssertGuestCount, AssertLogCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertMode:
		if a.Mode == "" {
			return fmt.Errorf("assertions[%d]: mode is required for mode", index)
		}
	case AssertAlert:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for alert", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
