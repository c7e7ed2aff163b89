package checkin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/eventguard/internal/model"
)

// ErrGuestExists is returned when a guest is added with an id already in
// the registry.
var ErrGuestExists = errors.New("guest already exists")

// ErrGuestNotFound is returned when an operation names a guest id that is
// not in the registry.
var ErrGuestNotFound = errors.New("guest not found")

// Result is returned to the caller of Scan.
type Result struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Guest   *model.Guest  `json:"guest,omitempty"`
	Log     model.ScanLog `json:"log"`
}

// ImportResult counts the guests accepted and rejected by BulkImport.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// MergeResult counts what MergeLogs changed.
type MergeResult struct {
	Added         int `json:"added"`
	GuestsUpdated int `json:"guestsUpdated"`
}

// Stats summarizes the registry for dashboards.
type Stats struct {
	TotalGuests   int                  `json:"totalGuests"`
	CheckedInDay1 int                  `json:"checkedInDay1"`
	CheckedInDay2 int                  `json:"checkedInDay2"`
	TotalLogs     int                  `json:"totalLogs"`
	LogsByStatus  map[model.Status]int `json:"logsByStatus"`
}

// Registry holds the Guests collection (insertion order) and the ScanLogs
// collection (newest first).
type Registry struct {
	guests []model.Guest
	byID   map[string]int

	logs   []model.ScanLog
	logIDs map[string]struct{}

	loc    *time.Location
	region string
}

// NewRegistry creates an empty registry. loc renders times in operator
// messages; region is the default phone region for new guests.
func NewRegistry(loc *time.Location, region string) *Registry {
	if loc == nil {
		loc = time.Local
	}
	r := &Registry{loc: loc, region: region}
	r.Replace(model.Snapshot{})
	return r
}

// Location returns the zone used for operator messages.
func (r *Registry) Location() *time.Location {
	return r.loc
}

// Region returns the default phone region for new guests.
func (r *Registry) Region() string {
	return r.region
}

// Len returns the number of guests.
func (r *Registry) Len() int {
	return len(r.guests)
}

// Scan records a scan attempt of guestID for day at now. Exactly one ScanLog
// with the given id is prepended whatever the outcome; the guest is only
// modified when the outcome is SUCCESS.
func (r *Registry) Scan(guestID string, day model.Day, now time.Time, logID string) Result {
	guestID = strings.TrimSpace(guestID)
	now = model.Timestamp(now)

	var current *model.Guest
	idx, ok := r.byID[guestID]
	if ok {
		current = &r.guests[idx]
	}

	out := Evaluate(current, day, now, r.loc)
	if out.Success() {
		r.guests[idx] = out.Guest.Clone()
	}

	log := model.ScanLog{
		ID:        logID,
		GuestID:   guestID,
		GuestName: out.GuestName,
		Timestamp: now,
		Day:       day,
		Status:    out.Status,
		Message:   out.LogMessage,
	}
	r.prependLog(log)

	return Result{
		Success: out.Success(),
		Message: out.Message,
		Guest:   out.Guest,
		Log:     log,
	}
}

// AddGuest validates and normalizes g and appends it.
func (r *Registry) AddGuest(g model.Guest) (model.Guest, error) {
	g, err := model.NormalizeGuest(g, r.region)
	if err != nil {
		return model.Guest{}, err
	}
	if _, exists := r.byID[g.ID]; exists {
		return model.Guest{}, fmt.Errorf("%w: %s", ErrGuestExists, g.ID)
	}
	r.appendGuest(g)
	return g.Clone(), nil
}

// ApplyGuest merges a replicated guest: it is appended if its id is absent,
// otherwise ignored. Reports whether the registry changed.
func (r *Registry) ApplyGuest(g model.Guest) bool {
	if g.ID == "" {
		return false
	}
	if _, exists := r.byID[g.ID]; exists {
		return false
	}
	if g.Category == "" {
		g.Category = model.DefaultCategory
	}
	r.appendGuest(g.Clone())
	return true
}

// BulkImport appends every valid guest whose id is not yet present,
// including ids repeated within gs. Invalid and colliding guests are
// skipped and counted.
func (r *Registry) BulkImport(gs []model.Guest) ImportResult {
	var res ImportResult
	for _, g := range gs {
		if _, err := r.AddGuest(g); err != nil {
			res.Skipped++
			continue
		}
		res.Added++
	}
	return res
}

// ApplyScan merges a replicated ScanLog. The log is prepended if its id is
// absent and the guest rule is applied; a log already present is a no-op.
// Reports whether the log was added and whether a guest changed.
func (r *Registry) ApplyScan(log model.ScanLog) (added, guestChanged bool) {
	if err := log.Validate(); err != nil {
		return false, false
	}
	if _, exists := r.logIDs[log.ID]; exists {
		return false, false
	}
	log.Timestamp = model.Timestamp(log.Timestamp)
	r.prependLog(log)
	return true, r.applyGuestRule(log)
}

// MergeLogs merges logs exported from another station. Logs with new ids
// are inserted, the whole collection is re-sorted newest first by timestamp
// and the guest rule is applied for every inserted log.
func (r *Registry) MergeLogs(logs []model.ScanLog) MergeResult {
	var res MergeResult
	changed := make(map[string]struct{})
	for _, log := range logs {
		if err := log.Validate(); err != nil {
			continue
		}
		if _, exists := r.logIDs[log.ID]; exists {
			continue
		}
		log.Timestamp = model.Timestamp(log.Timestamp)
		r.logs = append(r.logs, log)
		r.logIDs[log.ID] = struct{}{}
		res.Added++
		if r.applyGuestRule(log) {
			changed[log.GuestID] = struct{}{}
		}
	}
	sort.SliceStable(r.logs, func(i, j int) bool {
		return r.logs[i].Timestamp.After(r.logs[j].Timestamp)
	})
	res.GuestsUpdated = len(changed)
	return res
}

// applyGuestRule sets the log's day on its guest when unset, or lowers it
// when the log is earlier. Lowering a day that is already set goes beyond
// "set only if unset": it makes every station settle on the earliest
// check-in whatever order logs arrive in. SUCCESS and DUPLICATE logs both
// apply, for replicated and merged logs alike; ERROR logs and unknown
// guests are ignored.
func (r *Registry) applyGuestRule(log model.ScanLog) bool {
	if log.Status != model.StatusSuccess && log.Status != model.StatusDuplicate {
		return false
	}
	idx, ok := r.byID[log.GuestID]
	if !ok {
		return false
	}
	g := &r.guests[idx]
	if at := g.CheckIn(log.Day); at != nil && !log.Timestamp.Before(*at) {
		return false
	}
	g.SetCheckIn(log.Day, log.Timestamp)
	return true
}

// Replace overwrites both collections with the snapshot.
func (r *Registry) Replace(s model.Snapshot) {
	r.guests = make([]model.Guest, 0, len(s.Guests))
	r.byID = make(map[string]int, len(s.Guests))
	for _, g := range s.Guests {
		if _, dup := r.byID[g.ID]; dup || g.ID == "" {
			continue
		}
		r.appendGuest(g.Clone())
	}

	r.logs = make([]model.ScanLog, 0, len(s.ScanLogs))
	r.logIDs = make(map[string]struct{}, len(s.ScanLogs))
	for _, l := range s.ScanLogs {
		if _, dup := r.logIDs[l.ID]; dup || l.ID == "" {
			continue
		}
		r.logs = append(r.logs, l)
		r.logIDs[l.ID] = struct{}{}
	}
}

// DeleteGuest removes the guest and every log that refers to it. Reports
// whether the guest existed and how many logs were removed.
func (r *Registry) DeleteGuest(id string) (bool, int) {
	idx, ok := r.byID[id]
	if !ok {
		return false, 0
	}
	r.guests = append(r.guests[:idx], r.guests[idx+1:]...)
	r.reindex()

	kept := r.logs[:0]
	removed := 0
	for _, l := range r.logs {
		if l.GuestID == id {
			delete(r.logIDs, l.ID)
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return true, removed
}

// Reset empties both collections.
func (r *Registry) Reset() {
	r.Replace(model.Snapshot{})
}

// Snapshot returns a deep copy of both collections.
func (r *Registry) Snapshot() model.Snapshot {
	return model.Snapshot{Guests: r.Guests(), ScanLogs: r.Logs()}
}

// Guests returns a copy of the Guests collection. Never nil.
func (r *Registry) Guests() []model.Guest {
	out := make([]model.Guest, len(r.guests))
	for i, g := range r.guests {
		out[i] = g.Clone()
	}
	return out
}

// Logs returns a copy of the ScanLogs collection, newest first. Never nil.
func (r *Registry) Logs() []model.ScanLog {
	out := make([]model.ScanLog, len(r.logs))
	copy(out, r.logs)
	return out
}

// Guest looks up a guest by id.
func (r *Registry) Guest(id string) (model.Guest, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return model.Guest{}, false
	}
	return r.guests[idx].Clone(), true
}

// Search returns guests whose id, name or email contains q, ignoring case.
// An empty query returns every guest.
func (r *Registry) Search(q string) []model.Guest {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return r.Guests()
	}
	out := []model.Guest{}
	for _, g := range r.guests {
		if strings.Contains(strings.ToLower(g.ID), q) ||
			strings.Contains(strings.ToLower(g.Name), q) ||
			strings.Contains(strings.ToLower(g.Email), q) {
			out = append(out, g.Clone())
		}
	}
	return out
}

// Stats computes totals over both collections.
func (r *Registry) Stats() Stats {
	s := Stats{
		TotalGuests:  len(r.guests),
		TotalLogs:    len(r.logs),
		LogsByStatus: make(map[model.Status]int, len(model.ValidStatuses)),
	}
	for _, g := range r.guests {
		if g.CheckInDay1 != nil {
			s.CheckedInDay1++
		}
		if g.CheckInDay2 != nil {
			s.CheckedInDay2++
		}
	}
	for _, l := range r.logs {
		s.LogsByStatus[l.Status]++
	}
	return s
}

func (r *Registry) appendGuest(g model.Guest) {
	r.byID[g.ID] = len(r.guests)
	r.guests = append(r.guests, g)
}

func (r *Registry) prependLog(l model.ScanLog) {
	r.logs = append(r.logs, model.ScanLog{})
	copy(r.logs[1:], r.logs)
	r.logs[0] = l
	r.logIDs[l.ID] = struct{}{}
}

func (r *Registry) reindex() {
	r.byID = make(map[string]int, len(r.guests))
	for i, g := range r.guests {
		r.byID[g.ID] = i
	}
}
