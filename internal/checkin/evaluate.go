package checkin

import (
	"fmt"
	"time"

	"github.com/roach88/eventguard/internal/model"
)

// Operator-facing messages.
const (
	MsgUnknownTicket = "Unknown Ticket ID"
	MsgCheckedIn     = "Check-in Successful"
)

// Outcome is the decision for a single scan attempt.
type Outcome struct {
	Status model.Status

	// LogMessage is recorded on the ScanLog; Message is shown to the operator.
	LogMessage string
	Message    string

	// GuestName is recorded on the ScanLog.
	GuestName string

	// Guest is the guest after the decision is applied: nil for unknown ids,
	// unchanged for duplicates, with the day's check-in set on success.
	Guest *model.Guest
}

// Success reports whether the scan checked the guest in.
func (o Outcome) Success() bool {
	return o.Status == model.StatusSuccess
}

// Evaluate decides the outcome of scanning guestID for day at now.
// guest is the registry entry for guestID, or nil if there is none; it is
// never modified. loc is the zone used to render the original check-in time
// in duplicate messages.
func Evaluate(guest *model.Guest, day model.Day, now time.Time, loc *time.Location) Outcome {
	if guest == nil {
		return Outcome{
			Status:     model.StatusError,
			LogMessage: MsgUnknownTicket,
			Message:    MsgUnknownTicket,
			GuestName:  model.UnknownGuestName,
		}
	}

	if at := guest.CheckIn(day); at != nil {
		if loc == nil {
			loc = time.Local
		}
		msg := fmt.Sprintf("Already checked in %s at %s", day, at.In(loc).Format(time.TimeOnly))
		g := guest.Clone()
		return Outcome{
			Status:     model.StatusDuplicate,
			LogMessage: msg,
			Message:    msg,
			GuestName:  guest.Name,
			Guest:      &g,
		}
	}

	g := guest.Clone()
	g.SetCheckIn(day, model.Timestamp(now))
	return Outcome{
		Status:     model.StatusSuccess,
		LogMessage: MsgCheckedIn,
		Message:    "Welcome, " + guest.Name,
		GuestName:  guest.Name,
		Guest:      &g,
	}
}
