// Package clock classifies wall-clock time into the desk's daily phases.
package clock

import "time"

// Phase is the stage of the daily Tatkal cycle.
type Phase string

// Daily phases.
const (
	RegistrationOpen      Phase = "registration_open"
	PendingListGeneration Phase = "pending_list_generation"
	ListAvailable         Phase = "list_available"
)

// Label is the human readable phase name.
func (p Phase) Label() string {
	switch p {
	case RegistrationOpen:
		return "Registration Open"
	case PendingListGeneration:
		return "Registration Closed - Token List Pending"
	case ListAvailable:
		return "Token List Available"
	}
	return string(p)
}

// Boundaries of the day, as hour and minute in the station time zone.
const (
	openHour, openMinute       = 0, 30
	cutoffHour, cutoffMinute   = 9, 0
	releaseHour, releaseMinute = 9, 15
)

// InRegistrationWindow holds from 00:30 to 08:59.
func InRegistrationWindow(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h == 0 && m >= 30) || (h >= 1 && h <= 8)
}

// InPendingListWindow holds from 09:00 to 09:14.
func InPendingListWindow(t time.Time) bool {
	return t.Hour() == 9 && t.Minute() < 15
}

// InListWindow holds from 09:15 to 23:59.
func InListWindow(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h == 9 && m >= 15) || h >= 10
}

// InPreOpenGap holds from 00:00 to 00:29, where none of the three windows
// applies.
func InPreOpenGap(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() < 30
}

// PhaseAt classifies t using its own location. The pre-open gap is
// reported as PendingListGeneration: registration has not opened and the
// new day's list does not exist yet.
func PhaseAt(t time.Time) Phase {
	switch {
	case InRegistrationWindow(t):
		return RegistrationOpen
	case InListWindow(t):
		return ListAvailable
	default:
		return PendingListGeneration
	}
}

// CutoffPassed reports whether the 09:00 registration cutoff has passed
// for t's day.
func CutoffPassed(t time.Time) bool {
	return t.Hour() >= cutoffHour
}

// NextTransition returns the next instant after t at which PhaseAt changes
// and the phase that starts then.
func NextTransition(t time.Time) (time.Time, Phase) {
	y, mo, d := t.Date()
	loc := t.Location()
	candidates := []time.Time{
		time.Date(y, mo, d, openHour, openMinute, 0, 0, loc),
		time.Date(y, mo, d, cutoffHour, cutoffMinute, 0, 0, loc),
		time.Date(y, mo, d, releaseHour, releaseMinute, 0, 0, loc),
		time.Date(y, mo, d+1, 0, 0, 0, 0, loc),
	}
	current := PhaseAt(t)
	for _, c := range candidates {
		if c.After(t) && PhaseAt(c) != current {
			return c, PhaseAt(c)
		}
	}
	last := candidates[len(candidates)-1]
	return last, PhaseAt(last)
}
