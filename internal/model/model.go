package model

import "time"

// MinutesPerDay is the number of minutes in a single day column.
const MinutesPerDay = 1440

// Event is a single concrete calendar entry for the day view. Recurring
// events must be expanded into concrete instances before they become
// Events (internal/ics does this for ICS feeds).
//
// Start and End are minutes since midnight in [0, 1440). An End of 0 is
// read as end-of-day (1440) everywhere span arithmetic happens. Both are
// optional; an event missing either is malformed and will be dropped by
// the layout engine.
type Event struct {
	// ID is assigned by the store on insert and identifies the event
	// across Remove/Replace even when payloads compare equal.
	ID string

	// Payload is opaque to the layout pipeline; the rendering layer
	// decides how to draw it.
	Payload any

	// Date is the day this event belongs to (midnight in display tz).
	Date time.Time

	// EndDate, if set to a later day than Date, marks a multi-day
	// (ranging) event. Ranging events are excluded from the core layout
	// engine and drawn by the full-width strategy instead.
	EndDate *time.Time

	Start *int
	End   *int

	AllDay bool
}

// Timed reports whether the event carries both a start and an end
// time-of-day, i.e. whether the layout engine can position it.
func (e Event) Timed() bool {
	return e.Start != nil && e.End != nil
}

// MultiDay reports whether the event spans more than one calendar day.
func (e Event) MultiDay() bool {
	if e.EndDate == nil {
		return false
	}
	return DayKey(*e.EndDate) != DayKey(e.Date)
}

// DayKey normalizes a time to its calendar-day index key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Minutes is a convenience constructor for optional minute-of-day values.
func Minutes(m int) *int {
	return &m
}
