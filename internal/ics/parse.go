package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "daygrid/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if present, in the event's own tz
	IsOverride bool       // true if this VEVENT overrides a recurring instance
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
// The underlying library handles VTIMEZONE/TZID so Start/End carry a
// proper Location. All-day events are detected from the DTSTART value
// form. RRULE/EXDATE/RECURRENCE-ID are recorded but not expanded here;
// expansion lives in expand.go.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			// Skip this VEVENT but keep parsing the rest of the feed.
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	// DTSTART / DTEND via the library's timezone-aware helpers.
	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	// All-day if DTSTART carries VALUE=DATE or a date-only value.
	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		if params := dtStartProp.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStartProp.Value, "T") {
			out.AllDay = true
		}
	}

	// RRULE is kept as the raw string; expand.go hands it to rrule-go.
	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE can appear multiple times, each with a comma-separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID marks an overridden instance of a recurring event.
	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseICSTime parses basic ICS DATE / DATE-TIME / UTC forms, used for
// EXDATE and RECURRENCE-ID values where full parameter context is not
// available. Expansion normalizes timezones later.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g. 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g. 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}

	// Date-only (all-day), e.g. 20250101
	return time.ParseInLocation("20060102", v, time.Local)
}
