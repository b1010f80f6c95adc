package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "daygrid/internal/log"
	"daygrid/internal/model"
)

const defaultMaxInstancesPerEvent = 5000

// Detail is the payload attached to store events produced from ICS
// feeds. The layout engine treats it as opaque; the web layer uses it
// for labels.
type Detail struct {
	SourceID    string `json:"source_id"`
	UID         string `json:"uid"`
	InstanceKey string `json:"instance_key"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the timezone all instances are normalized to.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the inclusive expansion window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxInstancesPerEvent caps runaway rules. Zero means the default.
	MaxInstancesPerEvent int
}

// ExpandResult carries the expanded store-ready events plus the UIDs of
// any rules that hit the instance cap.
type ExpandResult struct {
	Events    []model.Event
	Truncated []string
}

// ExpandEvents turns parsed VEVENTs into concrete single-instance store
// events inside the given window. This is the pre-expansion step the
// layout core requires: the engine itself never sees a recurrence rule.
//
// Handled here:
//
//   - single non-recurring events
//   - RRULE recurrence via rrule-go, with EXDATE removal and
//     RECURRENCE-ID overrides
//   - all-day semantics (instances carry AllDay and no time-of-day)
//   - multi-day instances (EndDate set; the store indexes them as
//     ranging events, kept out of the column engine)
//
// All instances come out in the configured display timezone with
// minutes-since-midnight start/end times; an end landing exactly on the
// next midnight is encoded as 0, the end-of-day convention the layout
// engine expects.
func ExpandEvents(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxInstancesPerEvent <= 0 {
		cfg.MaxInstancesPerEvent = defaultMaxInstancesPerEvent
	}

	// Group base events and their overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	var uidOrder []string

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			uidOrder = append(uidOrder, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range uidOrder {
		truncated := false
		for _, ev := range baseByUID[uid] {
			instances, hitCap := expandOne(ev, overridesByUID[uid], cfg)
			if hitCap {
				truncated = true
			}
			result.Events = append(result.Events, instances...)
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("expand: truncated instances for UID",
				"uid", uid, "cap", cfg.MaxInstancesPerEvent)
		}
	}

	return result, nil
}

func expandOne(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingle(ev, overrides, cfg), false
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if ev.End.Before(cfg.RangeStart) || ev.Start.After(cfg.RangeEnd) {
		return nil
	}

	start, end := ev.Start, ev.End
	if o, ok := overrideForStart(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}

	return []model.Event{makeEvent(ev, start, end, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between() wants the window in the rule's own location.
	occTimes := set.Between(
		cfg.RangeStart.In(ev.Start.Location()),
		cfg.RangeEnd.In(ev.Start.Location()),
		true,
	)

	hitCap := false
	if len(occTimes) > cfg.MaxInstancesPerEvent {
		occTimes = occTimes[:cfg.MaxInstancesPerEvent]
		hitCap = true
	}

	out := make([]model.Event, 0, len(occTimes))
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = day
			occEnd = day.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		instEv, start, end := ev, occStart, occEnd
		if o, ok := overrideForStart(overrides, occStart); ok {
			instEv, start, end = o, o.Start, o.End
		}

		out = append(out, makeEvent(instEv, start, end, cfg.DisplayLocation))
	}

	return out, hitCap
}

// overrideForStart finds an override whose RECURRENCE-ID matches the
// given instance start exactly.
func overrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts one concrete instance into a store-ready
// model.Event in the display timezone.
func makeEvent(ev ParsedEvent, start, end time.Time, loc *time.Location) model.Event {
	startLocal := start.In(loc)
	endLocal := end.In(loc)

	date := midnight(startLocal)
	out := model.Event{
		Payload: Detail{
			SourceID:    ev.Source.ID,
			UID:         ev.UID,
			InstanceKey: startLocal.Format(time.RFC3339Nano),
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
		},
		Date:   date,
		AllDay: ev.AllDay,
	}

	endDay := midnight(endLocal)
	if endLocal.Equal(endDay) && endLocal.After(startLocal) {
		// An end exactly on midnight belongs to the preceding day.
		endDay = endDay.AddDate(0, 0, -1)
	}
	if !endDay.Equal(date) {
		out.EndDate = &endDay
	}

	if ev.AllDay {
		return out
	}

	out.Start = model.Minutes(startLocal.Hour()*60 + startLocal.Minute())
	// Midnight as an end encodes as 0, read back as end-of-day.
	out.End = model.Minutes(endLocal.Hour()*60 + endLocal.Minute())
	return out
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
