package ics

import (
	"testing"
	"time"

	"daygrid/internal/model"
)

var seoul = time.FixedZone("KST", 9*3600)

func window(startDay, days int) (time.Time, time.Time) {
	base := time.Date(2026, 8, startDay, 0, 0, 0, 0, seoul)
	return base, base.AddDate(0, 0, days)
}

func TestExpandSingleEvent(t *testing.T) {
	start, end := window(30, 2)

	parsed := []ParsedEvent{{
		Source:  Source{ID: "work"},
		UID:     "ev-1",
		Summary: "standup",
		Start:   time.Date(2026, 8, 30, 9, 0, 0, 0, seoul),
		End:     time.Date(2026, 8, 30, 9, 30, 0, 0, seoul),
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expanded %d events, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if !ev.Timed() {
		t.Fatal("timed source event produced an untimed instance")
	}
	if *ev.Start != 540 || *ev.End != 570 {
		t.Errorf("minutes = (%d, %d), want (540, 570)", *ev.Start, *ev.End)
	}
	if model.DayKey(ev.Date) != "2026-08-30" {
		t.Errorf("date = %s, want 2026-08-30", model.DayKey(ev.Date))
	}

	detail, ok := ev.Payload.(Detail)
	if !ok {
		t.Fatalf("payload type = %T, want Detail", ev.Payload)
	}
	if detail.Summary != "standup" || detail.SourceID != "work" {
		t.Errorf("detail = %+v, lost summary or source", detail)
	}
}

func TestExpandDailyRecurrence(t *testing.T) {
	start, end := window(30, 5)

	parsed := []ParsedEvent{{
		UID:      "ev-daily",
		Summary:  "gym",
		Start:    time.Date(2026, 8, 30, 7, 0, 0, 0, seoul),
		End:      time.Date(2026, 8, 30, 8, 0, 0, 0, seoul),
		RawRRule: "FREQ=DAILY;COUNT=3",
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 3 {
		t.Fatalf("expanded %d instances, want 3", len(res.Events))
	}

	for i, ev := range res.Events {
		wantDay := model.DayKey(time.Date(2026, 8, 30+i, 0, 0, 0, 0, seoul))
		if model.DayKey(ev.Date) != wantDay {
			t.Errorf("instance %d date = %s, want %s", i, model.DayKey(ev.Date), wantDay)
		}
		if *ev.Start != 420 || *ev.End != 480 {
			t.Errorf("instance %d minutes = (%d, %d), want (420, 480)", i, *ev.Start, *ev.End)
		}
	}
}

func TestExpandExDateRemovesInstance(t *testing.T) {
	start, end := window(30, 5)

	parsed := []ParsedEvent{{
		UID:      "ev-ex",
		Start:    time.Date(2026, 8, 30, 7, 0, 0, 0, seoul),
		End:      time.Date(2026, 8, 30, 8, 0, 0, 0, seoul),
		RawRRule: "FREQ=DAILY;COUNT=3",
		ExDates:  []time.Time{time.Date(2026, 8, 31, 7, 0, 0, 0, seoul)},
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expanded %d instances, want 2 after EXDATE", len(res.Events))
	}
	for _, ev := range res.Events {
		if model.DayKey(ev.Date) == "2026-08-31" {
			t.Error("EXDATE instance still present")
		}
	}
}

func TestExpandAllDayEvent(t *testing.T) {
	start, end := window(30, 2)

	parsed := []ParsedEvent{{
		UID:     "ev-allday",
		Summary: "holiday",
		Start:   time.Date(2026, 8, 30, 0, 0, 0, 0, seoul),
		End:     time.Date(2026, 8, 31, 0, 0, 0, 0, seoul),
		AllDay:  true,
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expanded %d events, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if !ev.AllDay {
		t.Error("AllDay flag lost")
	}
	if ev.Timed() {
		t.Error("all-day instance carries time-of-day values")
	}
	if ev.MultiDay() {
		t.Error("single all-day instance flagged as multi-day")
	}
}

func TestExpandMidnightEndEncodesAsZero(t *testing.T) {
	start, end := window(30, 2)

	parsed := []ParsedEvent{{
		UID:   "ev-late",
		Start: time.Date(2026, 8, 30, 23, 0, 0, 0, seoul),
		End:   time.Date(2026, 8, 31, 0, 0, 0, 0, seoul),
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expanded %d events, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if *ev.Start != 1380 || *ev.End != 0 {
		t.Errorf("minutes = (%d, %d), want (1380, 0) with end-of-day as 0", *ev.Start, *ev.End)
	}
	if ev.MultiDay() {
		t.Error("event ending exactly at midnight flagged as multi-day")
	}
}

func TestExpandMultiDayInstance(t *testing.T) {
	start, end := window(30, 3)

	parsed := []ParsedEvent{{
		UID:   "ev-span",
		Start: time.Date(2026, 8, 30, 23, 0, 0, 0, seoul),
		End:   time.Date(2026, 8, 31, 2, 0, 0, 0, seoul),
	}}

	res, err := ExpandEvents(parsed, ExpandConfig{
		DisplayLocation: seoul,
		RangeStart:      start,
		RangeEnd:        end,
	})
	if err != nil {
		t.Fatalf("ExpandEvents: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expanded %d events, want 1", len(res.Events))
	}

	ev := res.Events[0]
	if !ev.MultiDay() {
		t.Fatal("instance crossing midnight not flagged as multi-day")
	}
	if model.DayKey(*ev.EndDate) != "2026-08-31" {
		t.Errorf("EndDate = %s, want 2026-08-31", model.DayKey(*ev.EndDate))
	}
}

func TestExpandRejectsInvertedWindow(t *testing.T) {
	start, end := window(30, 2)
	if _, err := ExpandEvents(nil, ExpandConfig{RangeStart: end, RangeEnd: start}); err == nil {
		t.Error("ExpandEvents accepted an inverted window")
	}
}
