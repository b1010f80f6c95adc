package store

import (
	"testing"
	"time"

	"daygrid/internal/model"
)

var day = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func dayEvent(payload string, start, end int) model.Event {
	return model.Event{
		Payload: payload,
		Date:    day,
		Start:   model.Minutes(start),
		End:     model.Minutes(end),
	}
}

func TestAddAssignsIDAndIndexes(t *testing.T) {
	s := New()

	stored := s.Add(dayEvent("standup", 540, 555))
	if stored.ID == "" {
		t.Fatal("Add did not assign an ID")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	got := s.EventsForDay(day)
	if len(got) != 1 || got[0].ID != stored.ID {
		t.Fatalf("EventsForDay returned %v, want the stored event", got)
	}
	if len(s.EventsForDay(day.AddDate(0, 0, 1))) != 0 {
		t.Error("event appeared under the wrong day")
	}
}

func TestEventsForDayKeepsInsertionOrder(t *testing.T) {
	s := New()
	s.Add(dayEvent("first", 600, 660))
	s.Add(dayEvent("second", 540, 555))
	s.Add(dayEvent("third", 700, 720))

	got := s.EventsForDay(day)
	if len(got) != 3 {
		t.Fatalf("EventsForDay returned %d events, want 3", len(got))
	}
	want := []string{"first", "second", "third"}
	for i, ev := range got {
		if ev.Payload != want[i] {
			t.Errorf("event %d payload = %v, want %v", i, ev.Payload, want[i])
		}
	}
}

func TestRemoveByEquality(t *testing.T) {
	s := New()
	s.Add(dayEvent("keep", 540, 600))
	s.Add(dayEvent("drop", 600, 660))

	if !s.Remove(dayEvent("drop", 600, 660)) {
		t.Fatal("Remove did not find an equal event")
	}
	if s.Remove(dayEvent("drop", 600, 660)) {
		t.Fatal("Remove found an already-removed event")
	}

	got := s.EventsForDay(day)
	if len(got) != 1 || got[0].Payload != "keep" {
		t.Fatalf("EventsForDay after remove = %v, want only keep", got)
	}
}

func TestReplaceKeepsIdentity(t *testing.T) {
	s := New()
	orig := s.Add(dayEvent("meeting", 540, 600))

	moved := dayEvent("meeting", 600, 660)
	if !s.Replace(dayEvent("meeting", 540, 600), moved) {
		t.Fatal("Replace did not find an equal event")
	}

	got := s.EventsForDay(day)
	if len(got) != 1 {
		t.Fatalf("EventsForDay returned %d events, want 1", len(got))
	}
	if got[0].ID != orig.ID {
		t.Errorf("replacement ID = %s, want original %s", got[0].ID, orig.ID)
	}
	if *got[0].Start != 600 {
		t.Errorf("replacement start = %d, want 600", *got[0].Start)
	}
}

func TestReplaceByCustomComparator(t *testing.T) {
	s := New()
	s.Add(dayEvent("meeting", 540, 600))

	byPayload := func(a, b model.Event) bool { return a.Payload == b.Payload }
	if !s.ReplaceBy(model.Event{Payload: "meeting"}, dayEvent("meeting", 700, 760), byPayload) {
		t.Fatal("ReplaceBy did not match on payload")
	}

	got := s.EventsForDay(day)
	if len(got) != 1 || *got[0].Start != 700 {
		t.Fatalf("EventsForDay after ReplaceBy = %v, want moved event", got)
	}
}

func TestFullDayAndRangingIndexes(t *testing.T) {
	s := New()
	s.Add(dayEvent("timed", 540, 600))
	s.Add(model.Event{Payload: "holiday", Date: day, AllDay: true})

	endDate := day.AddDate(0, 0, 2)
	s.Add(model.Event{
		Payload: "conference",
		Date:    day,
		EndDate: &endDate,
		Start:   model.Minutes(540),
		End:     model.Minutes(1020),
	})

	if got := s.FullDayEvents(day); len(got) != 1 || got[0].Payload != "holiday" {
		t.Errorf("FullDayEvents = %v, want only holiday", got)
	}
	if got := s.RangingEvents(day); len(got) != 1 || got[0].Payload != "conference" {
		t.Errorf("RangingEvents = %v, want only conference", got)
	}

	// A ranging event is indexed under every day it touches.
	for d := 0; d <= 2; d++ {
		key := day.AddDate(0, 0, d)
		found := false
		for _, ev := range s.EventsForDay(key) {
			if ev.Payload == "conference" {
				found = true
			}
		}
		if !found {
			t.Errorf("conference not indexed under %s", model.DayKey(key))
		}
	}
}

func TestObserversFireAfterIndexUpdate(t *testing.T) {
	s := New()

	var changes []Change
	unsubscribe := s.Subscribe(func(ch Change) {
		changes = append(changes, ch)
		// The index must already reflect the mutation when observers run.
		if ch.Op == OpAdd && len(s.EventsForDay(day)) == 0 {
			t.Error("observer ran before the day index was updated")
		}
	})

	ev := s.Add(dayEvent("standup", 540, 555))
	if len(changes) != 1 || changes[0].Op != OpAdd || changes[0].Event.ID != ev.ID {
		t.Fatalf("changes after Add = %v, want one OpAdd", changes)
	}

	s.Replace(dayEvent("standup", 540, 555), dayEvent("standup", 600, 615))
	if len(changes) != 2 || changes[1].Op != OpReplace {
		t.Fatalf("changes after Replace = %v, want OpReplace appended", changes)
	}
	if changes[1].Previous.ID != ev.ID {
		t.Errorf("replace change previous ID = %s, want %s", changes[1].Previous.ID, ev.ID)
	}

	unsubscribe()
	s.Remove(dayEvent("standup", 600, 615))
	if len(changes) != 2 {
		t.Errorf("unsubscribed observer still received %d changes", len(changes)-2)
	}
}

func TestVersionBumpsOnMutation(t *testing.T) {
	s := New()
	v0 := s.Version()

	s.Add(dayEvent("a", 540, 600))
	if s.Version() == v0 {
		t.Error("Version unchanged after Add")
	}

	v1 := s.Version()
	if s.Remove(dayEvent("missing", 0, 10)) {
		t.Fatal("Remove matched a nonexistent event")
	}
	if s.Version() != v1 {
		t.Error("Version changed on a failed mutation")
	}
}

// fixedQuerier is a stand-in day-query strategy for injection tests.
type fixedQuerier struct {
	events []model.Event
}

func (q fixedQuerier) EventsForDay(time.Time) []model.Event {
	return q.events
}

func TestCustomDayQuerier(t *testing.T) {
	canned := []model.Event{dayEvent("injected", 540, 600)}
	s := New(WithDayQuerier(fixedQuerier{events: canned}))

	s.Add(dayEvent("stored", 600, 660))

	got := s.EventsForDay(day)
	if len(got) != 1 || got[0].Payload != "injected" {
		t.Fatalf("EventsForDay = %v, want the injected strategy's result", got)
	}
}
