// Package store owns the authoritative in-memory event collection behind
// an explicit mutation API. Every successful mutation updates the
// per-day, full-day and multi-day indexes first and then publishes a
// Change to all registered observers, so a subscriber that re-queries on
// notification always sees the post-mutation state.
package store

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"daygrid/internal/metrics"
	"daygrid/internal/model"
)

// Op identifies the kind of mutation carried by a Change.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// Change describes one store mutation. For OpReplace, Event is the new
// event and Previous the one it displaced.
type Change struct {
	Op       Op
	Event    model.Event
	Previous model.Event
}

// Observer receives change notifications. Callbacks run synchronously on
// the mutating goroutine, after the store's lock is released; they may
// query the store but should not block.
type Observer func(Change)

// DayQuerier is the pluggable day-query strategy. The default
// implementation is the store's own day index; callers can inject a
// different one at construction (for filtered views, say).
type DayQuerier interface {
	EventsForDay(day time.Time) []model.Event
}

// Equaler lets callers replace or remove by a custom comparison instead
// of deep equality on payload and times.
type Equaler func(a, b model.Event) bool

// Store is the owned, mutex-guarded event collection. The zero value is
// not usable; construct with New.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]model.Event
	order    []string            // insertion order of event IDs
	byDay    map[string][]string // day key -> event IDs, insertion order
	fullDay  map[string]struct{}
	multiDay map[string]struct{}
	version  uint64

	querier DayQuerier

	subMu   sync.Mutex
	subs    map[int]Observer
	nextSub int
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithDayQuerier overrides the default index-backed day query strategy.
func WithDayQuerier(q DayQuerier) Option {
	return func(s *Store) { s.querier = q }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:     make(map[string]model.Event),
		byDay:    make(map[string][]string),
		fullDay:  make(map[string]struct{}),
		multiDay: make(map[string]struct{}),
		subs:     make(map[int]Observer),
	}
	s.querier = indexQuerier{s}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts an event, assigning it a fresh ID, and returns the stored
// copy. Observers are notified after the indexes are updated.
func (s *Store) Add(ev model.Event) model.Event {
	ev.ID = uuid.NewString()

	s.mu.Lock()
	s.insertLocked(ev)
	s.version++
	s.mu.Unlock()

	metrics.StoreMutations.WithLabelValues(string(OpAdd)).Inc()
	s.notify(Change{Op: OpAdd, Event: ev})
	return ev
}

// Remove deletes the first event equal to ev (ignoring ID) and reports
// whether one was found.
func (s *Store) Remove(ev model.Event) bool {
	return s.RemoveMatching(func(stored model.Event) bool {
		return sameEvent(stored, ev)
	})
}

// RemoveMatching deletes the first event the predicate accepts.
func (s *Store) RemoveMatching(match func(model.Event) bool) bool {
	s.mu.Lock()
	removed, ok := s.takeLocked(match)
	if ok {
		s.version++
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	metrics.StoreMutations.WithLabelValues(string(OpRemove)).Inc()
	s.notify(Change{Op: OpRemove, Event: removed})
	return true
}

// Replace swaps the first event equal to old (ignoring ID) for repl,
// keeping the displaced event's ID and position in insertion order.
func (s *Store) Replace(old, repl model.Event) bool {
	return s.ReplaceBy(old, repl, nil)
}

// ReplaceBy is Replace with a custom equality; a nil eq falls back to
// the default comparison.
func (s *Store) ReplaceBy(old, repl model.Event, eq Equaler) bool {
	if eq == nil {
		eq = sameEvent
	}

	s.mu.Lock()
	prev, ok := s.swapLocked(func(stored model.Event) bool { return eq(stored, old) }, &repl)
	if ok {
		s.version++
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	metrics.StoreMutations.WithLabelValues(string(OpReplace)).Inc()
	s.notify(Change{Op: OpReplace, Event: repl, Previous: prev})
	return true
}

// EventsForDay returns the events indexed under the given day, via the
// configured query strategy.
func (s *Store) EventsForDay(day time.Time) []model.Event {
	return s.querier.EventsForDay(day)
}

// All returns every stored event in insertion order.
func (s *Store) All() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// FullDayEvents returns the all-day events for a day, in insertion order.
func (s *Store) FullDayEvents(day time.Time) []model.Event {
	return s.filterDay(day, func(id string) bool {
		_, ok := s.fullDay[id]
		return ok
	})
}

// RangingEvents returns the multi-day events touching a day.
func (s *Store) RangingEvents(day time.Time) []model.Event {
	return s.filterDay(day, func(id string) bool {
		_, ok := s.multiDay[id]
		return ok
	})
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version increments on every successful mutation; the web layer uses it
// to key its response cache.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers an observer and returns an unsubscribe function.
func (s *Store) Subscribe(obs Observer) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = obs
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	obs := make([]Observer, 0, len(s.subs))
	for _, o := range s.subs {
		obs = append(obs, o)
	}
	s.subMu.Unlock()

	for _, o := range obs {
		o(ch)
		metrics.ObserverNotifications.Inc()
	}
}

// insertLocked adds ev to the collection and all indexes.
func (s *Store) insertLocked(ev model.Event) {
	s.byID[ev.ID] = ev
	s.order = append(s.order, ev.ID)

	for _, key := range dayKeys(ev) {
		s.byDay[key] = append(s.byDay[key], ev.ID)
	}
	if ev.AllDay {
		s.fullDay[ev.ID] = struct{}{}
	}
	if ev.MultiDay() {
		s.multiDay[ev.ID] = struct{}{}
	}
}

// takeLocked removes the first matching event from the collection and
// all indexes.
func (s *Store) takeLocked(match func(model.Event) bool) (model.Event, bool) {
	for i, id := range s.order {
		ev := s.byID[id]
		if !match(ev) {
			continue
		}

		s.order = append(s.order[:i], s.order[i+1:]...)
		delete(s.byID, id)
		delete(s.fullDay, id)
		delete(s.multiDay, id)
		for _, key := range dayKeys(ev) {
			s.byDay[key] = removeID(s.byDay[key], id)
			if len(s.byDay[key]) == 0 {
				delete(s.byDay, key)
			}
		}
		return ev, true
	}
	return model.Event{}, false
}

// swapLocked replaces the first matching event in place. repl inherits
// the displaced event's ID so subscribers can correlate the two.
func (s *Store) swapLocked(match func(model.Event) bool, repl *model.Event) (model.Event, bool) {
	for _, id := range s.order {
		prev := s.byID[id]
		if !match(prev) {
			continue
		}

		repl.ID = id
		delete(s.fullDay, id)
		delete(s.multiDay, id)
		for _, key := range dayKeys(prev) {
			s.byDay[key] = removeID(s.byDay[key], id)
			if len(s.byDay[key]) == 0 {
				delete(s.byDay, key)
			}
		}

		s.byID[id] = *repl
		for _, key := range dayKeys(*repl) {
			s.byDay[key] = append(s.byDay[key], id)
		}
		if repl.AllDay {
			s.fullDay[id] = struct{}{}
		}
		if repl.MultiDay() {
			s.multiDay[id] = struct{}{}
		}
		return prev, true
	}
	return model.Event{}, false
}

func (s *Store) filterDay(day time.Time, keep func(id string) bool) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, id := range s.byDay[model.DayKey(day)] {
		if keep(id) {
			out = append(out, s.byID[id])
		}
	}
	return out
}

// indexQuerier is the default DayQuerier backed by the store's day index.
type indexQuerier struct {
	s *Store
}

func (q indexQuerier) EventsForDay(day time.Time) []model.Event {
	q.s.mu.RLock()
	defer q.s.mu.RUnlock()

	ids := q.s.byDay[model.DayKey(day)]
	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, q.s.byID[id])
	}
	return out
}

// dayKeys lists every day-index key an event occupies. Multi-day events
// are indexed under each day they touch, capped at one year as a guard
// against a corrupt end date.
func dayKeys(ev model.Event) []string {
	if ev.EndDate == nil || !ev.EndDate.After(ev.Date) {
		return []string{model.DayKey(ev.Date)}
	}

	const maxSpanDays = 366
	keys := make([]string, 0, 2)
	for d, i := ev.Date, 0; !d.After(*ev.EndDate) && i < maxSpanDays; d, i = d.AddDate(0, 0, 1), i+1 {
		keys = append(keys, model.DayKey(d))
	}
	return keys
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// sameEvent is the default equality used by Remove and Replace: all
// fields except the store-assigned ID.
func sameEvent(a, b model.Event) bool {
	a.ID, b.ID = "", ""
	return reflect.DeepEqual(a, b)
}
