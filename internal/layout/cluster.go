package layout

import (
	"sort"

	"daygrid/internal/model"
)

// Cluster is a maximal run of events whose padded time spans transitively
// overlap. It only lives for the duration of one Arrange call.
type Cluster struct {
	Events []model.Event

	// Start and End are the envelope of the members' padded spans,
	// in minutes since midnight.
	Start int
	End   int
}

// endOfDay applies the midnight convention: an end time of 0 means the
// event runs to the end of the day, not that it ends at its start.
func endOfDay(end int) int {
	if end == 0 {
		return model.MinutesPerDay
	}
	return end
}

// paddedSpan returns the event's effective span for overlap testing and
// rendering. Spans shorter than minDuration are expanded symmetrically
// around their midpoint to exactly minDuration (integer truncation gives
// at most one minute of asymmetry). Spans pushed outside the day by the
// expansion are shifted back inside, keeping their duration.
func paddedSpan(start, end, minDuration int) (int, int) {
	end = endOfDay(end)
	dur := end - start
	if dur >= minDuration {
		return start, end
	}

	pad := minDuration - dur
	start -= pad / 2
	end = start + minDuration

	if start < 0 {
		end -= start
		start = 0
	}
	if end > model.MinutesPerDay {
		start -= end - model.MinutesPerDay
		end = model.MinutesPerDay
		if start < 0 {
			start = 0
		}
	}
	return start, end
}

// clusterEvents groups well-formed events into clusters of transitively
// overlapping spans. minDuration only widens the overlap test for very
// short events; it does not change what later stages see as the raw span.
//
// Events are sorted by start time first (stable, so equal starts keep
// input order); a sorted event joins the open cluster when its padded
// start lies at or before the running envelope end, otherwise it opens a
// new cluster. Clusters therefore come out in start order and every
// input event lands in exactly one of them.
func clusterEvents(events []model.Event, minDuration int) []Cluster {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return *sorted[i].Start < *sorted[j].Start
	})

	var clusters []Cluster
	var cur Cluster

	for _, ev := range sorted {
		ps, pe := paddedSpan(*ev.Start, *ev.End, minDuration)

		if len(cur.Events) == 0 {
			cur = Cluster{Events: []model.Event{ev}, Start: ps, End: pe}
			continue
		}

		if ps <= cur.End {
			cur.Events = append(cur.Events, ev)
			if ps < cur.Start {
				cur.Start = ps
			}
			if pe > cur.End {
				cur.End = pe
			}
			continue
		}

		clusters = append(clusters, cur)
		cur = Cluster{Events: []model.Event{ev}, Start: ps, End: pe}
	}

	clusters = append(clusters, cur)
	return clusters
}
