// Package layout turns one day's events into non-colliding rectangles on
// a vertical timeline canvas. Overlapping events are grouped into
// clusters, packed into side-by-side columns, and mapped to geometry;
// events too short to be visible are stretched to a configured minimum
// rendered duration.
//
// Arrange is a pure function of its arguments: it holds no state between
// calls and is safe to invoke concurrently on independent inputs.
package layout

import (
	"errors"

	"daygrid/internal/log"
	"daygrid/internal/metrics"
	"daygrid/internal/model"
)

var errMissingInstant = errors.New("event is missing a start or end instant")

// Positioned is the final rectangle for one input event. Left/Right are
// insets from the canvas's left and right edges, Top/Bottom insets from
// its top and bottom, all in canvas units. Start and End are the
// rendered minutes of day (after any minimum-duration expansion), which
// may differ from the source event's own times.
type Positioned struct {
	Event model.Event

	Left   float64
	Right  float64
	Top    float64
	Bottom float64

	Start int
	End   int

	// Column and Columns describe the slot within the event's cluster;
	// singletons report 1/1.
	Column  int
	Columns int
}

// Canvas describes the drawing surface for one Arrange call.
type Canvas struct {
	Width  float64
	Height float64

	// PixelsPerMinute converts minutes of day into vertical distance.
	PixelsPerMinute float64
}

// Arrange lays out one day's timed events on the given canvas.
//
// minDuration is the floor, in minutes, on an event's rendered span;
// shorter events are expanded symmetrically so they stay visible. It
// widens the overlap test during clustering and stretches rendered
// geometry, but never changes column assignment.
//
// Events missing a start or end instant are skipped with a logged
// diagnostic; every well-formed event produces exactly one Positioned.
// Output order is deterministic: clusters in start order, events inside
// a cluster in start order (stable on input order for equal starts).
func Arrange(events []model.Event, canvas Canvas, minDuration int) []Positioned {
	metrics.LayoutPasses.Inc()

	timed := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Timed() {
			log.Error("layout: dropping malformed event", errMissingInstant, "id", ev.ID)
			metrics.MalformedEvents.Inc()
			continue
		}
		timed = append(timed, ev)
	}

	clusters := clusterEvents(timed, minDuration)
	metrics.ClustersFormed.Add(float64(len(clusters)))

	out := make([]Positioned, 0, len(timed))
	for _, c := range clusters {
		if len(c.Events) == 1 {
			out = append(out, position(c.Events[0], 1, 1, canvas, minDuration))
			continue
		}

		asn := packColumns(c)
		for i, ev := range c.Events {
			out = append(out, position(ev, asn.columns[i], asn.count, canvas, minDuration))
		}
	}

	metrics.EventsPositioned.Add(float64(len(out)))
	return out
}

// position derives one event's rectangle from its column slot and the
// canvas. A non-positive canvas width or column count degrades to
// zero-width slots instead of faulting.
func position(ev model.Event, column, columns int, canvas Canvas, minDuration int) Positioned {
	slotWidth := 0.0
	if columns > 0 && canvas.Width > 0 {
		slotWidth = canvas.Width / float64(columns)
	}

	start, end := paddedSpan(*ev.Start, *ev.End, minDuration)

	return Positioned{
		Event:   ev,
		Left:    slotWidth * float64(column-1),
		Right:   slotWidth * float64(columns-column),
		Top:     float64(start) * canvas.PixelsPerMinute,
		Bottom:  canvas.Height - float64(end)*canvas.PixelsPerMinute,
		Start:   start,
		End:     end,
		Column:  column,
		Columns: columns,
	}
}

// StackFullWidth lays out all-day and ranging events as stacked
// full-width rows of rowHeight each, in input order. This is the simple
// companion strategy for events the column engine does not handle.
func StackFullWidth(events []model.Event, canvas Canvas, rowHeight float64) []Positioned {
	out := make([]Positioned, 0, len(events))
	for i, ev := range events {
		top := float64(i) * rowHeight
		out = append(out, Positioned{
			Event:   ev,
			Left:    0,
			Right:   0,
			Top:     top,
			Bottom:  canvas.Height - top - rowHeight,
			Column:  1,
			Columns: 1,
		})
	}
	return out
}
