package layout

// columnAssignment maps each event of one cluster (by position in
// Cluster.Events) to a 1-based column index.
type columnAssignment struct {
	columns []int
	count   int
}

// packColumns assigns the cluster's events to columns with a greedy
// left-to-right fill. Each pass anchors on the earliest-starting
// remaining event, gives it the current column, then chains forward to
// the first remaining event whose start is at or after the anchor's end,
// repeating until the pass exhausts what is left; whatever was skipped
// goes to the next column.
//
// Raw (unpadded) times drive packing, so the minimum-duration expansion
// applied for rendering never changes which column an event gets. Within
// one column the chained spans cannot overlap by construction.
//
// The greedy fill is not a minimal interval coloring; pathological
// orderings may use more columns than the true overlap depth. That
// trade-off is deliberate: single passes over a pending slice keep this
// O(n²) and the output order stable.
func packColumns(c Cluster) columnAssignment {
	n := len(c.Events)
	asn := columnAssignment{columns: make([]int, n)}

	pending := make([]int, n)
	for i := range pending {
		pending[i] = i
	}

	for len(pending) > 0 {
		asn.count++
		cursorEnd := -1
		rest := pending[:0:0]

		for _, idx := range pending {
			ev := c.Events[idx]
			if cursorEnd >= 0 && *ev.Start < cursorEnd {
				rest = append(rest, idx)
				continue
			}
			asn.columns[idx] = asn.count
			cursorEnd = endOfDay(*ev.End)
		}

		pending = rest
	}

	return asn
}
