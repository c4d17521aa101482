package layout

import (
	"time"
)

// DefaultMinEventMinutes is the layout height floor for very short events.
const DefaultMinEventMinutes = 30

const minutesPerDay = 24 * 60

// LayoutSlot is the geometry of one timed event within its day column.
// Column is zero-based; ColumnCount is shared by every event in the same
// overlap cluster.
type LayoutSlot struct {
	Event            ClassifiedEvent `json:"event"`
	Column           int             `json:"column"`
	ColumnCount      int             `json:"column_count"`
	TopOffsetMinutes int             `json:"top_offset_minutes"`
	DurationMinutes  int             `json:"duration_minutes"`
}

// LayoutDay assigns columns to one day's timed events so that no two events
// whose intervals intersect share a column.
//
// Events are swept in start order (ties by ID). Each takes the lowest column
// whose occupant has ended; otherwise a new column is opened. A cluster ends
// when the next event starts at or after every active event's end, and all
// members of a cluster get the cluster's column count, so separate groups in
// the same day do not narrow each other.
//
// Events shorter than minMinutes occupy minMinutes for layout purposes only;
// the classified End is left untouched.
func LayoutDay(timed []ClassifiedEvent, minMinutes int) []LayoutSlot {
	if len(timed) == 0 {
		return nil
	}
	if minMinutes <= 0 {
		minMinutes = DefaultMinEventMinutes
	}

	evs := make([]ClassifiedEvent, len(timed))
	copy(evs, timed)
	sortTimed(evs)

	slots := make([]LayoutSlot, len(evs))

	var (
		columns      []time.Time // end of the current occupant, per column
		clusterStart int
		clusterEnd   time.Time
		clusterWidth int
	)

	closeCluster := func(upTo int) {
		for k := clusterStart; k < upTo; k++ {
			slots[k].ColumnCount = clusterWidth
		}
	}

	for i, ev := range evs {
		start := ev.Start
		end := layoutEnd(ev, minMinutes)

		if i > 0 && !start.Before(clusterEnd) {
			closeCluster(i)
			clusterStart = i
			clusterWidth = 0
			columns = columns[:0]
		}

		col := -1
		for c, occupiedUntil := range columns {
			if !occupiedUntil.After(start) {
				col = c
				break
			}
		}
		if col == -1 {
			columns = append(columns, end)
			col = len(columns) - 1
		} else {
			columns[col] = end
		}

		if col+1 > clusterWidth {
			clusterWidth = col + 1
		}
		if i == clusterStart || end.After(clusterEnd) {
			clusterEnd = end
		}

		top, dur := geometry(ev, minMinutes)
		slots[i] = LayoutSlot{
			Event:            ev,
			Column:           col,
			TopOffsetMinutes: top,
			DurationMinutes:  dur,
		}
	}
	closeCluster(len(evs))

	return slots
}

// layoutEnd is the end used for collision checks: at least minMinutes after
// the start.
func layoutEnd(ev ClassifiedEvent, minMinutes int) time.Time {
	floor := ev.Start.Add(time.Duration(minMinutes) * time.Minute)
	if ev.End.Before(floor) {
		return floor
	}
	return ev.End
}

// geometry returns the top offset and drawn duration in minutes within the
// start day. The drawn block never runs past the end of the day.
func geometry(ev ClassifiedEvent, minMinutes int) (int, int) {
	top := ev.Start.Hour()*60 + ev.Start.Minute()

	dur := int(ev.End.Sub(ev.Start) / time.Minute)
	if dur < minMinutes {
		dur = minMinutes
	}
	if top+dur > minutesPerDay {
		dur = minutesPerDay - top
	}
	return top, dur
}
