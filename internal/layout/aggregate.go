package layout

// DefaultMaxVisiblePerDay is how many events a day cell shows before "+N more".
const DefaultMaxVisiblePerDay = 3

// DayRenderModel is everything a view needs to draw one day cell. FullList
// is kept even when the cell is truncated so an expanded view can be shown
// without re-running the pipeline.
type DayRenderModel struct {
	Day CalendarDay `json:"day"`

	AllDayOrMultiDay []SpanSlot       `json:"all_day_or_multi_day"`
	TimedSlots       []LayoutSlot      `json:"timed_slots"`
	MoreCount        int               `json:"more_count"`
	FullList         []ClassifiedEvent `json:"full_list"`

	maxVisible int
}

// Visible returns the events shown in the cell: the first maxVisible entries
// of FullList.
func (m DayRenderModel) Visible() []ClassifiedEvent {
	n := m.maxVisible
	if n <= 0 || n > len(m.FullList) {
		n = len(m.FullList)
	}
	return m.FullList[:n]
}

// Aggregate composes the cell list for one day: spanning events first in
// bucket order, then timed events in start order. Spanning items always sit
// above timed ones in a cell.
func Aggregate(day CalendarDay, bucket DayEventBucket, spans []SpanSlot, slots []LayoutSlot, maxVisible int) DayRenderModel {
	if maxVisible <= 0 {
		maxVisible = DefaultMaxVisiblePerDay
	}

	full := make([]ClassifiedEvent, 0, len(bucket.AllDayOrMultiDay)+len(bucket.Timed))
	full = append(full, bucket.AllDayOrMultiDay...)
	full = append(full, bucket.Timed...)

	m := DayRenderModel{
		Day:              day,
		AllDayOrMultiDay: spans,
		TimedSlots:       slots,
		FullList:         full,
		maxVisible:       maxVisible,
	}
	if len(full) > maxVisible {
		m.MoreCount = len(full) - maxVisible
	}
	return m
}
