package layout

import (
	"sort"
)

// DayEventBucket holds the events touching one visible day.
type DayEventBucket struct {
	// AllDayOrMultiDay keeps source order.
	AllDayOrMultiDay []ClassifiedEvent
	// Timed is ordered by start, then ID.
	Timed []ClassifiedEvent
}

// IndexIntoDays buckets events into the visible days; bucket i belongs to
// days[i]. Multi-day events land in every day they cover, single-day timed
// events in the one day they start on. Unplaceable events are skipped.
//
// This is a plain days x events scan; the inputs (a few weeks, at most a few
// thousand events) do not warrant an interval index.
func IndexIntoDays(events []ClassifiedEvent, days []CalendarDay) []DayEventBucket {
	buckets := make([]DayEventBucket, len(days))

	for i, d := range days {
		var b DayEventBucket
		for _, ev := range events {
			if !ev.Placeable {
				continue
			}
			if ev.IsMultiDay || ev.IsAllDay {
				if ev.coversDay(d.FullDate) {
					b.AllDayOrMultiDay = append(b.AllDayOrMultiDay, ev)
				}
				continue
			}
			if sameDay(ev.Start, d.FullDate) {
				b.Timed = append(b.Timed, ev)
			}
		}
		sortTimed(b.Timed)
		buckets[i] = b
	}
	return buckets
}

func sortTimed(evs []ClassifiedEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Start.Before(evs[j].Start)
		}
		return evs[i].Event.ID < evs[j].Event.ID
	})
}

// SpanSlot places one all-day/multi-day event on one day. Lane is the same on
// every day the event covers in the window, so the bar stays continuous.
type SpanSlot struct {
	Event           ClassifiedEvent `json:"event"`
	Lane            int             `json:"lane"`
	ContinuesBefore bool            `json:"continues_before"`
	ContinuesAfter  bool            `json:"continues_after"`
}

// AssignLanes gives every spanning event in buckets a lane number for the
// whole window: events are taken in the order they first appear (day by day,
// source order within a day) and get the lowest lane free on all the days they
// cover. The result maps event ID to lane.
func AssignLanes(buckets []DayEventBucket) map[string]int {
	lanes := make(map[string]int)
	// occupied[day][lane]
	occupied := make([]map[int]bool, len(buckets))
	for i := range occupied {
		occupied[i] = make(map[int]bool)
	}

	for i, b := range buckets {
		for _, ev := range b.AllDayOrMultiDay {
			if _, done := lanes[ev.Event.ID]; done {
				continue
			}
			last := i
			for last+1 < len(buckets) && containsEvent(buckets[last+1].AllDayOrMultiDay, ev.Event.ID) {
				last++
			}

			lane := 0
			for !laneFree(occupied[i:last+1], lane) {
				lane++
			}
			for d := i; d <= last; d++ {
				occupied[d][lane] = true
			}
			lanes[ev.Event.ID] = lane
		}
	}
	return lanes
}

func laneFree(days []map[int]bool, lane int) bool {
	for _, occ := range days {
		if occ[lane] {
			return false
		}
	}
	return true
}

func containsEvent(evs []ClassifiedEvent, id string) bool {
	for _, ev := range evs {
		if ev.Event.ID == id {
			return true
		}
	}
	return false
}

// spanSlots builds the span view of day i's spanning events.
func spanSlots(days []CalendarDay, i int, evs []ClassifiedEvent, lanes map[string]int) []SpanSlot {
	if len(evs) == 0 {
		return nil
	}
	day := days[i].FullDate
	out := make([]SpanSlot, 0, len(evs))
	for _, ev := range evs {
		out = append(out, SpanSlot{
			Event:           ev,
			Lane:            lanes[ev.Event.ID],
			ContinuesBefore: dayNumber(ev.Start) < dayNumber(day),
			ContinuesAfter:  dayNumber(ev.lastDay()) > dayNumber(day),
		})
	}
	return out
}
