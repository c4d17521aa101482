package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// windowSlack widens the query window on both sides. Floating and
// unknown-zone wall clocks are held in UTC here, so their true instant is only
// known once the layout normalizer picks a zone.
const windowSlack = 24 * time.Hour

// instance is one concrete occurrence, ready for the layout pipeline.
type instance struct {
	event model.Event
	start time.Time
}

// expand turns parsed VEVENTs into single instances intersecting
// [from, to). RRULE, EXDATE and RECURRENCE-ID overrides are resolved here so
// that nothing downstream sees a recurrence. It also returns the UIDs whose
// expansion hit maxPerEvent.
func expand(events []vevent, from, to time.Time, maxPerEvent int) ([]instance, []string) {
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}
	from = from.Add(-windowSlack)
	to = to.Add(windowSlack)

	bases := make(map[string]vevent)
	var order []string
	overrides := make(map[string][]vevent)

	for _, ev := range events {
		if ev.recurrenceID != nil {
			overrides[ev.uid] = addOverride(overrides[ev.uid], ev)
			continue
		}
		prev, seen := bases[ev.uid]
		if !seen {
			order = append(order, ev.uid)
		}
		if !seen || ev.sequence > prev.sequence {
			bases[ev.uid] = ev
		}
	}

	var (
		out       []instance
		truncated []string
	)
	for _, uid := range order {
		base := bases[uid]
		occ, hitCap := expandOne(base, overrides[uid], from, to, maxPerEvent)
		out = append(out, occ...)
		if hitCap {
			truncated = append(truncated, uid)
		}
	}

	// Overrides whose base is missing from the feed still render.
	for uid, ovs := range overrides {
		if _, ok := bases[uid]; ok {
			continue
		}
		for _, ov := range ovs {
			if !ov.cancelled() && overlaps(ov.start.t, ov.end.t, from, to) {
				out = append(out, newInstance(ov, ov.start, ov.end, instanceID(ov, ov.start.at(*ov.recurrenceID))))
			}
		}
	}

	sortInstances(out)
	return out, truncated
}

// sortInstances orders by start instant, then ID.
func sortInstances(in []instance) {
	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].start.Equal(in[j].start) {
			return in[i].start.Before(in[j].start)
		}
		return in[i].event.ID < in[j].event.ID
	})
}

// expandOne places overrides by their own interval, so an instance moved into
// the window from a slot outside it still shows up, then fills in the rule
// occurrences no override replaces.
func expandOne(base vevent, overrides []vevent, from, to time.Time, maxPerEvent int) ([]instance, bool) {
	var out []instance
	for _, ov := range overrides {
		if ov.cancelled() || !overlaps(ov.start.t, ov.end.t, from, to) {
			continue
		}
		out = append(out, newInstance(ov, ov.start, ov.end, instanceID(base, base.start.at(*ov.recurrenceID))))
	}

	occ, hitCap := ruleInstances(base, overrides, from, to, maxPerEvent)
	return append(out, occ...), hitCap
}

func ruleInstances(base vevent, overrides []vevent, from, to time.Time, maxPerEvent int) ([]instance, bool) {
	if base.cancelled() {
		return nil, false
	}
	if base.rrule == "" {
		if overridden(overrides, base.start.t) || !overlaps(base.start.t, base.end.t, from, to) {
			return nil, false
		}
		return []instance{newInstance(base, base.start, base.end, base.feed.ID+"/"+base.uid)}, false
	}

	r, err := rrule.StrToRRule(base.rrule)
	if err != nil {
		appLog.Warn("ics rrule unreadable, using first instance only", "feed", base.feed.ID, "uid", base.uid, "rrule", base.rrule, "err", err)
		base.rrule = ""
		return ruleInstances(base, overrides, from, to, maxPerEvent)
	}
	r.DTStart(base.start.t)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range base.exdates {
		set.ExDate(ex.In(base.start.t.Location()))
	}

	dur := base.end.t.Sub(base.start.t)
	loc := base.start.t.Location()
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)

	hitCap := false
	if len(starts) > maxPerEvent {
		starts = starts[:maxPerEvent]
		hitCap = true
	}

	out := make([]instance, 0, len(starts))
	for _, occStart := range starts {
		if overridden(overrides, occStart) {
			continue
		}
		start := base.start.at(occStart)
		end := base.end.at(occStart.Add(dur))
		if !overlaps(start.t, end.t, from, to) {
			continue
		}
		out = append(out, newInstance(base, start, end, instanceID(base, start)))
	}
	return out, hitCap
}

func instanceID(ev vevent, occurrence stamp) string {
	return ev.feed.ID + "/" + ev.uid + "_" + occurrence.instanceSuffix()
}

// overridden reports whether a RECURRENCE-ID replaces the occurrence at
// occStart, cancelled or not.
func overridden(overrides []vevent, occStart time.Time) bool {
	for _, ov := range overrides {
		if ov.recurrenceID != nil && ov.recurrenceID.Equal(occStart) {
			return true
		}
	}
	return false
}

// addOverride keeps one override per RECURRENCE-ID, the highest SEQUENCE
// winning.
func addOverride(list []vevent, ov vevent) []vevent {
	for i, cur := range list {
		if cur.recurrenceID.Equal(*ov.recurrenceID) {
			if ov.sequence >= cur.sequence {
				list[i] = ov
			}
			return list
		}
	}
	return append(list, ov)
}

func newInstance(ev vevent, start, end stamp, id string) instance {
	return instance{
		start: start.t,
		event: model.Event{
			ID:          id,
			SourceID:    ev.feed.ID,
			Title:       ev.summary,
			Description: ev.description,
			Location:    ev.location,
			Start:       start.boundary(),
			End:         end.boundary(),
			Attendees:   ev.attendees,
		},
	}
}

// overlaps reports whether [start, end) intersects [from, to). Zero-length
// events count when their instant falls in the window.
func overlaps(start, end, from, to time.Time) bool {
	if !start.Before(to) {
		return false
	}
	if end.Equal(start) {
		return !start.Before(from)
	}
	return end.After(from)
}
