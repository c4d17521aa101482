package layout

import (
	"time"

	"calgrid/internal/model"
)

// ClassifiedEvent is an event with its derived placement facts. End is
// inclusive: for all-day events the provider's exclusive end date has
// already been moved back one day.
type ClassifiedEvent struct {
	Event model.Event `json:"event"`

	IsAllDay   bool      `json:"is_all_day"`
	IsMultiDay bool      `json:"is_multi_day"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`

	// Placeable is false when a boundary was missing or unreadable; such
	// events are never bucketed into days.
	Placeable bool `json:"placeable"`
	// Problem is the reason the event is unplaceable, or an adjustment made
	// to it (end before start).
	Problem error `json:"-"`
}

// Classify derives all-day / multi-day flags and inclusive boundaries. The
// exclusive-to-inclusive end conversion for all-day events happens here and
// nowhere else.
func Classify(ev model.Event, b Bounds) ClassifiedEvent {
	ce := ClassifiedEvent{Event: ev}

	if b.Err != nil || !b.StartOK || !b.EndOK {
		ce.Problem = b.Err
		if ce.Problem == nil {
			ce.Problem = &MalformedEventError{EventID: ev.ID, Reason: ReasonMissingBoundary}
		}
		return ce
	}

	ce.Placeable = true
	ce.IsAllDay = ev.Start.IsDate() && ev.End.IsDate()
	ce.Start = b.Start
	ce.End = b.End

	if ce.IsAllDay {
		ce.End = ce.End.AddDate(0, 0, -1)
	}

	if ce.End.Before(ce.Start) {
		ce.Problem = &MalformedEventError{EventID: ev.ID, Reason: ReasonEndBeforeStart}
		ce.End = ce.Start
	}

	ce.IsMultiDay = ce.IsAllDay ||
		dayNumber(ce.lastDay()) != dayNumber(ce.Start) ||
		(!ce.IsAllDay && ce.End.Sub(ce.Start) >= 24*time.Hour)

	return ce
}

// lastDay is the calendar day a timed event finishes on. An end exactly at
// local midnight belongs to the previous day (24:00), unless the event has
// zero length.
func (ce ClassifiedEvent) lastDay() time.Time {
	if ce.IsAllDay || !ce.End.After(ce.Start) {
		return ce.End
	}
	h, m, s := ce.End.Clock()
	if h == 0 && m == 0 && s == 0 && ce.End.Nanosecond() == 0 {
		return ce.End.Add(-time.Nanosecond)
	}
	return ce.End
}

// coversDay reports whether day falls in [Start, End] at calendar-day
// granularity.
func (ce ClassifiedEvent) coversDay(day time.Time) bool {
	n := dayNumber(day)
	return n >= dayNumber(ce.Start) && n <= dayNumber(ce.lastDay())
}
