package layout_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"calgrid/internal/layout"
	"calgrid/internal/model"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func timed(id, start, end string) model.Event {
	return model.Event{
		ID:    id,
		Title: "Event " + id,
		Start: model.InstantBoundary(start, ""),
		End:   model.InstantBoundary(end, ""),
	}
}

func allDay(id, start, end string) model.Event {
	return model.Event{
		ID:    id,
		Title: "All day " + id,
		Start: model.DateBoundary(start),
		End:   model.DateBoundary(end),
	}
}

func classify(t *testing.T, loc *time.Location, ev model.Event) layout.ClassifiedEvent {
	t.Helper()
	n := layout.NewNormalizer(loc, nil)
	return layout.Classify(ev, n.Normalize(ev))
}

func classifyAll(t *testing.T, loc *time.Location, evs ...model.Event) []layout.ClassifiedEvent {
	t.Helper()
	out := make([]layout.ClassifiedEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, classify(t, loc, ev))
	}
	return out
}

func date(loc *time.Location, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func ids(evs []layout.ClassifiedEvent) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Event.ID)
	}
	return out
}
