package layout_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/layout"
)

type slotWant struct {
	col, count int
}

func slotsByID(slots []layout.LayoutSlot) map[string]layout.LayoutSlot {
	out := make(map[string]layout.LayoutSlot, len(slots))
	for _, s := range slots {
		out[s.Event.Event.ID] = s
	}
	return out
}

func TestLayoutDay_Columns(t *testing.T) {
	loc := newYork(t)

	tests := []struct {
		name   string
		events [][3]string
		want   map[string]slotWant
	}{
		{
			name: "two overlapping",
			events: [][3]string{
				{"a", "09:00", "10:00"},
				{"b", "09:30", "10:30"},
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}},
		},
		{
			name: "separate cluster keeps full width",
			events: [][3]string{
				{"a", "09:00", "10:00"},
				{"b", "09:30", "10:30"},
				{"c", "11:00", "12:00"},
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}, "c": {0, 1}},
		},
		{
			name: "chain reuses freed column",
			events: [][3]string{
				{"a", "09:00", "10:00"},
				{"b", "09:30", "11:00"},
				{"c", "10:30", "11:30"},
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}, "c": {0, 2}},
		},
		{
			name: "back to back do not overlap",
			events: [][3]string{
				{"a", "09:00", "10:00"},
				{"b", "10:00", "11:00"},
			},
			want: map[string]slotWant{"a": {0, 1}, "b": {0, 1}},
		},
		{
			name: "three way",
			events: [][3]string{
				{"a", "09:00", "12:00"},
				{"b", "09:00", "10:00"},
				{"c", "09:15", "09:45"},
				{"d", "10:00", "11:00"},
			},
			want: map[string]slotWant{"a": {0, 3}, "b": {1, 3}, "c": {2, 3}, "d": {1, 3}},
		},
		{
			name: "short events collide through the floor",
			events: [][3]string{
				{"a", "12:00", "12:05"},
				{"b", "12:10", "12:15"},
				{"c", "12:30", "12:35"},
			},
			want: map[string]slotWant{"a": {0, 2}, "b": {1, 2}, "c": {0, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var evs []layout.ClassifiedEvent
			for _, e := range tt.events {
				evs = append(evs, classify(t, loc, timed(e[0],
					"2024-06-10T"+e[1]+":00-04:00",
					"2024-06-10T"+e[2]+":00-04:00")))
			}

			slots := layout.LayoutDay(evs, 30)
			require.Len(t, slots, len(tt.events))

			got := slotsByID(slots)
			for id, w := range tt.want {
				assert.Equal(t, w.col, got[id].Column, "%s column", id)
				assert.Equal(t, w.count, got[id].ColumnCount, "%s column count", id)
			}
		})
	}
}

func TestLayoutDay_Geometry(t *testing.T) {
	loc := newYork(t)

	t.Run("offset and duration", func(t *testing.T) {
		ev := classify(t, loc, timed("a", "2024-06-10T09:15:00-04:00", "2024-06-10T10:45:00-04:00"))
		slots := layout.LayoutDay([]layout.ClassifiedEvent{ev}, 30)
		require.Len(t, slots, 1)
		assert.Equal(t, 9*60+15, slots[0].TopOffsetMinutes)
		assert.Equal(t, 90, slots[0].DurationMinutes)
	})

	t.Run("zero-length event gets the floor", func(t *testing.T) {
		evs := classifyAll(t, loc,
			timed("pin", "2024-06-10T12:00:00-04:00", "2024-06-10T12:00:00-04:00"),
			timed("next", "2024-06-10T12:15:00-04:00", "2024-06-10T12:45:00-04:00"),
		)
		slots := slotsByID(layout.LayoutDay(evs, 30))

		assert.Equal(t, 720, slots["pin"].TopOffsetMinutes)
		assert.Equal(t, 30, slots["pin"].DurationMinutes)
		// The floor counts for collisions too.
		assert.Equal(t, 1, slots["next"].Column)
		assert.Equal(t, 2, slots["next"].ColumnCount)
		// The classified end is untouched.
		assert.True(t, slots["pin"].Event.Start.Equal(slots["pin"].Event.End))
	})

	t.Run("clipped at end of day", func(t *testing.T) {
		ev := classify(t, loc, timed("late", "2024-06-10T23:45:00-04:00", "2024-06-10T23:50:00-04:00"))
		slots := layout.LayoutDay([]layout.ClassifiedEvent{ev}, 30)
		require.Len(t, slots, 1)
		assert.Equal(t, 23*60+45, slots[0].TopOffsetMinutes)
		assert.Equal(t, 15, slots[0].DurationMinutes)
	})

	t.Run("empty day", func(t *testing.T) {
		assert.Empty(t, layout.LayoutDay(nil, 30))
	})
}

func TestLayoutDay_DoesNotReorderInput(t *testing.T) {
	loc := newYork(t)
	evs := classifyAll(t, loc,
		timed("b", "2024-06-10T10:00:00-04:00", "2024-06-10T11:00:00-04:00"),
		timed("a", "2024-06-10T09:00:00-04:00", "2024-06-10T10:00:00-04:00"),
	)

	layout.LayoutDay(evs, 30)

	assert.Equal(t, []string{"b", "a"}, ids(evs))
}

// TestLayoutDay_RandomDays checks, over seeded random days, that no column
// holds two intersecting events and that the widest cluster uses exactly as
// many columns as the deepest overlap. Intervals are measured with the 30
// minute floor applied, since that is the box that gets drawn.
func TestLayoutDay_RandomDays(t *testing.T) {
	loc := newYork(t)
	rng := rand.New(rand.NewSource(20240610))
	base := time.Date(2024, 6, 10, 0, 0, 0, 0, loc)

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(12)
		evs := make([]layout.ClassifiedEvent, 0, n)
		for i := 0; i < n; i++ {
			start := base.Add(time.Duration(rng.Intn(240)*5) * time.Minute)
			end := start.Add(time.Duration(5+rng.Intn(36)*5) * time.Minute)
			evs = append(evs, classify(t, loc, timed(
				fmt.Sprintf("r%d-%d", round, i),
				start.Format(time.RFC3339),
				end.Format(time.RFC3339),
			)))
		}

		slots := layout.LayoutDay(evs, 30)
		require.Len(t, slots, n)

		drawnEnd := func(ev layout.ClassifiedEvent) time.Time {
			if floor := ev.Start.Add(30 * time.Minute); ev.End.Before(floor) {
				return floor
			}
			return ev.End
		}

		maxCols := 0
		for i, a := range slots {
			require.Less(t, a.Column, a.ColumnCount)
			if a.ColumnCount > maxCols {
				maxCols = a.ColumnCount
			}
			for _, b := range slots[i+1:] {
				if a.Column != b.Column {
					continue
				}
				overlap := a.Event.Start.Before(drawnEnd(b.Event)) && b.Event.Start.Before(drawnEnd(a.Event))
				require.False(t, overlap, "round %d: %s and %s share column %d",
					round, a.Event.Event.ID, b.Event.Event.ID, a.Column)
			}
		}

		depth := 0
		for _, a := range evs {
			active := 0
			for _, b := range evs {
				if !b.Start.After(a.Start) && drawnEnd(b).After(a.Start) {
					active++
				}
			}
			if active > depth {
				depth = active
			}
		}
		assert.Equal(t, depth, maxCols, "round %d", round)
	}
}
