package layout

import (
	"strings"
	"time"
)

// CalendarDay is one cell of the visible grid. A sequence of days is rebuilt
// whenever the navigated period changes; it is never mutated in place.
type CalendarDay struct {
	// Date is the day of month.
	Date int `json:"date"`
	// FullDate is local midnight in the display timezone.
	FullDate time.Time    `json:"full_date"`
	Weekday  time.Weekday `json:"weekday"`
	IsToday  bool         `json:"is_today"`
	// IsInFocusedPeriod is false for padding days borrowed from the adjacent month.
	IsInFocusedPeriod bool `json:"is_in_focused_period"`
}

// ParseWeekStart maps the config value onto a weekday. Anything other than
// "monday" means Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// midnight returns local midnight of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// dayNumber is a zone-independent ordinal for t's wall-clock calendar day.
// Comparing ordinals avoids DST-length days skewing instant arithmetic.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func sameDay(a, b time.Time) bool {
	return dayNumber(a) == dayNumber(b)
}

// startOfWeek returns midnight of the first day of the week containing anchor.
func startOfWeek(anchor time.Time, weekStart time.Weekday, loc *time.Location) time.Time {
	day := midnight(anchor, loc)
	diff := (int(day.Weekday()) - int(weekStart) + 7) % 7
	return day.AddDate(0, 0, -diff)
}

func newDay(t time.Time, now time.Time, focused bool) CalendarDay {
	return CalendarDay{
		Date:              t.Day(),
		FullDate:          t,
		Weekday:           t.Weekday(),
		IsToday:           !now.IsZero() && sameDay(t, now.In(t.Location())),
		IsInFocusedPeriod: focused,
	}
}

// WeekDays returns the seven days of the week containing anchor, in the
// anchor's location. now is only used for IsToday.
func WeekDays(anchor time.Time, weekStart time.Weekday, now time.Time) []CalendarDay {
	loc := anchor.Location()
	first := startOfWeek(anchor, weekStart, loc)

	days := make([]CalendarDay, 0, 7)
	for i := 0; i < 7; i++ {
		days = append(days, newDay(first.AddDate(0, 0, i), now, true))
	}
	return days
}

// MonthDays returns whole weeks covering anchor's month. Days outside the
// month are included as padding with IsInFocusedPeriod=false.
func MonthDays(anchor time.Time, weekStart time.Weekday, now time.Time) []CalendarDay {
	loc := anchor.Location()
	a := anchor.In(loc)
	firstOfMonth := time.Date(a.Year(), a.Month(), 1, 0, 0, 0, 0, loc)
	lastOfMonth := firstOfMonth.AddDate(0, 1, -1)

	first := startOfWeek(firstOfMonth, weekStart, loc)
	last := startOfWeek(lastOfMonth, weekStart, loc).AddDate(0, 0, 6)

	days := make([]CalendarDay, 0, 42)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, newDay(d, now, d.Month() == a.Month()))
	}
	return days
}

// Window returns the half-open instant range [first midnight, midnight after
// the last day) covered by days, suitable as a fetch window.
func Window(days []CalendarDay) (time.Time, time.Time) {
	if len(days) == 0 {
		return time.Time{}, time.Time{}
	}
	return days[0].FullDate, days[len(days)-1].FullDate.AddDate(0, 0, 1)
}
