package layout

import (
	"fmt"
	"strings"
	"time"
)

// TimeFormat selects 12-hour or 24-hour clock labels.
type TimeFormat string

const (
	TimeFormat12h TimeFormat = "12h"
	TimeFormat24h TimeFormat = "24h"
)

// ParseTimeFormat defaults to 12h for anything but "24h".
func ParseTimeFormat(s string) TimeFormat {
	if strings.TrimSpace(s) == string(TimeFormat24h) {
		return TimeFormat24h
	}
	return TimeFormat12h
}

// FormatClock renders t's wall clock: "9:30am" or "09:30".
func FormatClock(t time.Time, f TimeFormat) string {
	if f == TimeFormat24h {
		return t.Format("15:04")
	}
	return strings.ToLower(t.Format("3:04PM"))
}

// HourLabel labels a row of the hour grid: "6:00am" or "06:00".
func HourLabel(hour int, f TimeFormat) string {
	if f == TimeFormat24h {
		return fmt.Sprintf("%02d:00", hour)
	}
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:00%s", h, suffix)
}
