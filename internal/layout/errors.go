package layout

import (
	"errors"
	"fmt"
)

// ErrUnparseableTimestamp is wrapped when a boundary value cannot be read as
// a date or date-time.
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

// TimezoneConversionError reports that a boundary's source zone could not be
// used. It is recovered locally: the value is read in the display timezone.
type TimezoneConversionError struct {
	EventID string
	Zone    string
	Err     error
}

func (e *TimezoneConversionError) Error() string {
	return fmt.Sprintf("layout: event %q: timezone %q: %v", e.EventID, e.Zone, e.Err)
}

func (e *TimezoneConversionError) Unwrap() error { return e.Err }

// MalformedEventError marks an event that cannot be placed on the grid. The
// event is excluded from day bucketing; other events are unaffected.
type MalformedEventError struct {
	EventID string
	Reason  string
	Err     error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("layout: event %q malformed: %s: %v", e.EventID, e.Reason, e.Err)
	}
	return fmt.Sprintf("layout: event %q malformed: %s", e.EventID, e.Reason)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// Problem reasons reported for excluded or adjusted events.
const (
	ReasonMissingBoundary = "missing_boundary"
	ReasonUnparseable     = "unparseable_timestamp"
	ReasonEndBeforeStart  = "end_before_start"
	ReasonTimezone        = "timezone_fallback"
)
