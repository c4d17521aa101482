package model

// BoundaryKind tags which representation an event boundary carries.
type BoundaryKind uint8

const (
	// BoundaryMissing means the provider supplied neither a date nor a date-time.
	BoundaryMissing BoundaryKind = iota
	// BoundaryDate is a calendar date with no time of day ("2006-01-02").
	BoundaryDate
	// BoundaryInstant is a date-time, usually RFC3339, optionally qualified
	// by the IANA zone it was authored in.
	BoundaryInstant
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryDate:
		return "date"
	case BoundaryInstant:
		return "instant"
	default:
		return "missing"
	}
}

// Boundary is one end of an event as delivered by a source. Values are kept
// as raw strings; parsing and timezone conversion happen in the layout
// pipeline so that a bad value only affects its own event.
type Boundary struct {
	Kind     BoundaryKind `json:"kind"`
	Value    string       `json:"value,omitempty"`
	TimeZone string       `json:"time_zone,omitempty"`
}

// DateBoundary builds a date-only boundary.
func DateBoundary(date string) Boundary {
	return Boundary{Kind: BoundaryDate, Value: date}
}

// InstantBoundary builds a zoned-instant boundary. tz may be empty.
func InstantBoundary(value, tz string) Boundary {
	return Boundary{Kind: BoundaryInstant, Value: value, TimeZone: tz}
}

func (b Boundary) IsDate() bool {
	return b.Kind == BoundaryDate
}

// Attendee mirrors the provider attendee record.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// Event is the single canonical event shape every source adapter produces.
// Events are treated as immutable once handed to the layout pipeline.
type Event struct {
	// ID is unique within one fetch batch.
	ID string `json:"id"`
	// SourceID identifies which configured calendar produced the event.
	SourceID string `json:"source_id,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start Boundary `json:"start"`
	End   Boundary `json:"end"`

	Attendees []Attendee `json:"attendees,omitempty"`
}

// UntitledPlaceholder is shown for events the provider returned without a title.
const UntitledPlaceholder = "(No title)"

// DisplayTitle returns the title or a placeholder when it is blank.
func (e Event) DisplayTitle() string {
	if e.Title == "" {
		return UntitledPlaceholder
	}
	return e.Title
}
