package layout

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"calgrid/internal/model"
)

const dateLayout = "2006-01-02"

// wall-clock layouts accepted for instants that carry no UTC offset. They are
// read in the boundary's own zone.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Bounds is the normalized start/end of one event in the display timezone.
// A boundary that could not be read has its ok flag cleared.
type Bounds struct {
	Start   time.Time
	End     time.Time
	StartOK bool
	EndOK   bool

	// Warnings holds recovered problems (e.g. unknown source zone). They do
	// not make the event unplaceable.
	Warnings []error
	// Err is set when either boundary is missing or unparseable.
	Err error
}

// Normalizer converts raw event boundaries into the display timezone.
type Normalizer struct {
	loc   *time.Location
	cache *ConversionCache

	zonesMu sync.RWMutex
	zones   map[string]*time.Location
}

// NewNormalizer returns a normalizer for loc. cache may be nil, in which case
// every conversion is computed directly.
func NewNormalizer(loc *time.Location, cache *ConversionCache) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{
		loc:   loc,
		cache: cache,
		zones: make(map[string]*time.Location),
	}
}

// Location is the display timezone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize reads both boundaries of ev. It never fails the caller: problems
// are returned inside Bounds.
func (n *Normalizer) Normalize(ev model.Event) Bounds {
	var b Bounds

	start := n.boundary(ev.ID, ev.Start)
	end := n.boundary(ev.ID, ev.End)

	for _, r := range []readBoundary{start, end} {
		if r.warn != nil {
			b.Warnings = append(b.Warnings, r.warn)
		}
	}

	if start.err == nil {
		b.Start, b.StartOK = start.t, true
	}
	if end.err == nil {
		b.End, b.EndOK = end.t, true
	}

	switch {
	case start.err != nil:
		b.Err = start.err
	case end.err != nil:
		b.Err = end.err
	}
	return b
}

type readBoundary struct {
	t    time.Time
	warn error
	err  error
}

func (n *Normalizer) boundary(eventID string, bd model.Boundary) readBoundary {
	v := strings.TrimSpace(bd.Value)
	unparseable := func(warn error) readBoundary {
		return readBoundary{warn: warn, err: &MalformedEventError{
			EventID: eventID,
			Reason:  ReasonUnparseable,
			Err:     fmt.Errorf("%w: %q", ErrUnparseableTimestamp, v),
		}}
	}

	switch bd.Kind {
	case model.BoundaryDate:
		t, err := time.ParseInLocation(dateLayout, v, n.loc)
		if err != nil {
			return unparseable(nil)
		}
		return readBoundary{t: t}

	case model.BoundaryInstant:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return readBoundary{t: n.cache.Convert(t, n.loc)}
		}

		src, warn := n.sourceZone(eventID, bd.TimeZone)
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, v, src); err == nil {
				return readBoundary{t: n.cache.Convert(t, n.loc), warn: warn}
			}
		}
		return unparseable(warn)

	default:
		return readBoundary{err: &MalformedEventError{EventID: eventID, Reason: ReasonMissingBoundary}}
	}
}

// sourceZone resolves the zone an offset-less instant was authored in.
// Unknown zones fall back to the display zone and yield a warning.
func (n *Normalizer) sourceZone(eventID, name string) (*time.Location, error) {
	if name == "" {
		return n.loc, nil
	}

	n.zonesMu.RLock()
	loc, ok := n.zones[name]
	n.zonesMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return n.loc, &TimezoneConversionError{EventID: eventID, Zone: name, Err: err}
	}

	n.zonesMu.Lock()
	n.zones[name] = loc
	n.zonesMu.Unlock()
	return loc, nil
}
