package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

var errEmptyBody = errors.New("empty ICS body")

type stampKind uint8

const (
	// stampDate is a VALUE=DATE day, held as midnight UTC.
	stampDate stampKind = iota
	// stampUTC is a "...Z" instant.
	stampUTC
	// stampLocal is a wall clock, either in a resolvable TZID (held in that
	// zone) or floating/unknown (wall clock held in UTC).
	stampLocal
)

// stamp is one parsed DTSTART/DTEND/RECURRENCE-ID value.
type stamp struct {
	t    time.Time
	kind stampKind
	tzid string
}

// boundary renders s in the canonical event shape. Local wall clocks keep
// their TZID so zone resolution happens once, in the layout normalizer.
func (s stamp) boundary() model.Boundary {
	switch s.kind {
	case stampDate:
		return model.DateBoundary(s.t.Format("2006-01-02"))
	case stampUTC:
		return model.InstantBoundary(s.t.UTC().Format(time.RFC3339), "")
	default:
		return model.InstantBoundary(s.t.Format("2006-01-02T15:04:05"), s.tzid)
	}
}

// instanceSuffix formats s the way recurring instance IDs are keyed.
func (s stamp) instanceSuffix() string {
	switch s.kind {
	case stampDate:
		return s.t.Format("20060102")
	case stampLocal:
		if s.t.Location() == time.UTC {
			return s.t.Format("20060102T150405")
		}
		return s.t.UTC().Format("20060102T150405Z")
	default:
		return s.t.UTC().Format("20060102T150405Z")
	}
}

// at returns a stamp of the same kind and zone at t.
func (s stamp) at(t time.Time) stamp {
	return stamp{t: t, kind: s.kind, tzid: s.tzid}
}

// vevent is a VEVENT reduced to what expansion needs.
type vevent struct {
	feed Feed

	uid      string
	sequence int
	status   string

	summary     string
	description string
	location    string
	attendees   []model.Attendee

	start stamp
	end   stamp

	rrule        string
	exdates      []time.Time
	recurrenceID *time.Time
}

func (v vevent) cancelled() bool {
	return strings.EqualFold(v.status, "CANCELLED")
}

// parseCalendar reads every VEVENT in body. A broken VEVENT is logged and
// skipped; only an unreadable calendar is an error.
func parseCalendar(feed Feed, body []byte) ([]vevent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]vevent, 0, len(cal.Events()))
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(feed, comp)
		if err != nil {
			appLog.Warn("ics vevent skipped", "feed", feed.ID, "err", err)
			continue
		}
		out = append(out, ev)
	}

	appLog.Debug("ics parse completed", "feed", feed.ID, "vevents", len(out))
	return out, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) (vevent, error) {
	out := vevent{feed: feed}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.uid = strings.TrimSpace(uid.Value)

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.sequence = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.status = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return out, errors.New("missing DTSTART in " + out.uid)
	}
	start, err := parseStamp(dtstart.Value, dtstart.ICalParameters)
	if err != nil {
		return out, err
	}
	out.start = start

	// Without DTEND a date event lasts one day and a timed event is
	// instantaneous.
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		end, err := parseStamp(dtend.Value, dtend.ICalParameters)
		if err != nil {
			return out, err
		}
		out.end = end
	} else if start.kind == stampDate {
		out.end = start.at(start.t.AddDate(0, 0, 1))
	} else {
		out.end = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if ex, err := parseStamp(part, p.ICalParameters); err == nil {
				out.exdates = append(out.exdates, ex.t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if rid, err := parseStamp(p.Value, p.ICalParameters); err == nil {
			out.recurrenceID = &rid.t
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		out.attendees = append(out.attendees, model.Attendee{
			Email:          strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:"),
			DisplayName:    param(p.ICalParameters, "CN"),
			ResponseStatus: responseStatus(param(p.ICalParameters, "PARTSTAT")),
		})
	}

	return out, nil
}

// parseStamp reads a DATE or DATE-TIME value using its VALUE and TZID
// parameters. An unknown TZID keeps the wall clock and the zone name.
func parseStamp(value string, params map[string][]string) (stamp, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return stamp{}, errors.New("empty time value")
	}

	if strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		t, err := time.Parse("20060102", v)
		if err != nil {
			return stamp{}, err
		}
		return stamp{t: t, kind: stampDate}, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return stamp{}, err
		}
		return stamp{t: t, kind: stampUTC}, nil
	}

	tzid := strings.Trim(param(params, "TZID"), `"`)
	loc := time.UTC
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	if err != nil {
		return stamp{}, err
	}
	return stamp{t: t, kind: stampLocal, tzid: tzid}, nil
}

func param(params map[string][]string, name string) string {
	if vs, ok := params[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// responseStatus maps PARTSTAT onto the provider-style response values.
func responseStatus(partstat string) string {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return "accepted"
	case "DECLINED":
		return "declined"
	case "TENTATIVE":
		return "tentative"
	case "NEEDS-ACTION":
		return "needsAction"
	default:
		return ""
	}
}
