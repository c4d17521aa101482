// Package layout turns a batch of calendar events and a visible range of days
// into per-day render models: which day cells an event occupies, where timed
// events sit vertically, and how overlapping events share a column.
package layout

import (
	"errors"
	"time"

	"github.com/google/uuid"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Options configures a Pipeline.
type Options struct {
	// Location is the display timezone.
	Location         *time.Location
	MaxVisiblePerDay int
	MinEventMinutes  int
}

// Problem is a per-event data-quality report. Excluded problems removed the
// event from day placement; the rest were recovered.
type Problem struct {
	EventID  string `json:"event_id"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	Excluded bool   `json:"excluded"`
	Err      error  `json:"-"`
}

// NowMarker positions the current-time indicator.
type NowMarker struct {
	DayIndex int `json:"day_index"`
	Minutes  int `json:"minutes"`
}

// RenderResult is the output of one render pass.
type RenderResult struct {
	PassID string           `json:"pass_id"`
	Days   []DayRenderModel `json:"days"`
	// Events lists every event of the batch, placeable or not.
	Events   []ClassifiedEvent `json:"events"`
	Problems []Problem         `json:"problems,omitempty"`
	// Now is nil when the current instant is outside the visible days.
	Now *NowMarker `json:"now,omitempty"`
}

// Pipeline runs normalize -> classify -> index -> layout -> aggregate.
// A pass is synchronous and holds no state between calls apart from the
// injected conversion cache.
type Pipeline struct {
	opts       Options
	normalizer *Normalizer
}

// NewPipeline builds a pipeline. cache may be shared between pipelines that
// use the same display timezone, or nil.
func NewPipeline(opts Options, cache *ConversionCache) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxVisiblePerDay <= 0 {
		opts.MaxVisiblePerDay = DefaultMaxVisiblePerDay
	}
	if opts.MinEventMinutes <= 0 {
		opts.MinEventMinutes = DefaultMinEventMinutes
	}
	return &Pipeline{
		opts:       opts,
		normalizer: NewNormalizer(opts.Location, cache),
	}
}

// Location is the pipeline's display timezone.
func (p *Pipeline) Location() *time.Location {
	return p.opts.Location
}

// Classify normalizes and classifies a batch, preserving input order.
func (p *Pipeline) Classify(events []model.Event) ([]ClassifiedEvent, []Problem) {
	out := make([]ClassifiedEvent, 0, len(events))
	var problems []Problem

	for _, ev := range events {
		b := p.normalizer.Normalize(ev)
		for _, w := range b.Warnings {
			problems = append(problems, newProblem(ev.ID, w, false))
		}

		ce := Classify(ev, b)
		if ce.Problem != nil {
			problems = append(problems, newProblem(ev.ID, ce.Problem, !ce.Placeable))
		}
		out = append(out, ce)
	}
	return out, problems
}

// Render lays out events over days. now positions the current-time marker
// and may be zero.
func (p *Pipeline) Render(events []model.Event, days []CalendarDay, now time.Time) RenderResult {
	res := RenderResult{PassID: uuid.NewString()}

	classified, problems := p.Classify(events)
	res.Events = classified
	res.Problems = problems

	for _, pr := range problems {
		appLog.Warn("event data-quality problem",
			"pass_id", res.PassID,
			"event_id", pr.EventID,
			"reason", pr.Reason,
			"excluded", pr.Excluded,
			"detail", pr.Message,
		)
	}

	buckets := IndexIntoDays(classified, days)
	lanes := AssignLanes(buckets)

	res.Days = make([]DayRenderModel, len(days))
	for i, day := range days {
		slots := LayoutDay(buckets[i].Timed, p.opts.MinEventMinutes)
		spans := spanSlots(days, i, buckets[i].AllDayOrMultiDay, lanes)
		res.Days[i] = Aggregate(day, buckets[i], spans, slots, p.opts.MaxVisiblePerDay)
	}

	if !now.IsZero() {
		local := now.In(p.opts.Location)
		for i, day := range days {
			if sameDay(day.FullDate, local) {
				res.Now = &NowMarker{DayIndex: i, Minutes: local.Hour()*60 + local.Minute()}
				break
			}
		}
	}

	appLog.Debug("render pass complete",
		"pass_id", res.PassID,
		"events", len(events),
		"days", len(days),
		"problems", len(problems),
	)
	return res
}

func newProblem(eventID string, err error, excluded bool) Problem {
	pr := Problem{EventID: eventID, Err: err, Message: err.Error(), Excluded: excluded}

	var malformed *MalformedEventError
	var tz *TimezoneConversionError
	switch {
	case errors.As(err, &malformed):
		pr.Reason = malformed.Reason
	case errors.As(err, &tz):
		pr.Reason = ReasonTimezone
	default:
		pr.Reason = ReasonUnparseable
	}
	return pr
}
