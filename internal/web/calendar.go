package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"calgrid/internal/layout"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/source"
)

// View selects the visible range.
type View string

const (
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// ParseView defaults to week when s is empty.
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewWeek:
		return ViewWeek, nil
	case ViewMonth:
		return ViewMonth, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// ParseDate reads YYYY-MM-DD as midnight in loc. An empty string means
// today.
func ParseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// CalendarResponse is the JSON shape of /api/calendar.
type CalendarResponse struct {
	PassID          string            `json:"pass_id"`
	View            View              `json:"view"`
	DisplayTimezone string            `json:"display_timezone"`
	WeekStartsOn    string            `json:"week_starts_on"`
	TimeFormat      string            `json:"time_format"`
	RangeStart      time.Time         `json:"range_start"`
	RangeEnd        time.Time         `json:"range_end"`
	Days            []DayDTO          `json:"days"`
	Problems        []layout.Problem  `json:"problems"`
	Now             *layout.NowMarker `json:"now,omitempty"`
}

// EventDTO is a flattened classified event with its display labels.
type EventDTO struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id,omitempty"`
	Title      string    `json:"title"`
	Location   string    `json:"location,omitempty"`
	AllDay     bool      `json:"all_day"`
	MultiDay   bool      `json:"multi_day"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	StartLabel string    `json:"start_label,omitempty"`
	EndLabel   string    `json:"end_label,omitempty"`
}

// SpanDTO is one all-day or multi-day bar segment.
type SpanDTO struct {
	EventDTO
	Lane            int  `json:"lane"`
	ContinuesBefore bool `json:"continues_before"`
	ContinuesAfter  bool `json:"continues_after"`
}

// SlotDTO is one timed event box.
type SlotDTO struct {
	EventDTO
	Column           int `json:"column"`
	ColumnCount      int `json:"column_count"`
	TopOffsetMinutes int `json:"top_offset_minutes"`
	DurationMinutes  int `json:"duration_minutes"`
}

// DayDTO is one grid cell.
type DayDTO struct {
	Date              string     `json:"date"`
	Day               int        `json:"day"`
	Weekday           string     `json:"weekday"`
	IsToday           bool       `json:"is_today"`
	IsInFocusedPeriod bool       `json:"is_in_focused_period"`
	AllDayOrMultiDay  []SpanDTO  `json:"all_day_or_multi_day"`
	TimedSlots        []SlotDTO  `json:"timed_slots"`
	Visible           []EventDTO `json:"visible"`
	MoreCount         int        `json:"more_count"`
	FullList          []EventDTO `json:"full_list"`
}

// Calendar fetches the window for view around anchor and runs one render
// pass over it.
func (s *Server) Calendar(ctx context.Context, view View, anchor time.Time) (*CalendarResponse, error) {
	loc := s.pipeline.Location()
	now := s.now()
	weekStart := layout.ParseWeekStart(s.cfg.WeekStartsOn)

	var days []layout.CalendarDay
	if view == ViewMonth {
		days = layout.MonthDays(anchor.In(loc), weekStart, now)
	} else {
		days = layout.WeekDays(anchor.In(loc), weekStart, now)
	}
	from, to := layout.Window(days)

	events, err := s.fetch(ctx, from, to)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	res := s.pipeline.Render(events, days, now)
	s.metrics.ObserveRender(res, time.Since(started))

	tf := layout.ParseTimeFormat(s.cfg.TimeFormat)
	resp := &CalendarResponse{
		PassID:          res.PassID,
		View:            view,
		DisplayTimezone: loc.String(),
		WeekStartsOn:    s.cfg.WeekStartsOn,
		TimeFormat:      string(tf),
		RangeStart:      from,
		RangeEnd:        to,
		Days:            make([]DayDTO, 0, len(res.Days)),
		Problems:        res.Problems,
		Now:             res.Now,
	}
	if resp.Problems == nil {
		resp.Problems = []layout.Problem{}
	}
	for _, d := range res.Days {
		resp.Days = append(resp.Days, newDayDTO(d, tf))
	}
	return resp, nil
}

// fetch returns the events of [from, to), from cache when possible.
func (s *Server) fetch(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	key := strconv.FormatInt(from.Unix(), 10) + "-" + strconv.FormatInt(to.Unix(), 10)
	if s.events != nil {
		if evs, ok := s.events.Get(key); ok {
			return evs, nil
		}
	}

	started := time.Now()
	evs, err := s.fetcher.FetchEvents(ctx, source.Query{
		TimeMin:    from,
		TimeMax:    to,
		MaxResults: s.cfg.Google.MaxResults,
	})
	s.metrics.ObserveFetch(s.sourceKind, time.Since(started), err)
	if err != nil {
		appLog.Error("fetch events failed", err,
			"source", s.sourceKind,
			"time_min", from.Format(time.RFC3339),
			"time_max", to.Format(time.RFC3339),
		)
		return nil, err
	}

	if s.events != nil {
		s.events.Add(key, evs)
	}
	return evs, nil
}

// calendarRequest reads view and date from the query string.
func (s *Server) calendarRequest(c *gin.Context) (View, time.Time, bool) {
	view, err := ParseView(c.Query("view"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", time.Time{}, false
	}
	anchor, err := ParseDate(c.Query("date"), s.pipeline.Location(), s.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", time.Time{}, false
	}
	return view, anchor, true
}

// handleCalendarJSON serves GET /api/calendar?view=week|month&date=YYYY-MM-DD.
func (s *Server) handleCalendarJSON(c *gin.Context) {
	view, anchor, ok := s.calendarRequest(c)
	if !ok {
		return
	}
	resp, err := s.Calendar(c.Request.Context(), view, anchor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func newEventDTO(ce layout.ClassifiedEvent, tf layout.TimeFormat) EventDTO {
	dto := EventDTO{
		ID:       ce.Event.ID,
		SourceID: ce.Event.SourceID,
		Title:    ce.Event.DisplayTitle(),
		Location: ce.Event.Location,
		AllDay:   ce.IsAllDay,
		MultiDay: ce.IsMultiDay,
		Start:    ce.Start,
		End:      ce.End,
	}
	if !ce.IsAllDay {
		dto.StartLabel = layout.FormatClock(ce.Start, tf)
		dto.EndLabel = layout.FormatClock(ce.End, tf)
	}
	return dto
}

func newDayDTO(m layout.DayRenderModel, tf layout.TimeFormat) DayDTO {
	d := DayDTO{
		Date:              m.Day.FullDate.Format("2006-01-02"),
		Day:               m.Day.Date,
		Weekday:           m.Day.Weekday.String(),
		IsToday:           m.Day.IsToday,
		IsInFocusedPeriod: m.Day.IsInFocusedPeriod,
		AllDayOrMultiDay:  make([]SpanDTO, 0, len(m.AllDayOrMultiDay)),
		TimedSlots:        make([]SlotDTO, 0, len(m.TimedSlots)),
		MoreCount:         m.MoreCount,
	}
	for _, sp := range m.AllDayOrMultiDay {
		d.AllDayOrMultiDay = append(d.AllDayOrMultiDay, SpanDTO{
			EventDTO:        newEventDTO(sp.Event, tf),
			Lane:            sp.Lane,
			ContinuesBefore: sp.ContinuesBefore,
			ContinuesAfter:  sp.ContinuesAfter,
		})
	}
	for _, sl := range m.TimedSlots {
		d.TimedSlots = append(d.TimedSlots, SlotDTO{
			EventDTO:         newEventDTO(sl.Event, tf),
			Column:           sl.Column,
			ColumnCount:      sl.ColumnCount,
			TopOffsetMinutes: sl.TopOffsetMinutes,
			DurationMinutes:  sl.DurationMinutes,
		})
	}
	d.Visible = eventDTOs(m.Visible(), tf)
	d.FullList = eventDTOs(m.FullList, tf)
	return d
}

func eventDTOs(in []layout.ClassifiedEvent, tf layout.TimeFormat) []EventDTO {
	out := make([]EventDTO, 0, len(in))
	for _, ce := range in {
		out = append(out, newEventDTO(ce, tf))
	}
	return out
}
