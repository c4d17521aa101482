package web

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"calgrid/internal/layout"
	"calgrid/internal/source"
)

const (
	// hourHeight is the pixel height of one hour row in the week grid.
	hourHeight = 56
	// laneHeight is the pixel height of one all-day lane.
	laneHeight = 22
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"minutesPx": func(minutes int) int { return minutes * hourHeight / 60 },
	"lanePx":    func(lane int) int { return lane * laneHeight },
	"leftPct": func(column, count int) float64 {
		if count <= 0 {
			return 0
		}
		return float64(column) * 100 / float64(count)
	},
	"widthPct": func(count int) float64 {
		if count <= 0 {
			return 100
		}
		return 100 / float64(count)
	},
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
}

type hourRow struct {
	Label string
	TopPx int
}

// pageData feeds templates/calendar.html.
type pageData struct {
	*CalendarResponse

	Title      string
	Error      string
	Week       bool
	Weeks      [][]DayDTO
	Hours      []hourRow
	LanesPx    int
	HourHeight int
	GridPx     int
	PrevDate   string
	NextDate   string
	Today      string
	ViewParam  string
}

// handleCalendarPage serves the server-rendered grid. The root element
// carries data-ready="true" once the page holds real data, which is what the
// snapshot capture waits for.
func (s *Server) handleCalendarPage(c *gin.Context) {
	view, anchor, ok := s.calendarRequest(c)
	if !ok {
		return
	}

	resp, err := s.Calendar(c.Request.Context(), view, anchor)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := source.AsFetchError(err); ok {
			status = http.StatusBadGateway
		}
		c.HTML(status, "calendar.html", pageData{Error: err.Error(), Title: "calgrid"})
		return
	}

	c.HTML(http.StatusOK, "calendar.html", newPageData(resp, view, anchor, s.now()))
}

func newPageData(resp *CalendarResponse, view View, anchor, now time.Time) pageData {
	tf := layout.TimeFormat(resp.TimeFormat)
	p := pageData{
		CalendarResponse: resp,
		Week:             view == ViewWeek,
		HourHeight:       hourHeight,
		GridPx:           24 * hourHeight,
		ViewParam:        string(view),
		Today:            now.In(anchor.Location()).Format("2006-01-02"),
	}

	if p.Week {
		last := resp.RangeEnd.AddDate(0, 0, -1)
		p.Title = resp.RangeStart.Format("Jan 2") + " - " + last.Format("Jan 2, 2006")
		p.PrevDate = anchor.AddDate(0, 0, -7).Format("2006-01-02")
		p.NextDate = anchor.AddDate(0, 0, 7).Format("2006-01-02")

		for h := 0; h < 24; h++ {
			p.Hours = append(p.Hours, hourRow{Label: layout.HourLabel(h, tf), TopPx: h * hourHeight})
		}
		lanes := 0
		for _, d := range resp.Days {
			for _, sp := range d.AllDayOrMultiDay {
				if sp.Lane+1 > lanes {
					lanes = sp.Lane + 1
				}
			}
		}
		p.LanesPx = lanes * laneHeight
		return p
	}

	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	p.Title = first.Format("January 2006")
	p.PrevDate = first.AddDate(0, -1, 0).Format("2006-01-02")
	p.NextDate = first.AddDate(0, 1, 0).Format("2006-01-02")
	for i := 0; i < len(resp.Days); i += 7 {
		end := i + 7
		if end > len(resp.Days) {
			end = len(resp.Days)
		}
		p.Weeks = append(p.Weeks, resp.Days[i:end])
	}
	return p
}
