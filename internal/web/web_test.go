package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/config"
	"calgrid/internal/layout"
	"calgrid/internal/metrics"
	"calgrid/internal/model"
	"calgrid/internal/source"
	"calgrid/internal/web"
)

type fakeFetcher struct {
	mu      sync.Mutex
	events  []model.Event
	err     error
	calls   int
	queries []source.Query
}

func (f *fakeFetcher) FetchEvents(_ context.Context, q source.Query) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	srv     *web.Server
	fetcher *fakeFetcher
	cfg     *config.Config
}

// Wednesday June 12 2024, 14:30 in New York.
var fixedNow = time.Date(2024, 6, 12, 18, 30, 0, 0, time.UTC)

func newTestEnv(t *testing.T, edit func(cfg *config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.PreviewPath = filepath.Join(t.TempDir(), "preview.png")
	if edit != nil {
		edit(cfg)
	}
	loc, err := cfg.Location()
	require.NoError(t, err)

	f := &fakeFetcher{}
	srv, err := web.NewServer(web.Options{
		Config:     cfg,
		Fetcher:    f,
		Pipeline:   layout.NewPipeline(layout.Options{Location: loc, MaxVisiblePerDay: cfg.MaxVisiblePerDay}, nil),
		SourceKind: "google",
		Metrics:    metrics.New(),
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &testEnv{srv: srv, fetcher: f, cfg: cfg}
}

func (e *testEnv) do(method, target string, edit func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if edit != nil {
		edit(req)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeCalendar(t *testing.T, w *httptest.ResponseRecorder) web.CalendarResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp web.CalendarResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func timedEvent(id, title, start, end string) model.Event {
	return model.Event{
		ID:    id,
		Title: title,
		Start: model.InstantBoundary(start, ""),
		End:   model.InstantBoundary(end, ""),
	}
}

func allDayEvent(id, start, end string) model.Event {
	return model.Event{ID: id, Title: id, Start: model.DateBoundary(start), End: model.DateBoundary(end)}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := web.NewServer(web.Options{})
	assert.Error(t, err)

	_, err = web.NewServer(web.Options{Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	w := env.do(http.MethodGet, "/api/calendar", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, env.fetcher.callCount())

	w = env.do(http.MethodGet, "/api/calendar", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/calendar", func(r *http.Request) { r.SetBasicAuth("admin", "secret") })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCalendarJSON_Week(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.events = []model.Event{
		timedEvent("a", "Review", "2024-06-12T13:00:00Z", "2024-06-12T14:00:00Z"),
		timedEvent("b", "", "2024-06-12T13:30:00Z", "2024-06-12T14:30:00Z"),
		allDayEvent("trip", "2024-06-14", "2024-06-18"),
		{ID: "broken", Start: model.InstantBoundary("soon", "")},
	}

	resp := decodeCalendar(t, env.do(http.MethodGet, "/api/calendar?view=week&date=2024-06-12", nil))

	assert.Equal(t, web.ViewWeek, resp.View)
	assert.Equal(t, "America/New_York", resp.DisplayTimezone)
	assert.NotEmpty(t, resp.PassID)
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2024-06-09", resp.Days[0].Date)
	assert.Equal(t, "Sunday", resp.Days[0].Weekday)
	assert.True(t, resp.Days[3].IsToday)

	wed := resp.Days[3]
	require.Len(t, wed.TimedSlots, 2)
	assert.Equal(t, "Review", wed.TimedSlots[0].Title)
	assert.Equal(t, "9:00am", wed.TimedSlots[0].StartLabel)
	assert.Equal(t, 9*60, wed.TimedSlots[0].TopOffsetMinutes)
	assert.Equal(t, 2, wed.TimedSlots[0].ColumnCount)
	assert.Equal(t, 1, wed.TimedSlots[1].Column)
	assert.Equal(t, model.UntitledPlaceholder, wed.TimedSlots[1].Title)

	fri, sat := resp.Days[5], resp.Days[6]
	require.Len(t, fri.AllDayOrMultiDay, 1)
	assert.False(t, fri.AllDayOrMultiDay[0].ContinuesBefore)
	require.Len(t, sat.AllDayOrMultiDay, 1)
	assert.True(t, sat.AllDayOrMultiDay[0].ContinuesAfter)

	require.NotNil(t, resp.Now)
	assert.Equal(t, 3, resp.Now.DayIndex)
	assert.Equal(t, 14*60+30, resp.Now.Minutes)

	require.Len(t, resp.Problems, 1)
	assert.Equal(t, "broken", resp.Problems[0].EventID)
	assert.True(t, resp.Problems[0].Excluded)

	require.Len(t, env.fetcher.queries, 1)
	q := env.fetcher.queries[0]
	assert.Equal(t, "2024-06-09T00:00:00-04:00", q.TimeMin.Format(time.RFC3339))
	assert.Equal(t, "2024-06-16T00:00:00-04:00", q.TimeMax.Format(time.RFC3339))
	assert.Equal(t, 2500, q.MaxResults)
}

func TestCalendarJSON_MonthTruncates(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.WeekStartsOn = "monday" })
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		env.fetcher.events = append(env.fetcher.events, allDayEvent(id, "2024-06-20", "2024-06-21"))
	}

	resp := decodeCalendar(t, env.do(http.MethodGet, "/api/calendar?view=month&date=2024-06-03", nil))

	assert.Equal(t, web.ViewMonth, resp.View)
	require.Len(t, resp.Days, 35)
	assert.Equal(t, "2024-05-27", resp.Days[0].Date)
	assert.False(t, resp.Days[0].IsInFocusedPeriod)

	var jun20 web.DayDTO
	for _, d := range resp.Days {
		if d.Date == "2024-06-20" {
			jun20 = d
		}
	}
	assert.Equal(t, 2, jun20.MoreCount)
	assert.Len(t, jun20.Visible, 3)
	assert.Len(t, jun20.FullList, 5)
	assert.Empty(t, jun20.Visible[0].StartLabel)
}

func TestCalendarJSON_DefaultsToToday(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := decodeCalendar(t, env.do(http.MethodGet, "/api/calendar", nil))
	assert.Equal(t, web.ViewWeek, resp.View)
	assert.Equal(t, "2024-06-09", resp.Days[0].Date)
}

func TestCalendarJSON_BadRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/api/calendar?view=year",
		"/api/calendar?date=06/12/2024",
	} {
		w := env.do(http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	assert.Equal(t, 0, env.fetcher.callCount())
}

func TestCalendarJSON_SourceErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      int
		retryable bool
	}{
		{"provider unavailable", &source.FetchError{Status: 503, Message: "backend error"}, http.StatusBadGateway, true},
		{"provider forbidden", &source.FetchError{Status: 403, Message: "forbidden"}, http.StatusBadGateway, false},
		{"misconfigured", &source.ConfigError{Field: "google.calendar_id"}, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.fetcher.err = tt.err

			w := env.do(http.MethodGet, "/api/calendar?date=2024-06-12", nil)
			require.Equal(t, tt.code, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.err.Error())
			if tt.code == http.StatusBadGateway {
				assert.Equal(t, tt.retryable, body["retryable"])
			}
		})
	}
}

func TestEventsCacheAndRefresh(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(http.MethodGet, "/api/calendar?date=2024-06-12", nil)
	env.do(http.MethodGet, "/api/calendar?date=2024-06-13", nil) // same week
	assert.Equal(t, 1, env.fetcher.callCount())

	env.do(http.MethodGet, "/api/calendar?date=2024-06-20", nil)
	assert.Equal(t, 2, env.fetcher.callCount())

	w := env.do(http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	env.do(http.MethodGet, "/api/calendar?date=2024-06-12", nil)
	assert.Equal(t, 3, env.fetcher.callCount())
}

func TestCalendarPage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.events = []model.Event{
		timedEvent("a", "Design review", "2024-06-12T13:00:00Z", "2024-06-12T14:00:00Z"),
	}

	w := env.do(http.MethodGet, "/calendar?date=2024-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Design review")
	assert.Contains(t, body, "Jun 9 - Jun 15, 2024")
	assert.Contains(t, body, `class="now"`)
	assert.Contains(t, body, "top: 504px") // 9:00 at 56px per hour

	for i := 2; i <= 5; i++ {
		env.fetcher.events = append(env.fetcher.events, allDayEvent("x"+strconv.Itoa(i), "2024-06-20", "2024-06-21"))
	}
	env.srv.Purge()
	w = env.do(http.MethodGet, "/calendar?view=month&date=2024-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "June 2024")
	assert.Contains(t, w.Body.String(), "+1 more")
}

func TestCalendarPage_FetchError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.err = &source.FetchError{Status: 500, Message: "boom"}

	w := env.do(http.MethodGet, "/calendar", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), `data-ready="true"`)
	assert.Contains(t, w.Body.String(), "boom")
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(env.cfg.PreviewPath, png, 0o644))
	w = env.do(http.MethodGet, "/preview.png", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, png, w.Body.Bytes())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/api/calendar?date=2024-06-12", nil)

	w := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "calgrid_render_passes_total 1")
	assert.Contains(t, w.Body.String(), `calgrid_source_fetches_total{outcome="ok",source="google"} 1`)
}

func TestParseView(t *testing.T) {
	v, err := web.ParseView("")
	require.NoError(t, err)
	assert.Equal(t, web.ViewWeek, v)

	v, err = web.ParseView(" Month ")
	require.NoError(t, err)
	assert.Equal(t, web.ViewMonth, v)

	_, err = web.ParseView("day")
	assert.Error(t, err)
}
