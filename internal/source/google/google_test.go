package google_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/model"
	"calgrid/internal/source"
	"calgrid/internal/source/google"
)

type rewriteTransport struct {
	Transport http.RoundTripper
	Host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.Host
	return t.Transport.RoundTrip(req)
}

func newFetcher(t *testing.T, h http.HandlerFunc) *google.Fetcher {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	client := ts.Client()
	client.Transport = &rewriteTransport{
		Transport: client.Transport,
		Host:      strings.TrimPrefix(ts.URL, "http://"),
	}

	f, err := google.New(context.Background(), google.Options{
		CalendarID: "team@example.com",
		MaxResults: 50,
		HTTPClient: client,
	})
	require.NoError(t, err)
	return f
}

const listPath = "/calendar/v3/calendars/team@example.com/events"

func TestFetchEvents_MapsProviderShapes(t *testing.T) {
	var query map[string]string
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != listPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{
					"id": "allday",
					"summary": "Offsite",
					"start": {"date": "2024-03-01"},
					"end": {"date": "2024-03-03"}
				},
				{
					"id": "timed",
					"summary": "Standup",
					"location": "Room 4",
					"start": {"dateTime": "2024-03-01T09:00:00-05:00", "timeZone": "America/New_York"},
					"end": {"dateTime": "2024-03-01T09:15:00-05:00"},
					"attendees": [{"email": "a@example.com", "responseStatus": "accepted"}]
				},
				{
					"id": "gone",
					"status": "cancelled",
					"start": {"date": "2024-03-01"},
					"end": {"date": "2024-03-02"}
				},
				{"id": "bare"}
			]
		}`))
	})

	from := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	events, err := f.FetchEvents(context.Background(), source.Query{TimeMin: from, TimeMax: from.AddDate(0, 0, 7)})
	require.NoError(t, err)

	assert.Equal(t, "true", query["singleEvents"])
	assert.Equal(t, "startTime", query["orderBy"])
	assert.Equal(t, "50", query["maxResults"])
	assert.Equal(t, "2024-03-01T05:00:00Z", query["timeMin"])

	require.Len(t, events, 3)

	assert.Equal(t, model.DateBoundary("2024-03-01"), events[0].Start)
	assert.Equal(t, model.DateBoundary("2024-03-03"), events[0].End)
	assert.Equal(t, "team@example.com", events[0].SourceID)

	assert.Equal(t, model.InstantBoundary("2024-03-01T09:00:00-05:00", "America/New_York"), events[1].Start)
	assert.Equal(t, "Room 4", events[1].Location)
	require.Len(t, events[1].Attendees, 1)
	assert.Equal(t, "accepted", events[1].Attendees[0].ResponseStatus)

	assert.Equal(t, "bare", events[2].ID)
	assert.Equal(t, model.BoundaryMissing, events[2].Start.Kind)
	assert.Equal(t, model.UntitledPlaceholder, events[2].DisplayTitle())
}

func TestFetchEvents_FollowsPages(t *testing.T) {
	calls := 0
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken": "p2", "items": [{"id": "one", "start": {"date": "2024-03-01"}, "end": {"date": "2024-03-02"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items": [{"id": "two", "start": {"date": "2024-03-02"}, "end": {"date": "2024-03-03"}}]}`))
	})

	events, err := f.FetchEvents(context.Background(), source.Query{})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].ID)
	assert.Equal(t, "two", events[1].ID)
}

func TestFetchEvents_StopsAtMaxResults(t *testing.T) {
	calls := 0
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nextPageToken": "more", "items": [
			{"id": "a", "start": {"date": "2024-03-01"}, "end": {"date": "2024-03-02"}},
			{"id": "b", "start": {"date": "2024-03-01"}, "end": {"date": "2024-03-02"}}
		]}`))
	})

	events, err := f.FetchEvents(context.Background(), source.Query{MaxResults: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Len(t, events, 1)
}

func TestFetchEvents_ProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"code": ` + strconv.Itoa(tt.status) + `, "message": "nope"}}`))
			})

			_, err := f.FetchEvents(context.Background(), source.Query{})
			require.Error(t, err)

			fe, ok := source.AsFetchError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.retryable, fe.Retryable())
		})
	}
}

func TestFetchEvents_CancelledContext(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchEvents(ctx, source.Query{})

	fe, ok := source.AsFetchError(err)
	require.True(t, ok)
	assert.Zero(t, fe.Status)
	assert.True(t, fe.Retryable())
}

func TestNew_ConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := google.New(ctx, google.Options{APIKey: "k"})
	assert.True(t, source.IsConfigError(err))
	assert.Contains(t, err.Error(), "google.calendar_id")

	_, err = google.New(ctx, google.Options{CalendarID: "primary"})
	assert.True(t, source.IsConfigError(err))

	_, err = google.New(ctx, google.Options{CalendarID: "primary", CredentialsFile: "does-not-exist.json"})
	assert.True(t, source.IsConfigError(err))

	broken := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"broken":true}`), 0o600))
	_, err = google.New(ctx, google.Options{CalendarID: "primary", CredentialsFile: broken})
	assert.True(t, source.IsConfigError(err))

	f, err := google.New(ctx, google.Options{CalendarID: "primary", APIKey: "key"})
	require.NoError(t, err)
	assert.NotNil(t, f)
}
