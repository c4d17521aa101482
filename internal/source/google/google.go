// Package google fetches events from the Google Calendar v3 API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
	"calgrid/internal/source"
)

// MaxResultsLimit is the provider's per-page ceiling.
const MaxResultsLimit = 2500

// Options configures a Fetcher. Either APIKey (public calendars) or a
// service-account credentials file is required unless HTTPClient is set.
type Options struct {
	CalendarID        string
	APIKey            string
	CredentialsFile   string
	MaxResults        int
	RequestsPerSecond float64

	// HTTPClient replaces the authenticated transport entirely.
	HTTPClient *http.Client
}

// Fetcher lists the instances of one calendar.
type Fetcher struct {
	svc        *calendar.Service
	calendarID string
	maxResults int
	limiter    *rate.Limiter
}

var _ source.Fetcher = (*Fetcher)(nil)

// New validates opts and builds the API client. Missing settings yield a
// *source.ConfigError before any network traffic.
func New(ctx context.Context, opts Options) (*Fetcher, error) {
	if opts.CalendarID == "" {
		return nil, &source.ConfigError{Field: "google.calendar_id"}
	}

	var clientOpt option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpt = option.WithHTTPClient(opts.HTTPClient)
	case opts.CredentialsFile != "":
		ts, err := serviceAccountTokenSource(ctx, opts.CredentialsFile)
		if err != nil {
			return nil, err
		}
		clientOpt = option.WithTokenSource(ts)
	case opts.APIKey != "":
		clientOpt = option.WithAPIKey(opts.APIKey)
	default:
		return nil, &source.ConfigError{
			Field:  "google.api_key",
			Reason: "api_key or credentials_file is required",
		}
	}

	svc, err := calendar.NewService(ctx, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Fetcher{
		svc:        svc,
		calendarID: opts.CalendarID,
		maxResults: maxResults,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

func serviceAccountTokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &source.ConfigError{Field: "google.credentials_file", Reason: err.Error()}
	}
	cfg, err := oauthgoogle.JWTConfigFromJSON(data, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, &source.ConfigError{Field: "google.credentials_file", Reason: err.Error()}
	}
	return cfg.TokenSource(ctx), nil
}

// FetchEvents lists single instances ordered by start time, following page
// tokens until the window is exhausted or MaxResults events were read.
func (f *Fetcher) FetchEvents(ctx context.Context, q source.Query) ([]model.Event, error) {
	limit := q.MaxResults
	if limit <= 0 || limit > f.maxResults {
		limit = f.maxResults
	}

	call := f.svc.Events.List(f.calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(limit))
	if !q.TimeMin.IsZero() {
		call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
	}

	var (
		out   []model.Event
		pages int
		token string
	)
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &source.FetchError{Message: "waiting for rate limiter", Err: err}
		}
		if token != "" {
			call = call.PageToken(token)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, toFetchError(err)
		}
		pages++

		for _, item := range resp.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, toEvent(f.calendarID, item))
		}

		if resp.NextPageToken == "" || len(out) >= limit {
			break
		}
		token = resp.NextPageToken
	}

	if len(out) > limit {
		out = out[:limit]
	}

	appLog.Debug("google events fetched",
		"calendar_id", f.calendarID,
		"events", len(out),
		"pages", pages,
	)
	return out, nil
}

func toFetchError(err error) *source.FetchError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &source.FetchError{Status: gerr.Code, Message: msg, Err: err}
	}
	return &source.FetchError{Message: err.Error(), Err: err}
}

// toEvent maps the provider payload onto the canonical event.
func toEvent(calendarID string, ev *calendar.Event) model.Event {
	out := model.Event{
		ID:          ev.Id,
		SourceID:    calendarID,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       toBoundary(ev.Start),
		End:         toBoundary(ev.End),
	}
	for _, a := range ev.Attendees {
		if a == nil {
			continue
		}
		out.Attendees = append(out.Attendees, model.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return out
}

func toBoundary(edt *calendar.EventDateTime) model.Boundary {
	switch {
	case edt == nil:
		return model.Boundary{}
	case edt.DateTime != "":
		return model.InstantBoundary(edt.DateTime, edt.TimeZone)
	case edt.Date != "":
		return model.DateBoundary(edt.Date)
	default:
		return model.Boundary{}
	}
}
