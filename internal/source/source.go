// Package source defines how events enter the system. Every adapter turns its
// provider's payload into []model.Event immediately after fetching, so the
// layout pipeline only ever sees the canonical shape.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"calgrid/internal/model"
)

// Fetcher returns the events intersecting a query window, already expanded
// into single instances.
type Fetcher interface {
	FetchEvents(ctx context.Context, q Query) ([]model.Event, error)
}

// Query bounds a fetch. Zero TimeMin/TimeMax leave that side open; zero
// MaxResults uses the adapter's default.
type Query struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}

// FetchError is a transport or provider failure. Status is the HTTP status, or
// 0 when the request never got a response.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("source: fetch failed: %s", e.Message)
	}
	return fmt.Sprintf("source: fetch failed (%d): %s", e.Status, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may try again later: rate limiting,
// server errors and network failures.
func (e *FetchError) Retryable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// ConfigError reports a missing or invalid setting. It is returned before any
// request is attempted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("source: config %s is required", e.Field)
	}
	return fmt.Sprintf("source: config %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// AsFetchError extracts a FetchError from err.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
