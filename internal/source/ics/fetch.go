package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "calgrid/internal/log"
	"calgrid/internal/source"
)

// DefaultCacheDir is used when no cache directory is configured.
const DefaultCacheDir = "./var/ics-cache"

// cacheMeta holds HTTP validators for a cached feed body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// download is the result of fetching one feed.
type download struct {
	Body      []byte
	FromCache bool
}

// downloader fetches feeds with conditional requests and keeps the last good
// body on disk, so a flaky or unchanged feed still renders.
type downloader struct {
	client   *http.Client
	cacheDir string
}

func newDownloader(client *http.Client, cacheDir string) *downloader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	return &downloader{client: client, cacheDir: cacheDir}
}

// fetch returns the feed body. Network errors and non-OK statuses fall back
// to the cached body when there is one; otherwise they become a
// *source.FetchError.
func (d *downloader) fetch(ctx context.Context, feed Feed) (download, error) {
	dir := d.cachePath(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return download{}, fmt.Errorf("ics: cache dir: %w", err)
	}

	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return download{}, &source.FetchError{Message: "invalid feed url " + redactURL(feed.URL), Err: err}
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "feed", feed.ID, "url", redactURL(feed.URL))

	resp, err := d.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("ics fetch failed, using cached body", "feed", feed.ID, "url", redactURL(feed.URL), "err", err)
			return download{Body: cached, FromCache: true}, nil
		}
		return download{}, &source.FetchError{Message: "feed " + feed.ID + ": " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return download{}, &source.FetchError{Status: resp.StatusCode, Message: "feed " + feed.ID + ": read body", Err: err}
		}
		meta := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(dir, meta, body); err != nil {
			appLog.Error("ics cache save failed", err, "feed", feed.ID)
		}
		return download{Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return download{}, &source.FetchError{
				Status:  resp.StatusCode,
				Message: "feed " + feed.ID + ": not modified but nothing cached",
			}
		}
		appLog.Debug("ics feed not modified", "feed", feed.ID)
		return download{Body: cached, FromCache: true}, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("ics fetch non-OK, using cached body", "feed", feed.ID, "status", resp.StatusCode)
			return download{Body: cached, FromCache: true}, nil
		}
		return download{}, &source.FetchError{
			Status:  resp.StatusCode,
			Message: "feed " + feed.ID + ": " + resp.Status,
		}
	}
}

func (d *downloader) cachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(d.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; private feed URLs carry secrets in
// the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
