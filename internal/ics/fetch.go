package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "termcal/internal/log"
)

// Source is a single ICS timetable source.
type Source struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// URL is an http(s) endpoint or a local file path.
	URL string
}

// IsRemote reports whether the source has to be fetched over HTTP.
func (s Source) IsRemote() bool {
	return strings.HasPrefix(s.URL, "http://") || strings.HasPrefix(s.URL, "https://")
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // true if the cached body was reused
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher reads ICS sources. Remote sources are fetched with conditional
// requests (ETag / Last-Modified) backed by a disk cache; local paths are
// read directly.
type Fetcher struct {
	client *http.Client
	cache  diskCache
}

// NewFetcher creates a Fetcher caching under cacheDir, one subdirectory per
// URL.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: diskCache{dir: cacheDir},
	}
}

// FetchAll fetches all sources. Failures are logged and collected; the
// results only contain sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne reads a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	if !src.IsRemote() {
		body, err := os.ReadFile(src.URL)
		if err != nil {
			return FetchResult{}, fmt.Errorf("ics: read %s: %w", src.URL, err)
		}
		return FetchResult{Source: src, Body: body}, nil
	}
	return f.fetchRemote(ctx, src)
}

// LoadSource reads src and parses it into events. A nil fetcher is
// replaced by one caching under the default directory.
func LoadSource(ctx context.Context, f *Fetcher, src Source, loc *time.Location) ([]ParsedEvent, error) {
	if f == nil {
		f = NewFetcher("")
	}
	res, err := f.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}
	return ParseICS(src, res.Body, loc)
}

func (f *Fetcher) fetchRemote(ctx context.Context, src Source) (FetchResult, error) {
	entry, cachedBody := f.cache.load(src.URL)
	cached := FetchResult{Source: src, Body: cachedBody, FromCache: true}
	hasCache := len(cachedBody) > 0

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	entry.conditional(req)

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL), "cached", hasCache)

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			appLog.Warn("ics fetch failed, serving cached body", "id", src.ID, "url", redactURL(src.URL), "err", err)
			return cached, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		fresh := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.cache.store(fresh, body); err != nil {
			// The fresh body is still good.
			appLog.Error("ics cache store failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetched", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case resp.StatusCode == http.StatusNotModified && hasCache:
		appLog.Debug("ics not modified", "id", src.ID, "url", redactURL(src.URL))
		return cached, nil

	case resp.StatusCode == http.StatusNotModified:
		return FetchResult{}, errors.New("ics: 304 Not Modified without a cached body")

	case hasCache:
		appLog.Warn("ics fetch non-OK, serving cached body", "id", src.ID, "url", redactURL(src.URL), "status", resp.Status)
		return cached, nil

	default:
		return FetchResult{}, fmt.Errorf("ics: GET %s: %s", redactURL(src.URL), resp.Status)
	}
}

// conditional adds validators from a previous response to req.
func (e cacheEntry) conditional(req *http.Request) {
	if e.ETag != "" {
		req.Header.Set("If-None-Match", e.ETag)
	}
	if e.LastModified != "" {
		req.Header.Set("If-Modified-Since", e.LastModified)
	}
}

// diskCache keeps the last good body of each feed URL together with its
// validators, one directory per URL.
type diskCache struct {
	dir string
}

func (c diskCache) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8]))
}

// load returns the cached validators and body for url. A missing or corrupt
// entry yields zero values.
func (c diskCache) load(url string) (cacheEntry, []byte) {
	dir := c.path(url)
	body, err := os.ReadFile(filepath.Join(dir, "body.ics"))
	if err != nil {
		return cacheEntry{}, nil
	}
	var entry cacheEntry
	if data, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
		if json.Unmarshal(data, &entry) != nil {
			entry = cacheEntry{}
		}
	}
	return entry, body
}

func (c diskCache) store(entry cacheEntry, body []byte) error {
	dir := c.path(entry.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never describes a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}

	entry.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL hides the path and query of a URL for logging, since timetable
// feeds often embed access tokens. Local paths are returned as-is.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/...(redacted)"
}
