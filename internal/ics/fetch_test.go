package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOneLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.ics")
	require.NoError(t, os.WriteFile(path, crlf(timetableICS), 0o600))

	f := NewFetcher(t.TempDir())
	res, err := f.FetchOne(context.Background(), Source{ID: "local", URL: path})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, crlf(timetableICS), res.Body)

	_, err = f.FetchOne(context.Background(), Source{ID: "missing", URL: filepath.Join(t.TempDir(), "nope.ics")})
	require.Error(t, err)
}

func TestFetchOneUsesETagCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(timetableICS))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "remote", URL: srv.URL + "/feed.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchAllCollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ok.ics")
	require.NoError(t, os.WriteFile(path, crlf(timetableICS), 0o600))

	f := NewFetcher(t.TempDir())
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "bad", URL: srv.URL + "/x.ics"},
		{ID: "ok", URL: path},
		{ID: "empty"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Source.ID)
	assert.Len(t, errs, 2)
}

func TestLoadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable.ics")
	require.NoError(t, os.WriteFile(path, crlf(timetableICS), 0o600))

	events, err := LoadSource(context.Background(), NewFetcher(t.TempDir()), Source{ID: "cs", URL: path}, london(t))
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ics")
	require.NoError(t, os.WriteFile(good, crlf(timetableICS), 0o600))

	sources := []Source{
		{ID: "good", URL: good},
		{ID: "missing", URL: filepath.Join(dir, "missing.ics")},
	}
	res, err := Collect(context.Background(), NewFetcher(t.TempDir()), sources, ExpandConfig{DisplayLocation: london(t)})
	require.Error(t, err)
	assert.Len(t, res.Occurrences, 4)
}
