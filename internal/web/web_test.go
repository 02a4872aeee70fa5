package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcal/internal/config"
	"termcal/internal/ics"
	"termcal/internal/terms"
)

const lectureICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lec1\r\n" +
	"SUMMARY:Algorithms I\r\n" +
	"DTSTART:20141009T090000Z\r\n" +
	"DTEND:20141009T100000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	cal, err := terms.Default(time.UTC)
	require.NoError(t, err)
	return NewServer(cfg, cal, ics.NewFetcher(t.TempDir()))
}

func newLondonServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	cal, err := terms.Default(loc)
	require.NoError(t, err)
	return NewServer(cfg, cal, ics.NewFetcher(t.TempDir()))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.DefaultConfig())
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTerms(t *testing.T) {
	s := newTestServer(t, config.DefaultConfig())

	rec := get(t, s.Handler(), "/api/terms?year=2015")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp termsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Terms, 3)
	assert.Equal(t, "Mi", resp.Terms[0].Name)
	assert.Equal(t, "Ea", resp.Terms[2].Name)
	assert.Equal(t, time.Date(2015, 10, 8, 0, 0, 0, 0, time.UTC), resp.Terms[0].Start.UTC())

	rec = get(t, s.Handler(), "/api/terms")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Terms, len(s.cal.AllTerms()))

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/terms?year=abc").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/terms?year=1999").Code)
}

func TestRollover(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FromYear = 2014
	cfg.ToYear = 2015
	s := newTestServer(t, cfg)

	rec := get(t, s.Handler(), "/api/rollover?at=2014-10-09T09:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp rolloverResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2015-10-08T09:00:00Z", resp.Result)
	assert.Equal(t, 2014, resp.FromYear)

	rec = get(t, s.Handler(), "/api/rollover?at=2014-10-09T09:00:00Z&from=2014&to=2016")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2016, resp.ToYear)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing at", "/api/rollover?from=2014&to=2015", http.StatusBadRequest},
		{"bad at", "/api/rollover?at=yesterday", http.StatusBadRequest},
		{"bad year", "/api/rollover?at=2014-10-09T09:00:00Z&from=x", http.StatusBadRequest},
		{"unknown year", "/api/rollover?at=2014-10-09T09:00:00Z&from=2014&to=1999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, s.Handler(), tt.target).Code)
		})
	}
}

func TestRolloverUsesCalendarZone(t *testing.T) {
	s := newLondonServer(t, config.DefaultConfig())

	for _, at := range []string{"2015-10-29T09:00:00Z", "2015-10-29T10:00:00%2B01:00"} {
		rec := get(t, s.Handler(), "/api/rollover?from=2015&to=2016&at="+at)
		require.Equal(t, http.StatusOK, rec.Code, at)

		var resp rolloverResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "2016-10-27T09:00:00+01:00", resp.Result, at)
		assert.Equal(t, "2015-10-29T09:00:00Z", resp.Source, at)
	}
}

func TestRolloverWithoutDefaultYears(t *testing.T) {
	s := newTestServer(t, config.DefaultConfig())
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/api/rollover?at=2014-10-09T09:00:00Z").Code)
}

func TestPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.ics")
	require.NoError(t, os.WriteFile(path, []byte(lectureICS), 0o600))

	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{{ID: "cs", URL: path}}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/api/patterns").Code)

	require.NoError(t, s.Refresh(context.Background()))

	rec := get(t, s.Handler(), "/api/patterns")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp patternsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Series, 1)
	assert.Equal(t, "algorithms-i", resp.Series[0].ID)
	assert.Equal(t, 4, resp.Series[0].Count)
	assert.Equal(t, []string{"Mi1-4 Th 9"}, resp.Series[0].Patterns)
	assert.Empty(t, resp.Errors)
}

func TestRefreshReportsFailedSources(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{{ID: "gone", URL: filepath.Join(t.TempDir(), "gone.ics")}}
	s := newTestServer(t, cfg)

	require.Error(t, s.Refresh(context.Background()))

	rec := get(t, s.Handler(), "/api/patterns")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp patternsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Series)
	assert.NotEmpty(t, resp.Errors)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s := newTestServer(t, cfg)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/terms")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Basic"))

	req := httptest.NewRequest(http.MethodGet, "/api/terms", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/terms", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBasicAuthDisabledWithEmptyPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin"}
	s := newTestServer(t, cfg)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/terms").Code)
}
