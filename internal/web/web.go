package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"termcal/internal/config"
	"termcal/internal/ics"
	appLog "termcal/internal/log"
	"termcal/internal/rollover"
	"termcal/internal/terms"
	"termcal/internal/timetable"
)

// Server exposes the term table, the condensed timetable of the configured
// ICS sources, and timestamp rollover over HTTP.
type Server struct {
	cfg     *config.Config
	cal     *terms.Calendar
	roller  *rollover.Roller
	fetcher *ics.Fetcher
	mux     *http.ServeMux

	// Last timetable built from the ICS sources. Rebuilt by Refresh; the
	// handlers only ever read it.
	snapMu sync.RWMutex
	snap   *patternsResponse
}

// NewServer constructs a new Server. fetcher may be nil when no ICS
// sources are configured.
func NewServer(cfg *config.Config, cal *terms.Calendar, fetcher *ics.Fetcher) *Server {
	if fetcher == nil {
		fetcher = ics.NewFetcher("")
	}
	s := &Server{
		cfg:     cfg,
		cal:     cal,
		roller:  rollover.New(cal),
		fetcher: fetcher,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="termcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run refreshes the snapshot, schedules further refreshes on
// cfg.RefreshCron and serves HTTP on cfg.Listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.RefreshCron, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "refresh", s.cfg.RefreshCron)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/terms", s.handleTerms)
	s.mux.HandleFunc("/api/patterns", s.handlePatterns)
	s.mux.HandleFunc("/api/rollover", s.handleRollover)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// termDTO is a JSON-friendly view of a term.
type termDTO struct {
	Year  int       `json:"year"`
	Index int       `json:"index"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// termsResponse is the JSON response shape for /api/terms.
type termsResponse struct {
	Timezone string    `json:"timezone"`
	Terms    []termDTO `json:"terms"`
}

// handleTerms lists the term table.
//
// GET /api/terms?year=2015
//   - year: academic year to list; all years when omitted
func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	yearParam := r.URL.Query().Get("year")
	year := 0
	if yearParam != "" {
		y, err := strconv.Atoi(yearParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		if _, err := s.cal.TermsFor(y); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		year = y
	}

	resp := termsResponse{
		Timezone: s.cal.Location().String(),
		Terms:    []termDTO{},
	}
	for _, t := range s.cal.AllTerms() {
		if year != 0 && t.Year != year {
			continue
		}
		resp.Terms = append(resp.Terms, termDTO{
			Year:  t.Year,
			Index: t.Index,
			Name:  t.Name(),
			Start: t.Start,
			End:   t.End,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// patternsResponse is the JSON response shape for /api/patterns.
type patternsResponse struct {
	Series        []timetable.Series `json:"series"`
	TruncatedUIDs []string           `json:"truncated_uids,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// handlePatterns serves the last snapshot built by Refresh.
func (s *Server) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()

	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "timetable not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Refresh re-reads every configured ICS source and replaces the snapshot.
// Sources that fail are reported in the snapshot and the returned error,
// but do not prevent the others from being published.
func (s *Server) Refresh(ctx context.Context) error {
	expanded, collectErr := ics.Collect(ctx, s.fetcher, ics.SourcesFromConfig(s.cfg.ICS), ics.ExpandConfig{
		DisplayLocation:        s.cal.Location(),
		MaxOccurrencesPerEvent: s.cfg.MaxOccurrences,
	})

	series, err := timetable.Build(s.cal, expanded.Occurrences)
	if err != nil {
		return err
	}

	resp := patternsResponse{
		Series:        series,
		TruncatedUIDs: expanded.TruncatedEvents,
		UpdatedAt:     time.Now(),
	}
	if collectErr != nil {
		resp.Errors = []string{collectErr.Error()}
	}

	s.snapMu.Lock()
	s.snap = &resp
	s.snapMu.Unlock()

	appLog.Info("timetable refreshed", "series", len(series), "occurrences", len(expanded.Occurrences))
	return collectErr
}

// rolloverResponse is the JSON response shape for /api/rollover.
type rolloverResponse struct {
	Source   string `json:"source"`
	FromYear int    `json:"from"`
	ToYear   int    `json:"to"`
	Result   string `json:"result"`
}

// handleRollover moves a timestamp between academic years.
//
// GET /api/rollover?at=2015-10-08T09:00:00Z&from=2015&to=2016
//   - at:   RFC 3339 timestamp
//   - from: source academic year (default cfg.FromYear)
//   - to:   target academic year (default cfg.ToYear)
func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	at, err := time.Parse(time.RFC3339, q.Get("at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		return
	}
	// Clock times are copied in the calendar zone, not the offset given.
	at = at.In(s.cal.Location())
	from, err := parseIntDefault(q.Get("from"), s.cfg.FromYear)
	if err != nil || from == 0 {
		writeError(w, http.StatusBadRequest, "invalid from year")
		return
	}
	to, err := parseIntDefault(q.Get("to"), s.cfg.ToYear)
	if err != nil || to == 0 {
		writeError(w, http.StatusBadRequest, "invalid to year")
		return
	}

	result, err := s.roller.RollString(at, from, to)
	if err != nil {
		if errors.Is(err, terms.ErrUnknownYear) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		appLog.Error("api rollover failed", err, "at", at, "from", from, "to", to)
		writeError(w, http.StatusInternalServerError, "rollover failed")
		return
	}

	writeJSON(w, http.StatusOK, rolloverResponse{
		Source:   at.Format(time.RFC3339),
		FromYear: from,
		ToYear:   to,
		Result:   result,
	})
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
