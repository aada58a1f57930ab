// Package web serves the last built calendar and run status over HTTP.
// Handlers never trigger scraping; cmd/adecal pushes fresh results in
// after each run, so a slow or broken timetable server can never be
// amplified by calendar clients polling the feed.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"adecal/internal/config"
	appLog "adecal/internal/log"
	"adecal/internal/pipeline"
)

// Server provides the HTTP endpoints: the .ics feed, a status API and
// a health probe.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	// Last completed run, guarded for concurrent readers. A failed run
	// records its error but keeps the previous calendar being served.
	mu        sync.RWMutex
	last      *pipeline.Result
	lastErr   error
	lastErrAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
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

// SetResult records the outcome of a completed run and clears any
// previous error.
func (s *Server) SetResult(res *pipeline.Result) {
	s.mu.Lock()
	s.last = res
	s.lastErr = nil
	s.mu.Unlock()
}

// SetError records a failed run.
func (s *Server) SetError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.mu.Unlock()
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP
// Basic Auth. The health probe stays open for container orchestrators.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="adecal", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/timetable.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the last built document. Before the first
// successful run there is nothing to serve and clients get a 503, so
// calendar apps retry instead of caching an empty feed.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		http.Error(w, "no calendar built yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="timetable.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(last.Calendar))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	TookMs      int64     `json:"took_ms"`
	Weeks       int       `json:"weeks"`
	Days        int       `json:"days"`
	Events      int       `json:"events"`
	Warnings    []string  `json:"warnings"`

	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.last
	lastErr := s.lastErr
	lastErrAt := s.lastErrAt
	s.mu.RUnlock()

	resp := statusResponse{Warnings: []string{}}
	if last != nil {
		resp.GeneratedAt = last.GeneratedAt
		resp.TookMs = last.Took.Milliseconds()
		resp.Weeks = last.Weeks
		resp.Days = last.Days
		resp.Events = last.Events
		for _, werr := range last.Warnings {
			resp.Warnings = append(resp.Warnings, werr.Error())
		}
	}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
		resp.LastErrorAt = &lastErrAt
	}

	writeJSON(w, http.StatusOK, resp)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>adecal</title></head>
<body>
<h1>adecal</h1>
<ul>
<li><a href="/timetable.ics">timetable.ics</a></li>
<li><a href="/api/status">status</a></li>
</ul>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// The catch-all pattern also receives unknown paths.
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
