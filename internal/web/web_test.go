package web_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adecal/internal/config"
	"adecal/internal/pipeline"
	"adecal/internal/web"
)

func newTestServer(cfg *config.Config) *web.Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return web.NewServer(cfg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Calendar:    "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		Events:      12,
		Days:        10,
		Weeks:       2,
		Warnings:    []error{errors.New("container 3: missing date label")},
		GeneratedAt: time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC),
		Took:        1500 * time.Millisecond,
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(nil).Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCalendar_BeforeFirstRun(t *testing.T) {
	h := newTestServer(nil).Handler()

	rec := get(t, h, "/timetable.ics")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCalendar_AfterRun(t *testing.T) {
	srv := newTestServer(nil)
	srv.SetResult(sampleResult())

	rec := get(t, srv.Handler(), "/timetable.ics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", rec.Body.String())
}

func TestCalendar_SurvivesLaterFailure(t *testing.T) {
	srv := newTestServer(nil)
	srv.SetResult(sampleResult())
	srv.SetError(errors.New("cas login: timeout"))

	rec := get(t, srv.Handler(), "/timetable.ics")
	assert.Equal(t, http.StatusOK, rec.Code, "a failed refresh keeps the last calendar")
}

func TestStatus(t *testing.T) {
	srv := newTestServer(nil)
	srv.SetResult(sampleResult())
	srv.SetError(errors.New("cas login: timeout"))

	rec := get(t, srv.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp struct {
		TookMs    int64    `json:"took_ms"`
		Weeks     int      `json:"weeks"`
		Days      int      `json:"days"`
		Events    int      `json:"events"`
		Warnings  []string `json:"warnings"`
		LastError string   `json:"last_error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1500), resp.TookMs)
	assert.Equal(t, 2, resp.Weeks)
	assert.Equal(t, 10, resp.Days)
	assert.Equal(t, 12, resp.Events)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "container 3: missing date label", resp.Warnings[0])
	assert.Equal(t, "cas login: timeout", resp.LastError)
}

func TestStatus_Empty(t *testing.T) {
	rec := get(t, newTestServer(nil).Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "last_error")
}

func TestIndex(t *testing.T) {
	h := newTestServer(nil).Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/timetable.ics")

	rec = get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "hunter2"}
	srv := newTestServer(cfg)
	srv.SetResult(sampleResult())
	h := srv.Handler()

	rec := get(t, h, "/timetable.ics")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/timetable.ics", nil)
	req.SetBasicAuth("ops", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/timetable.ics", nil)
	req.SetBasicAuth("ops", "hunter2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_HealthExempt(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "hunter2"}
	h := newTestServer(cfg).Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_DisabledWhenIncomplete(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops"}
	h := newTestServer(cfg).Handler()

	rec := get(t, h, "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code, "half-configured auth is treated as disabled")
}
