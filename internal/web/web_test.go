package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"daygrid/internal/config"
	"daygrid/internal/log"
	"daygrid/internal/model"
	"daygrid/internal/store"
)

func init() {
	log.SetOutput(io.Discard)
}

var testDay = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func testServer(t *testing.T, cfg *config.Config) (*Server, *store.Store) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Timezone = "UTC"
		cfg.Canvas.Width = 300
		cfg.Canvas.Height = 1440
		cfg.Canvas.PixelsPerMinute = 1
		cfg.Canvas.MinimumDurationMinutes = 30
	}
	st := store.New()
	return NewServer(cfg, st), st
}

func seedDay(st *store.Store) {
	st.Add(model.Event{
		Payload: "meeting A", Date: testDay,
		Start: model.Minutes(540), End: model.Minutes(600),
	})
	st.Add(model.Event{
		Payload: "meeting B", Date: testDay,
		Start: model.Minutes(570), End: model.Minutes(630),
	})
	st.Add(model.Event{Payload: "holiday", Date: testDay, AllDay: true})
	st.Add(model.Event{Payload: "broken", Date: testDay, Start: model.Minutes(700)})
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestHandleDay(t *testing.T) {
	srv, st := testServer(t, nil)
	seedDay(st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/day?date=2026-08-30", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp dayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Date != "2026-08-30" {
		t.Errorf("date = %s, want 2026-08-30", resp.Date)
	}
	// Two overlapping timed events; the malformed one is dropped.
	if len(resp.Timed) != 2 {
		t.Fatalf("timed events = %d, want 2", len(resp.Timed))
	}
	if len(resp.FullDay) != 1 {
		t.Fatalf("full-day events = %d, want 1", len(resp.FullDay))
	}

	for _, p := range resp.Timed {
		if p.Columns != 2 {
			t.Errorf("columns = %d, want 2", p.Columns)
		}
		if got := p.Left + p.Right + resp.Width/float64(p.Columns); got != resp.Width {
			t.Errorf("left+right+slot = %v, want %v", got, resp.Width)
		}
	}
}

func TestHandleDayBadDate(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/day?date=nonsense", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDayCacheInvalidatedByMutation(t *testing.T) {
	srv, st := testServer(t, nil)
	seedDay(st)

	get := func() dayResponse {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/day?date=2026-08-30", nil))
		var resp dayResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	before := get()
	st.Add(model.Event{
		Payload: "late addition", Date: testDay,
		Start: model.Minutes(900), End: model.Minutes(960),
	})
	after := get()

	if len(after.Timed) != len(before.Timed)+1 {
		t.Errorf("timed after mutation = %d, want %d", len(after.Timed), len(before.Timed)+1)
	}
}

func TestHandleEvents(t *testing.T) {
	srv, st := testServer(t, nil)
	seedDay(st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date=2026-08-30", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Date   string     `json:"date"`
		Events []eventDTO `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 4 {
		t.Errorf("events = %d, want all 4 raw events", len(resp.Events))
	}
}

func TestHandleDayView(t *testing.T) {
	srv, st := testServer(t, nil)
	seedDay(st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/day?date=2026-08-30", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data-ready="true"`) {
		t.Error("day view missing data-ready marker")
	}
	if !strings.Contains(body, "meeting A") || !strings.Contains(body, "holiday") {
		t.Error("day view missing event labels")
	}
	// A template error mid-execution truncates the body after the ready
	// marker; a complete document proves every row rendered.
	if !strings.Contains(body, "</html>") {
		t.Error("day view truncated")
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "user", Password: "secret"}
	srv, _ := testServer(t, cfg)

	// API requires credentials.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/day", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /api/day status = %d, want 401", rec.Code)
	}

	// /health stays open.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unauthenticated /health status = %d, want 200", rec.Code)
	}

	// Correct credentials pass.
	req := httptest.NewRequest(http.MethodGet, "/api/day?date=2026-08-30", nil)
	req.SetBasicAuth("user", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated /api/day status = %d, want 200", rec.Code)
	}
}
