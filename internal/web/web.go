// Package web serves daygrid's HTTP surface: the day-layout JSON API, a
// server-rendered day view used for preview capture, raw occurrence
// queries, health, and Prometheus metrics.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daygrid/internal/config"
	"daygrid/internal/ics"
	"daygrid/internal/layout"
	appLog "daygrid/internal/log"
	"daygrid/internal/model"
	"daygrid/internal/store"
)

//go:embed templates/day.html
var templateFS embed.FS

var dayTemplate = template.Must(
	template.New("day.html").Funcs(template.FuncMap{"label": eventLabel}).ParseFS(templateFS, "templates/day.html"),
)

// Server wires the event store and layout engine to HTTP handlers.
type Server struct {
	mux *http.ServeMux

	cfgMu sync.RWMutex
	cfg   *config.Config

	store *store.Store

	// Last /api/day response, keyed by store version + request params.
	// Store mutations bump the version, so a stale entry can never be
	// served; the subscription below just frees it eagerly.
	dayMu    sync.Mutex
	dayCache *dayCacheEntry
}

type dayCacheKey struct {
	version uint64
	date    string
	canvas  layout.Canvas
	minDur  int
	rowH    float64
}

type dayCacheEntry struct {
	key  dayCacheKey
	resp dayResponse
}

// NewServer constructs a Server over the given store. It subscribes to
// store changes to drop the day cache on mutation.
func NewServer(cfg *config.Config, st *store.Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		mux:   http.NewServeMux(),
	}
	st.Subscribe(func(store.Change) {
		s.dayMu.Lock()
		s.dayCache = nil
		s.dayMu.Unlock()
	})
	s.registerRoutes()
	return s
}

// SetConfig swaps the active config; the config watcher calls this on
// hot reload.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Handler returns the fully middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	return s.basicAuthMiddleware(s.mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config().Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/day", s.handleDay)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/day", s.handleDayView)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// basicAuthMiddleware guards everything except /health and /metrics when
// credentials are configured.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()
		if cfg.BasicAuth == nil || cfg.BasicAuth.Username == "" || cfg.BasicAuth.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, cfg.BasicAuth.Username) || !secureCompare(p, cfg.BasicAuth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="daygrid", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// positionedDTO is the JSON view of one laid-out rectangle.
type positionedDTO struct {
	Payload any     `json:"payload"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Top     float64 `json:"top"`
	Bottom  float64 `json:"bottom"`
	Start   int     `json:"start_minute"`
	End     int     `json:"end_minute"`
	Column  int     `json:"column"`
	Columns int     `json:"columns"`
}

// dayResponse is the JSON response shape for /api/day.
type dayResponse struct {
	Date    string          `json:"date"`
	Width   float64         `json:"width"`
	Height  float64         `json:"height"`
	Timed   []positionedDTO `json:"timed"`
	FullDay []positionedDTO `json:"full_day"`
}

// handleDay runs the layout engine over one day's events.
//
// GET /api/day?date=YYYY-MM-DD&width=&height=&ppm=&min=
//
// Missing parameters fall back to the configured canvas; a missing date
// means today in the display timezone.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	loc := resolveLocationOrLocal(cfg.Timezone)

	day, err := parseDateParam(r.URL.Query().Get("date"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; want YYYY-MM-DD")
		return
	}

	q := r.URL.Query()
	canvas := layout.Canvas{
		Width:           parseFloatDefault(q.Get("width"), cfg.Canvas.Width),
		Height:          parseFloatDefault(q.Get("height"), cfg.Canvas.Height),
		PixelsPerMinute: parseFloatDefault(q.Get("ppm"), cfg.Canvas.PixelsPerMinute),
	}
	minDur := parseIntDefault(q.Get("min"), cfg.Canvas.MinimumDurationMinutes)

	resp := s.dayLayout(day, canvas, minDur, cfg.Canvas.FullDayRowHeight)
	writeJSON(w, http.StatusOK, resp)
}

// dayLayout computes (or serves from cache) the full layout for one day.
func (s *Server) dayLayout(day time.Time, canvas layout.Canvas, minDur int, rowHeight float64) dayResponse {
	key := dayCacheKey{
		version: s.store.Version(),
		date:    model.DayKey(day),
		canvas:  canvas,
		minDur:  minDur,
		rowH:    rowHeight,
	}

	s.dayMu.Lock()
	if c := s.dayCache; c != nil && c.key == key {
		resp := c.resp
		s.dayMu.Unlock()
		return resp
	}
	s.dayMu.Unlock()

	events := s.store.EventsForDay(day)

	timed := make([]model.Event, 0, len(events))
	fullWidth := make([]model.Event, 0)
	for _, ev := range events {
		if ev.AllDay || ev.MultiDay() {
			fullWidth = append(fullWidth, ev)
			continue
		}
		timed = append(timed, ev)
	}

	resp := dayResponse{
		Date:    key.date,
		Width:   canvas.Width,
		Height:  canvas.Height,
		Timed:   toDTOs(layout.Arrange(timed, canvas, minDur)),
		FullDay: toDTOs(layout.StackFullWidth(fullWidth, canvas, rowHeight)),
	}

	s.dayMu.Lock()
	s.dayCache = &dayCacheEntry{key: key, resp: resp}
	s.dayMu.Unlock()
	return resp
}

func toDTOs(positioned []layout.Positioned) []positionedDTO {
	out := make([]positionedDTO, 0, len(positioned))
	for _, p := range positioned {
		out = append(out, positionedDTO{
			Payload: p.Event.Payload,
			Left:    p.Left,
			Right:   p.Right,
			Top:     p.Top,
			Bottom:  p.Bottom,
			Start:   p.Start,
			End:     p.End,
			Column:  p.Column,
			Columns: p.Columns,
		})
	}
	return out
}

// eventDTO is the JSON view of a raw stored event.
type eventDTO struct {
	ID      string  `json:"id"`
	Payload any     `json:"payload"`
	Date    string  `json:"date"`
	EndDate *string `json:"end_date,omitempty"`
	Start   *int    `json:"start_minute,omitempty"`
	End     *int    `json:"end_minute,omitempty"`
	AllDay  bool    `json:"all_day"`
}

// handleEvents returns the raw stored events for a day.
//
// GET /api/events?date=YYYY-MM-DD
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	loc := resolveLocationOrLocal(cfg.Timezone)

	day, err := parseDateParam(r.URL.Query().Get("date"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; want YYYY-MM-DD")
		return
	}

	events := s.store.EventsForDay(day)
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		d := eventDTO{
			ID:      ev.ID,
			Payload: ev.Payload,
			Date:    model.DayKey(ev.Date),
			Start:   ev.Start,
			End:     ev.End,
			AllDay:  ev.AllDay,
		}
		if ev.EndDate != nil {
			key := model.DayKey(*ev.EndDate)
			d.EndDate = &key
		}
		dtos = append(dtos, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   model.DayKey(day),
		"events": dtos,
	})
}

// hourMark positions an hour gridline on the rendered day view.
type hourMark struct {
	Top   float64
	Label string
}

// dayViewData feeds the embedded day.html template.
type dayViewData struct {
	Date      string
	Width     float64
	Height    float64
	RowHeight float64
	Timed     []positionedDTO
	FullDay   []positionedDTO
	HourMarks []hourMark
}

// handleDayView renders the day as HTML with absolutely positioned
// rectangles, straight from engine output. The capture pipeline
// screenshots this page; it signals readiness via data-ready="true".
func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	loc := resolveLocationOrLocal(cfg.Timezone)

	day, err := parseDateParam(r.URL.Query().Get("date"), loc)
	if err != nil {
		http.Error(w, "invalid date; want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	canvas := layout.Canvas{
		Width:           cfg.Canvas.Width,
		Height:          cfg.Canvas.Height,
		PixelsPerMinute: cfg.Canvas.PixelsPerMinute,
	}
	resp := s.dayLayout(day, canvas, cfg.Canvas.MinimumDurationMinutes, cfg.Canvas.FullDayRowHeight)

	marks := make([]hourMark, 0, 24)
	for h := 0; h < 24; h++ {
		marks = append(marks, hourMark{
			Top:   float64(h*60) * canvas.PixelsPerMinute,
			Label: fmt.Sprintf("%02d:00", h),
		})
	}

	data := dayViewData{
		Date:      resp.Date,
		Width:     canvas.Width,
		Height:    canvas.Height,
		RowHeight: cfg.Canvas.FullDayRowHeight,
		Timed:     resp.Timed,
		FullDay:   resp.FullDay,
		HourMarks: marks,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dayTemplate.Execute(w, data); err != nil {
		appLog.Error("day view render failed", err, "date", resp.Date)
	}
}

// eventLabel extracts a display label from an opaque payload.
func eventLabel(p any) string {
	switch v := p.(type) {
	case ics.Detail:
		if v.Summary != "" {
			return v.Summary
		}
		return v.UID
	case string:
		return v
	default:
		return fmt.Sprint(p)
	}
}

func parseDateParam(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation("2006-01-02", v, loc)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
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
