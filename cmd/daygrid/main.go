package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"daygrid/internal/capture"
	"daygrid/internal/config"
	"daygrid/internal/ics"
	appLog "daygrid/internal/log"
	"daygrid/internal/model"
	"daygrid/internal/store"
	"daygrid/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	capturePNG bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("daygrid starting")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"canvas_width", conf.Canvas.Width,
		"canvas_height", conf.Canvas.Height,
		"min_duration", conf.Canvas.MinimumDurationMinutes,
		"ics_count", len(conf.ICS),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st := store.New()
	srv := web.NewServer(conf, st)

	// conf is shared between the cron refresh goroutine and the config
	// watcher callback.
	var confMu sync.Mutex
	currentConf := func() *config.Config {
		confMu.Lock()
		defer confMu.Unlock()
		return conf
	}

	// The server comes up first; the capture step screenshots /day over
	// HTTP, so it needs a live listener even in single-shot mode.
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Run(ctx)
	}()

	refresh := func() {
		c := currentConf()
		if err := refreshFeeds(ctx, c, st); err != nil {
			appLog.Error("feed refresh failed", err)
			return
		}
		if flags.capturePNG {
			if err := capturePreview(ctx, c); err != nil {
				appLog.Error("preview capture failed", err)
			}
		}
	}

	refresh()

	if flags.once {
		appLog.Info("single-shot run complete, exiting")
		cancel()
		<-srvErr
		return
	}

	// Hot-reload canvas/auth settings; cron schedule changes need a
	// restart since the entry is registered once below.
	stopWatch, err := config.Watch(flags.configPath, func(cfg *config.Config) {
		if flags.listen != "" {
			cfg.Listen = flags.listen
		}
		confMu.Lock()
		conf = cfg
		confMu.Unlock()
		srv.SetConfig(cfg)
	})
	if err != nil {
		appLog.Error("config watch unavailable", err, "config_path", flags.configPath)
	} else {
		defer stopWatch()
	}

	schedule := currentConf().RefreshCron
	sched := cron.New()
	if _, err := sched.AddFunc(schedule, refresh); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", schedule)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	if err := <-srvErr; err != nil {
		appLog.Error("HTTP server stopped", err)
		os.Exit(1)
	}
	appLog.Info("daygrid exiting")
}

// refreshFeeds runs the fetch -> parse -> expand pipeline over the
// configured window and reconciles the store: feed-owned events are
// replaced wholesale, anything added through other channels is left
// alone.
func refreshFeeds(ctx context.Context, conf *config.Config, st *store.Store) error {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		sources = append(sources, ics.Source{ID: id, URL: c.URL})
	}
	if len(sources) == 0 {
		appLog.Info("no ICS sources configured, skipping refresh")
		return nil
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone; using local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	fetcher := ics.NewFetcher(conf.CacheDir)
	results, fetchErrs := fetcher.FetchAll(ctx, sources)
	for _, ferr := range fetchErrs {
		appLog.Error("feed fetch error", ferr)
	}
	if len(results) == 0 && len(fetchErrs) > 0 {
		return fmt.Errorf("all %d feed fetches failed", len(fetchErrs))
	}

	parsed := make([]ics.ParsedEvent, 0)
	for _, res := range results {
		events, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			continue
		}
		parsed = append(parsed, events...)
	}

	now := time.Now().In(loc)
	expanded, err := ics.ExpandEvents(parsed, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      now.AddDate(0, 0, -1),
		RangeEnd:        now.AddDate(0, 0, conf.HorizonDays),
	})
	if err != nil {
		return err
	}

	// Drop the previous feed-owned generation, then add the new one.
	for st.RemoveMatching(func(ev model.Event) bool {
		_, ok := ev.Payload.(ics.Detail)
		return ok
	}) {
	}
	for _, ev := range expanded.Events {
		st.Add(ev)
	}

	appLog.Info("feed refresh complete",
		"sources", len(sources),
		"events", len(expanded.Events),
		"truncated_uids", len(expanded.Truncated),
	)
	return nil
}

func capturePreview(ctx context.Context, conf *config.Config) error {
	day := time.Now().Format("2006-01-02")
	return capture.DayViewPNG(ctx, capture.Options{
		URL:        fmt.Sprintf("http://%s/day?date=%s", conf.Listen, day),
		OutputPath: conf.PreviewPath,
		Width:      int(conf.Canvas.Width),
		Height:     int(conf.Canvas.Height),
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/daygrid/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle and exit")
	flag.BoolVar(&cfg.capturePNG, "capture", false, "Capture a PNG preview of the day view after each refresh")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
