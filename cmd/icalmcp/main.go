package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"icalmcp/internal/calendar"
	"icalmcp/internal/config"
	"icalmcp/internal/ics"
	"icalmcp/internal/journal"
	appLog "icalmcp/internal/log"
	"icalmcp/internal/model"
	"icalmcp/internal/tools"
	"icalmcp/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI overrides applied on top of the config file.
type flagConfig struct {
	configPath string
	listen     string
	transport  string
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.transport != "" {
		conf.Transport = flags.transport
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	model.SetLocalZone(conf.Location())

	appLog.Info("icalmcp starting", "version", version)
	appLog.Info("effective config",
		"store_dir", conf.StoreDir,
		"timezone", model.LocalZone().String(),
		"default_calendar", conf.DefaultCalendar,
		"calendars", len(conf.Calendars),
		"subscriptions", len(conf.Subscriptions),
		"refresh", conf.RefreshCron,
		"transport", conf.Transport,
		"journal", conf.JournalPath != "",
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := ics.NewStore(ics.Options{
		Dir:             conf.StoreDir,
		Calendars:       conf.Calendars,
		DefaultCalendar: conf.DefaultCalendar,
	})
	if len(conf.Subscriptions) > 0 {
		feeds := ics.NewFeeds(ics.NewFetcher(conf.CacheDir, nil), feedsFromConfig(conf))
		store.AttachFeeds(feeds)
		if err := feeds.Refresh(ctx); err != nil {
			appLog.Warn("initial feed refresh incomplete", "err", err)
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() { refresh(ctx, store) }); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// The manager, and with it the permission check, is built on the first
	// tool call.
	svc := tools.NewService(func(ctx context.Context) (*calendar.Manager, error) {
		return calendar.New(ctx, store, calendar.WithResolveWindow(conf.Window()))
	})

	var jr web.JournalReader
	if conf.JournalPath != "" {
		j, err := journal.Open(conf.JournalPath)
		if err != nil {
			appLog.Error("failed to open journal", err, "path", conf.JournalPath)
			os.Exit(1)
		}
		defer j.Close()
		svc.SetRecorder(j)
		jr = j
	}

	switch conf.Transport {
	case config.TransportHTTP:
		err = web.StartServer(ctx, conf, svc, jr)
	default:
		err = tools.ServeStdio(ctx, svc, version)
	}
	if err != nil && ctx.Err() == nil {
		appLog.Error("transport stopped", err, "transport", conf.Transport)
		cancel()
		os.Exit(1)
	}
	appLog.Info("icalmcp exiting")
}

// refresh re-downloads subscriptions and drops cached calendar files so
// external edits to the store become visible.
func refresh(ctx context.Context, store *ics.Store) {
	appLog.Debug("scheduled refresh")
	store.Reload()
	if err := store.RefreshFeeds(ctx); err != nil {
		appLog.Warn("feed refresh incomplete", "err", err)
	}
}

func feedsFromConfig(conf *config.Config) []ics.Feed {
	out := make([]ics.Feed, 0, len(conf.Subscriptions))
	for _, s := range conf.Subscriptions {
		out = append(out, ics.Feed{ID: s.ID, Name: s.Name, URL: s.URL})
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.transport, "transport", "", `Transport, "stdio" or "http" (overrides config if set)`)
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")

	flag.Parse()

	return cfg
}
