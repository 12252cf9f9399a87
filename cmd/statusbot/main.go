package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"statusbot/internal/activity"
	"statusbot/internal/bot"
	"statusbot/internal/channel"
	"statusbot/internal/config"
	"statusbot/internal/eligibility"
	"statusbot/internal/feedsearch"
	"statusbot/internal/job"
	"statusbot/internal/metrics"
	"statusbot/internal/scheduler"
	"statusbot/internal/storage"
	"statusbot/internal/twitter"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	log.Debug("database ready", "path", cfg.DatabasePath, "schema_version", store.SchemaVersion())

	collector := metrics.New(prometheus.NewRegistry())

	client := twitter.New(cfg.TwitterAPIURL,
		twitter.WithBearerToken(cfg.TwitterBearerToken),
		twitter.WithWebURL(cfg.TwitterWebURL),
		twitter.WithTimeout(cfg.SearchTimeout),
		twitter.WithLogger(log),
	)

	var searcher channel.Searcher = client
	if cfg.ChannelSearch == config.SearchFeed {
		searcher = feedsearch.New(&http.Client{Timeout: cfg.SearchTimeout}, cfg.ChannelFeedURL)
	}

	evaluator := eligibility.New(searcher, cfg.MaxDuplicateInterval,
		eligibility.WithRecorder(collector),
		eligibility.WithLogger(log),
		eligibility.WithWebURL(cfg.TwitterWebURL),
		eligibility.WithSearchTimeout(cfg.SearchTimeout),
	)
	publisher := job.New(store, evaluator, client, log, job.WithRecorder(collector))
	handler := activity.New(store, evaluator, publisher, client, nil, log)

	b, err := bot.New(cfg.TelegramBotToken, store, handler, evaluator, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(store, publisher, b, log)
	sched.SetTickInterval(cfg.SchedulerTick)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, collector.Handler(), log)
	}

	log.Info("starting bot", "channel_search", cfg.ChannelSearch, "max_duplicate_interval", cfg.MaxDuplicateInterval.String())

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
